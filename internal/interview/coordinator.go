// Package interview runs one real-time interview connection: it decodes
// client frames, drives the transcription stream and suggestion generator,
// and writes ordered outbound frames through a single writer.
package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/events"
	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
	"github.com/sjawhar/interview-ai/internal/protocol"
	"github.com/sjawhar/interview-ai/internal/suggest"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

const (
	DefaultRecentResponses    = 5
	DefaultTranscriptionRetry = 2 * time.Second
	DefaultDrainTimeout       = 3 * time.Second

	historyTimeout = 2 * time.Second
	publishTimeout = 5 * time.Second
	eventQueueSize = 64
)

const (
	msgNotActive        = "No active interview. Send start_interview first."
	msgTranscription    = "Transcription failed"
	msgSuggestionFailed = "Failed to generate suggestion"
	msgConnectionError  = "Connection error occurred"
)

type Config struct {
	Transcription transcribe.Config
	// RecentResponses bounds the finalized utterances kept as context.
	RecentResponses int
	// TranscriptionRetry is the minimum wait before reopening a failed stream.
	TranscriptionRetry time.Duration
	// DrainTimeout bounds how long end_interview waits for pending finals.
	DrainTimeout time.Duration
}

// Deps are the collaborators of a coordinator. Transcriber and Generator
// default to the stubs; everything else is optional.
type Deps struct {
	Transcriber transcribe.Transcriber
	Generator   suggest.Generator
	Registry    Registry
	History     History
	Recorder    Recorder
	Publisher   Publisher
	Metrics     *metrics.Metrics
}

// Coordinator owns one connection. Run must be called exactly once.
type Coordinator struct {
	connID    string
	cfg       Config
	deps      Deps
	transport Transport
	out       *outbox
	base      zerolog.Logger
	logger    zerolog.Logger
	now       func() time.Time

	state   atomic.Int32
	session *Session

	stream          *activeStream
	retryAt         time.Time
	failureReported bool

	cancel  context.CancelFunc
	queue   chan queuedEvent
	queueWG sync.WaitGroup
}

type activeStream struct {
	stream transcribe.Stream
	cancel context.CancelFunc
	finals chan transcribe.Event
	done   chan struct{}

	// Written by the pump before done is closed.
	err     error
	healthy bool
}

type queuedEvent struct {
	key   string
	event any
}

func New(connID string, t Transport, cfg Config, deps Deps) *Coordinator {
	if cfg.RecentResponses <= 0 {
		cfg.RecentResponses = DefaultRecentResponses
	}
	if cfg.TranscriptionRetry < 0 {
		cfg.TranscriptionRetry = 0
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Transcription.SampleRate <= 0 {
		cfg.Transcription.SampleRate = 16000
	}
	if deps.Transcriber == nil {
		deps.Transcriber = transcribe.NewStub()
	}
	if deps.Generator == nil {
		deps.Generator = suggest.Stub{}
	}

	logger := logging.WithConnection("interview", connID)
	return &Coordinator{
		connID:    connID,
		cfg:       cfg,
		deps:      deps,
		transport: t,
		out:       &outbox{t: t, metrics: deps.Metrics},
		base:      logger,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan queuedEvent, eventQueueSize),
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Run serves the connection until the client disconnects, the context ends,
// or a fault closes it. A clean client close returns nil.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.out.mu.Lock()
	c.out.onError = cancel
	c.out.mu.Unlock()
	defer cancel()

	c.deps.Metrics.ConnectionOpened()
	defer c.deps.Metrics.ConnectionClosed()
	c.logger.Info().Msg("connection opened")

	c.queueWG.Add(1)
	go c.drainEvents()

	frames := make(chan Frame)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go c.read(ctx, frames, readErr, readerDone)

	defer func() {
		c.teardown()
		<-readerDone
		c.logger.Info().Msg("connection closed")
	}()

	for {
		var (
			finals     <-chan transcribe.Event
			streamDone <-chan struct{}
		)
		if c.stream != nil {
			finals, streamDone = c.stream.finals, c.stream.done
		}

		select {
		case <-ctx.Done():
			select {
			case err := <-readErr:
				return readResult(err)
			default:
			}
			return ctx.Err()
		case err := <-readErr:
			return readResult(err)
		case f := <-frames:
			if c.stream != nil {
				c.drainFinals(c.stream)
			}
			if err := c.handle(ctx, f); err != nil {
				return err
			}
		case ev := <-finals:
			c.onFinal(ev)
		case <-streamDone:
			c.onStreamDone()
		}
	}
}

func readResult(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("read frame: %w", err)
}

func (c *Coordinator) read(ctx context.Context, frames chan<- Frame, readErr chan<- error, done chan<- struct{}) {
	defer close(done)
	for {
		f, err := c.transport.ReadFrame()
		if err != nil {
			readErr <- err
			// Abort in-flight backend calls bound to this connection.
			c.cancel()
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one frame. Panics are converted into an error frame and
// ErrConnectionFault.
func (c *Coordinator) handle(ctx context.Context, f Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("frame handler panicked")
			c.send(protocol.Error(protocol.CodeInternal, msgConnectionError, nil))
			err = ErrConnectionFault
		}
	}()

	var msg protocol.Inbound
	if f.Binary {
		msg = protocol.AudioChunk{Audio: f.Data}
	} else {
		msg, err = protocol.Decode(f.Data)
		if err != nil {
			c.deps.Metrics.Inbound("invalid")
			c.logger.Debug().Err(err).Msg("rejected frame")
			c.send(protocol.ErrorFor(err))
			if errors.Is(err, protocol.ErrMalformed) {
				return err
			}
			return nil
		}
	}
	c.deps.Metrics.Inbound(msg.MessageType())

	switch m := msg.(type) {
	case protocol.StartInterview:
		c.startInterview(m)
	case protocol.AudioChunk:
		c.handleAudio(ctx, m.Audio)
	case protocol.GetSuggestion:
		c.handleSuggestion(ctx, m)
	case protocol.EndInterview:
		c.endInterview()
	}
	return nil
}

func (c *Coordinator) notActive(msgType string) {
	c.logger.Debug().Err(ErrNotActive).Str("type", msgType).Msg("rejected frame")
	c.send(protocol.Error(protocol.CodeInterviewNotActive, msgNotActive, nil))
}

func (c *Coordinator) send(msg protocol.Message) {
	if err := c.out.write(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msg.Type).Msg("write frame")
	}
}

// startInterview is last-write-wins: an active interview is torn down
// without an interview_ended frame and replaced.
func (c *Coordinator) startInterview(m protocol.StartInterview) {
	if c.session != nil {
		c.logger.Info().Str("next_session_id", m.SessionID).Msg("interview restarted")
		c.finishInterview(false)
	}

	c.session = newSession(m.SessionID, m.UserContext, c.cfg.RecentResponses, c.now())
	c.failureReported = false
	c.retryAt = time.Time{}
	c.setState(StateActive)
	c.logger = c.base.With().Str("session_id", m.SessionID).Logger()

	if rec := c.deps.Recorder; rec != nil {
		if err := rec.Start(m.SessionID, c.cfg.Transcription.SampleRate); err != nil {
			c.logger.Warn().Err(err).Msg("start audio recording")
		}
	}

	c.send(protocol.InterviewStarted(m.SessionID))
	if c.deps.Registry != nil {
		c.deps.Registry.Subscribe(m.SessionID, c.out)
	}
	c.publish(m.SessionID, events.InterviewStartedEvent{
		Event:  events.NewEvent(events.TypeInterviewStarted, m.SessionID, c.now()),
		ConnID: c.connID,
	})
	c.logger.Info().Msg("interview started")
}

func (c *Coordinator) endInterview() {
	id := ""
	if sess := c.finishInterview(true); sess != nil {
		id = sess.ID
		c.logger.Info().Str("session_id", id).Int("utterances", sess.Utterances).Msg("interview ended")
	}
	c.send(protocol.InterviewEnded(id))
}

// finishInterview releases everything bound to the current interview and
// returns to Idle. graceful lets the recognizer flush pending finals first.
func (c *Coordinator) finishInterview(graceful bool) *Session {
	sess := c.session
	if sess == nil {
		return nil
	}
	c.stopStream(graceful)

	audioPath := ""
	if rec := c.deps.Recorder; rec != nil {
		path, err := rec.Stop()
		if err != nil {
			c.logger.Warn().Err(err).Msg("stop audio recording")
		}
		audioPath = path
	}
	if c.deps.Registry != nil {
		c.deps.Registry.UnsubscribeConn(sess.ID, c.out)
	}
	c.publish(sess.ID, events.InterviewEndedEvent{
		Event:      events.NewEvent(events.TypeInterviewEnded, sess.ID, c.now()),
		Duration:   c.now().Sub(sess.StartedAt).Seconds(),
		Utterances: sess.Utterances,
		AudioPath:  audioPath,
	})

	c.session = nil
	c.setState(StateIdle)
	c.logger = c.base
	return sess
}

func (c *Coordinator) handleAudio(ctx context.Context, chunk []byte) {
	if c.session == nil {
		if len(chunk) > 0 {
			c.notActive(protocol.TypeAudioChunk)
		}
		return
	}
	if len(chunk) == 0 {
		return
	}

	c.deps.Metrics.Audio(len(chunk))
	if rec := c.deps.Recorder; rec != nil {
		if err := rec.Write(chunk); err != nil {
			c.logger.Debug().Err(err).Msg("record audio chunk")
		}
	}

	if c.stream == nil {
		if c.now().Before(c.retryAt) {
			return
		}
		if !c.openStream(ctx) {
			return
		}
	}

	if err := c.stream.stream.Send(chunk); err != nil {
		if errors.Is(err, transcribe.ErrStreamClosed) {
			// The pump reports how the stream ended.
			return
		}
		c.stopStream(false)
		c.transcriptionFailed(fmt.Errorf("send audio: %w", err))
	}
}

func (c *Coordinator) openStream(ctx context.Context) bool {
	sctx, cancel := context.WithCancel(ctx)
	stream, err := c.deps.Transcriber.Start(sctx, c.cfg.Transcription)
	if err != nil {
		cancel()
		c.transcriptionFailed(fmt.Errorf("open transcription stream: %w", err))
		return false
	}

	s := &activeStream{
		stream: stream,
		cancel: cancel,
		finals: make(chan transcribe.Event, 32),
		done:   make(chan struct{}),
	}
	c.stream = s
	c.send(protocol.AudioProcessing())
	go c.pump(sctx, s)
	return true
}

// pump forwards recognizer events to the client in arrival order and hands
// finals to the loop.
func (c *Coordinator) pump(ctx context.Context, s *activeStream) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			c.base.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("transcript pump panicked")
			s.err = fmt.Errorf("transcript pump: %v", r)
		}
	}()

	updates := s.stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if ev.Err != nil {
				s.err = ev.Err
				return
			}
			s.healthy = true
			c.deps.Metrics.Transcript(ev.IsFinal)
			// Finals reach the loop before the client sees them, so a request
			// sent after a final frame observes that utterance.
			if ev.IsFinal {
				select {
				case s.finals <- ev:
				case <-ctx.Done():
					return
				}
			}
			if err := c.out.write(protocol.TranscriptUpdate(ev.Text, ev.IsFinal, ev.Confidence)); err != nil {
				return
			}
		}
	}
}

// onStreamDone runs when the pump exits on its own. A clean end just clears
// the stream so the next chunk reopens it.
func (c *Coordinator) onStreamDone() {
	s := c.stream
	c.stream = nil
	_ = s.stream.Close()
	s.cancel()
	c.drainFinals(s)

	if s.healthy {
		c.failureReported = false
	}
	if s.err != nil {
		c.transcriptionFailed(s.err)
	}
}

// stopStream ends the current stream and waits for its pump.
func (c *Coordinator) stopStream(graceful bool) {
	s := c.stream
	if s == nil {
		return
	}
	c.stream = nil

	if graceful {
		_ = s.stream.CloseSend()
		timer := time.NewTimer(c.cfg.DrainTimeout)
	drain:
		for {
			select {
			case ev := <-s.finals:
				c.onFinal(ev)
			case <-s.done:
				break drain
			case <-timer.C:
				c.logger.Debug().Msg("transcription drain timed out")
				break drain
			}
		}
		timer.Stop()
	}

	_ = s.stream.Close()
	s.cancel()
	<-s.done
	if graceful {
		c.drainFinals(s)
	}
}

func (c *Coordinator) drainFinals(s *activeStream) {
	for {
		select {
		case ev := <-s.finals:
			c.onFinal(ev)
		default:
			return
		}
	}
}

// transcriptionFailed reports the first failure of a streak and schedules
// the next reopen attempt.
func (c *Coordinator) transcriptionFailed(err error) {
	c.deps.Metrics.BackendError("transcription")
	c.retryAt = c.now().Add(c.cfg.TranscriptionRetry)
	if c.failureReported {
		c.logger.Debug().Err(err).Msg("transcription still failing")
		return
	}
	c.failureReported = true
	c.logger.Warn().Err(err).Msg("transcription failed")
	c.send(protocol.Error(protocol.CodeTranscription, msgTranscription, nil))
}

func (c *Coordinator) onFinal(ev transcribe.Event) {
	if c.session == nil {
		return
	}
	c.session.remember(ev.Text)
	c.failureReported = false
	c.publish(c.session.ID, events.TranscriptFinalEvent{
		Event:      events.NewEvent(events.TypeTranscriptFinal, c.session.ID, c.now()),
		Text:       ev.Text,
		Confidence: ev.Confidence,
	})
}

func (c *Coordinator) handleSuggestion(ctx context.Context, m protocol.GetSuggestion) {
	if c.session == nil {
		c.notActive(protocol.TypeGetSuggestion)
		return
	}

	previous := cleanResponses(m.PreviousResponses)
	if len(previous) == 0 {
		previous = c.session.recent()
	}
	if len(previous) == 0 {
		previous = c.storedResponses(ctx)
	}

	result := c.deps.Generator.Suggest(ctx, suggest.SuggestionRequest{
		Question:          m.Question,
		PreviousResponses: previous,
		UserProfile:       c.session.UserContext,
	})
	if ctx.Err() != nil {
		return
	}

	c.publish(c.session.ID, events.SuggestionServedEvent{
		Event:    events.NewEvent(events.TypeSuggestionServed, c.session.ID, c.now()),
		Question: m.Question,
		Fallback: result.Fallback,
	})
	if result.Fallback {
		c.send(protocol.Error(protocol.CodeSuggestion, msgSuggestionFailed, map[string]any{
			"fallback_suggestion": result.Text,
		}))
		return
	}
	c.send(protocol.Suggestion(result.Text))
}

func (c *Coordinator) storedResponses(ctx context.Context) []string {
	if c.deps.History == nil {
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	stored, err := c.deps.History.RecentResponses(hctx, c.session.ID, c.cfg.RecentResponses)
	if err != nil {
		c.logger.Warn().Err(err).Msg("load stored responses")
		return nil
	}
	return cleanResponses(stored)
}

func cleanResponses(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// publish queues a lifecycle event keyed by session id. Events are
// delivered in order by one worker; a full queue drops the event.
func (c *Coordinator) publish(key string, event any) {
	if c.deps.Publisher == nil {
		return
	}
	select {
	case c.queue <- queuedEvent{key: key, event: event}:
	default:
		c.logger.Warn().Msg("event queue full, dropping event")
	}
}

func (c *Coordinator) drainEvents() {
	defer c.queueWG.Done()
	for q := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := c.deps.Publisher.Publish(ctx, q.key, q.event); err != nil {
			c.base.Warn().Err(err).Str("session_id", q.key).Msg("publish event")
		}
		cancel()
	}
}

func (c *Coordinator) teardown() {
	c.finishInterview(false)
	c.setState(StateClosed)
	if c.deps.Registry != nil {
		c.deps.Registry.RemoveConn(c.out)
	}
	c.out.close()
	c.cancel()
	if err := c.transport.Close(); err != nil {
		c.base.Debug().Err(err).Msg("close transport")
	}
	close(c.queue)
	c.queueWG.Wait()
}
