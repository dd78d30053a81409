package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/logging"
)

var initDeepgram sync.Once

// Deepgram streams audio to Deepgram's live transcription endpoint, one
// websocket per interview.
type Deepgram struct {
	apiKey string
	logger zerolog.Logger
}

func initDeepgramLib() {
	initDeepgram.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})
}

func NewDeepgram(apiKey string) *Deepgram {
	initDeepgramLib()
	return &Deepgram{apiKey: apiKey, logger: logging.WithComponent("transcribe.deepgram")}
}

func (d *Deepgram) Start(ctx context.Context, cfg Config) (Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{ctx: sctx, cancel: cancel, emitter: newEmitter(), logger: d.logger}

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.Model,
		Language:       cfg.LanguageCode,
		Punctuate:      cfg.Punctuate,
		SmartFormat:    cfg.Punctuate,
		Encoding:       "linear16",
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		InterimResults: cfg.InterimResults,
	}

	dg, err := client.NewWSUsingCallback(sctx, d.apiKey, cOptions, tOptions, deepgramCallback{stream: s})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		cancel()
		return nil, errors.New("deepgram connect failed")
	}
	s.conn = dg
	return s, nil
}

type deepgramStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	*emitter
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *client.WSCallback
	stopped bool
}

func (s *deepgramStream) Events() <-chan Event { return s.events }

func (s *deepgramStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.finished() {
		return ErrStreamClosed
	}
	if _, err := s.conn.Write(chunk); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// CloseSend asks Deepgram to flush and close. Results that arrive before
// the socket shuts down are still emitted.
func (s *deepgramStream) CloseSend() error {
	s.stop()
	s.finish(s.ctx, nil)
	return nil
}

func (s *deepgramStream) Close() error {
	s.cancel()
	s.stop()
	s.finish(s.ctx, nil)
	return nil
}

func (s *deepgramStream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.conn.Stop()
}

type deepgramCallback struct {
	stream *deepgramStream
}

func (c deepgramCallback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}
	c.stream.emit(c.stream.ctx, Event{Text: text, IsFinal: mr.IsFinal, Confidence: confidenceOf(alt.Confidence)})
	return nil
}

func (c deepgramCallback) Open(*api.OpenResponse) error {
	c.stream.logger.Debug().Msg("connected to Deepgram")
	return nil
}

func (c deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (c deepgramCallback) Close(*api.CloseResponse) error {
	c.stream.logger.Debug().Msg("disconnected from Deepgram")
	c.stream.finish(c.stream.ctx, nil)
	return nil
}

func (c deepgramCallback) Error(er *api.ErrorResponse) error {
	c.stream.logger.Warn().Str("code", er.ErrCode).Str("description", er.Description).Msg("deepgram error")
	c.stream.finish(c.stream.ctx, fmt.Errorf("deepgram %s: %s", er.ErrCode, er.Description))
	return nil
}

func (c deepgramCallback) UnhandledEvent([]byte) error { return nil }
