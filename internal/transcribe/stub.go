package transcribe

import (
	"context"
	"sync"
)

// Utterance is one scripted recognition: partials are emitted one per
// chunk, then the final.
type Utterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

var DefaultUtterances = []Utterance{
	{Partials: []string{"Mock", "Mock transcript"}, Final: "Mock transcript for testing", Confidence: 0.85},
}

// Stub is a deterministic Transcriber used when no speech backend is
// configured. It never contacts the network.
type Stub struct {
	Utterances []Utterance
}

func NewStub() *Stub {
	return &Stub{Utterances: DefaultUtterances}
}

func (s *Stub) Start(ctx context.Context, _ Config) (Stream, error) {
	utts := s.Utterances
	if len(utts) == 0 {
		utts = DefaultUtterances
	}
	sctx, cancel := context.WithCancel(ctx)
	return &stubStream{ctx: sctx, cancel: cancel, emitter: newEmitter(), utterances: utts}, nil
}

type stubStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	*emitter

	mu         sync.Mutex
	utterances []Utterance
	current    int
	partial    int
	pending    bool
	closed     bool
}

func (s *stubStream) Events() <-chan Event { return s.events }

func (s *stubStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finished() {
		return ErrStreamClosed
	}
	if len(chunk) == 0 {
		return nil
	}

	utt := s.utterances[s.current%len(s.utterances)]
	if s.partial < len(utt.Partials) {
		text := utt.Partials[s.partial]
		s.partial++
		s.pending = true
		s.emit(s.ctx, Event{Text: text})
		return nil
	}
	s.emitFinal(utt)
	return nil
}

func (s *stubStream) emitFinal(utt Utterance) {
	s.emit(s.ctx, Event{Text: utt.Final, IsFinal: true, Confidence: confidenceOf(utt.Confidence)})
	s.current++
	s.partial = 0
	s.pending = false
}

// CloseSend finalizes an utterance that only produced partials.
func (s *stubStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pending {
		s.emitFinal(s.utterances[s.current%len(s.utterances)])
	}
	s.finish(s.ctx, nil)
	return nil
}

func (s *stubStream) Close() error {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish(s.ctx, nil)
	return nil
}

func (s *Stub) Transcribe(_ context.Context, audio []byte, _ Config) (Result, error) {
	result := Result{Alternatives: []Alternative{}, Words: []Word{}}
	if len(audio) == 0 {
		return result, nil
	}
	utt := DefaultUtterances[0]
	if len(s.Utterances) > 0 {
		utt = s.Utterances[0]
	}
	result.Transcript = utt.Final
	result.Confidence = utt.Confidence
	result.Alternatives = append(result.Alternatives, Alternative{Transcript: utt.Final, Confidence: utt.Confidence})
	return result, nil
}
