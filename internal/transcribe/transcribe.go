// Package transcribe turns pushed audio chunks into ordered transcript
// events using a streaming speech backend.
package transcribe

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is returned by Send after the stream has ended.
var ErrStreamClosed = errors.New("transcription stream closed")

// Config describes the audio being sent. Audio is mono 16-bit LINEAR16.
type Config struct {
	Model          string
	LanguageCode   string
	SampleRate     int
	Punctuate      bool
	WordOffsets    bool
	InterimResults bool
}

// Event is one transcript update. An event with Err set is terminal: the
// Events channel closes right after it.
type Event struct {
	Text       string
	IsFinal    bool
	Confidence *float64
	Err        error
}

type Stream interface {
	Send(chunk []byte) error
	// Events is closed when the stream ends, after at most one error event.
	Events() <-chan Event
	// CloseSend signals end of audio. Pending results are still delivered.
	CloseSend() error
	// Close aborts the stream and releases its resources.
	Close() error
}

type Transcriber interface {
	Start(ctx context.Context, cfg Config) (Stream, error)
}

type BatchTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, cfg Config) (Result, error)
}

type Result struct {
	Transcript   string        `json:"transcript"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
	Words        []Word        `json:"word_time_offsets"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type Word struct {
	Word      string  `json:"word"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// emitter owns an Events channel. Sends and the final close are serialized
// so no event can follow the terminal one.
type emitter struct {
	mu     sync.Mutex
	events chan Event
	done   bool
}

func newEmitter() *emitter {
	return &emitter{events: make(chan Event, 16)}
}

func (e *emitter) emit(ctx context.Context, ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return false
	}
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *emitter) finish(ctx context.Context, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	if err != nil {
		select {
		case e.events <- Event{Err: err}:
		case <-ctx.Done():
		}
	}
	close(e.events)
}

func (e *emitter) finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func confidenceOf(v float64) *float64 {
	return &v
}
