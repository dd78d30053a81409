package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type writerMock struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *writerMock) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writerMock) Close() error {
	w.closed = true
	return nil
}

func TestNewDisabledWithoutBrokers(t *testing.T) {
	p := New(Config{Topic: "interview-events"}, nil)
	if p.Enabled() {
		t.Fatal("expected log-only publisher")
	}
	if err := p.Publish(context.Background(), "s1", NewEvent(TypeInterviewStarted, "s1", time.Time{})); err != nil {
		t.Fatalf("expected no error in log-only mode, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNewEnabledWithBrokers(t *testing.T) {
	p := New(Config{Brokers: []string{"localhost:9092"}, Topic: "interview-events"}, nil)
	if !p.Enabled() {
		t.Fatal("expected Kafka publisher")
	}
	writer, ok := p.writer.(*kafka.Writer)
	if !ok || writer.Topic != "interview-events" {
		t.Fatalf("unexpected writer: %#v", p.writer)
	}
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	mock := &writerMock{}
	p := New(Config{Topic: "t"}, nil)
	p.writer = mock

	ts := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	event := TranscriptFinalEvent{Event: NewEvent(TypeTranscriptFinal, "s1", ts), Text: "hello"}
	if err := p.Publish(context.Background(), "s1", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(mock.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.msgs))
	}
	msg := mock.msgs[0]
	if string(msg.Key) != "s1" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TypeTranscriptFinal {
		t.Fatalf("unexpected headers: %+v", msg.Headers)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != TypeTranscriptFinal || decoded["text"] != "hello" || decoded["session_id"] != "s1" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if decoded["timestamp"] != "2026-02-26T10:00:00Z" || decoded["version"] != float64(EventVersion) {
		t.Fatalf("unexpected envelope: %v", decoded)
	}

	if err := p.Close(); err != nil || !mock.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestPublishWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := New(Config{Topic: "t"}, nil)
	p.writer = &writerMock{err: boom}

	err := p.Publish(context.Background(), "s1", NewEvent(TypeInterviewEnded, "s1", time.Time{}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestPublishRejectsUnencodable(t *testing.T) {
	p := New(Config{Topic: "t"}, nil)
	if err := p.Publish(context.Background(), "s1", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}
