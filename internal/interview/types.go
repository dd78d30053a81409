package interview

import (
	"context"

	"github.com/sjawhar/interview-ai/internal/registry"
)

// Frame is one WebSocket message. Binary frames carry raw PCM.
type Frame struct {
	Binary bool
	Data   []byte
}

// Transport is the client connection. ReadFrame returns io.EOF on a clean
// close. WriteFrame is only called by one goroutine at a time.
type Transport interface {
	ReadFrame() (Frame, error)
	WriteFrame(data []byte) error
	Close() error
}

type Registry interface {
	Subscribe(sessionID string, conn registry.Conn)
	UnsubscribeConn(sessionID string, conn registry.Conn) bool
	RemoveConn(conn registry.Conn) int
}

// History looks up stored answers for an interview.
type History interface {
	RecentResponses(ctx context.Context, sessionID string, limit int) ([]string, error)
}

// Recorder captures the audio of one interview at a time.
type Recorder interface {
	Start(sessionID string, sampleRate int) error
	Write(chunk []byte) error
	Stop() (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
