package interview

import (
	"errors"
	"sync"

	"github.com/sjawhar/interview-ai/internal/metrics"
	"github.com/sjawhar/interview-ai/internal/protocol"
)

var errOutboxClosed = errors.New("connection closed")

// outbox is the single writer for a connection. The coordinator loop, the
// transcript pump and registry broadcasts all write through it. It
// implements registry.Conn.
type outbox struct {
	mu      sync.Mutex
	t       Transport
	closed  bool
	onError func()
	metrics *metrics.Metrics
}

func (o *outbox) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOutboxClosed
	}
	if err := o.t.WriteFrame(payload); err != nil {
		o.closed = true
		if o.onError != nil {
			o.onError()
		}
		return err
	}
	return nil
}

func (o *outbox) write(msg protocol.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := o.Send(payload); err != nil {
		return err
	}
	o.metrics.Outbound(msg.Type)
	return nil
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
