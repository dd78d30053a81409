// Package registry maps session identifiers to the live connection that
// should receive out-of-band messages for that session.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
	"github.com/sjawhar/interview-ai/internal/protocol"
)

// Conn is a connection handle. Implementations must be comparable (pointer
// types) and safe to call from any goroutine.
type Conn interface {
	Send(payload []byte) error
}

// Broadcast outcomes recorded in metrics.
const (
	ResultDelivered = "delivered"
	ResultMissing   = "missing"
	ResultFailed    = "failed"
)

// Registry holds at most one connection per session id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Conn
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New returns an empty Registry. m may be nil.
func New(m *metrics.Metrics) *Registry {
	return &Registry{
		entries: make(map[string]Conn),
		metrics: m,
		logger:  logging.WithComponent("registry"),
	}
}

// Subscribe addresses sessionID to conn, replacing any previous entry.
func (r *Registry) Subscribe(sessionID string, conn Conn) {
	if sessionID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	r.entries[sessionID] = conn
	r.mu.Unlock()
}

// Unsubscribe removes the entry for sessionID. Unknown ids are a no-op.
func (r *Registry) Unsubscribe(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
}

// UnsubscribeConn removes the entry for sessionID only while it still
// addresses conn, so a connection that lost the id to a newer subscriber
// cannot evict it.
func (r *Registry) UnsubscribeConn(sessionID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[sessionID]; ok && current == conn {
		delete(r.entries, sessionID)
		return true
	}
	return false
}

// RemoveConn drops every entry addressing conn and reports how many there were.
func (r *Registry) RemoveConn(conn Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, current := range r.entries {
		if current == conn {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Lookup returns the connection subscribed under sessionID.
func (r *Registry) Lookup(sessionID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.entries[sessionID]
	return conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Broadcast delivers msg to the connection subscribed under sessionID. A
// missing entry is a no-op. A failed send removes the entry and is otherwise
// swallowed. It reports whether the message was delivered.
func (r *Registry) Broadcast(sessionID string, msg protocol.Message) bool {
	payload, err := msg.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("type", msg.Type).Msg("encode broadcast")
		return false
	}
	return r.BroadcastRaw(sessionID, payload)
}

// BroadcastRaw is Broadcast for an already encoded frame.
func (r *Registry) BroadcastRaw(sessionID string, payload []byte) bool {
	conn, ok := r.Lookup(sessionID)
	if !ok {
		r.metrics.Broadcast(ResultMissing)
		return false
	}

	// Send outside the lock: a slow client must not stall other sessions.
	if err := conn.Send(payload); err != nil {
		r.UnsubscribeConn(sessionID, conn)
		r.metrics.Broadcast(ResultFailed)
		r.logger.Debug().Err(err).Str("session_id", sessionID).Msg("broadcast failed, entry removed")
		return false
	}
	r.metrics.Broadcast(ResultDelivered)
	return true
}
