package interview

import (
	"strings"
	"time"
)

// State is the coordinator lifecycle: Idle -> Active -> Closed, with
// end_interview returning Active to Idle.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection interview record. Only the coordinator loop
// touches it.
type Session struct {
	ID              string
	UserContext     map[string]any
	RecentResponses []string
	StartedAt       time.Time
	Utterances      int

	limit int
}

func newSession(id string, userContext map[string]any, limit int, now time.Time) *Session {
	if userContext == nil {
		userContext = map[string]any{}
	}
	return &Session{ID: id, UserContext: userContext, StartedAt: now, limit: limit}
}

// remember appends a finalized utterance, keeping the newest limit entries.
func (s *Session) remember(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.Utterances++
	s.RecentResponses = append(s.RecentResponses, text)
	if over := len(s.RecentResponses) - s.limit; s.limit > 0 && over > 0 {
		s.RecentResponses = append([]string(nil), s.RecentResponses[over:]...)
	}
}

func (s *Session) recent() []string {
	return append([]string(nil), s.RecentResponses...)
}
