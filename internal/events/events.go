// Package events publishes interview lifecycle events for downstream
// consumers.
package events

import "time"

const EventVersion = 1

// Lifecycle event types.
const (
	TypeInterviewStarted   = "interview_started"
	TypeInterviewEnded     = "interview_ended"
	TypeTranscriptFinal    = "transcript_final"
	TypeSuggestionServed   = "suggestion_served"
	TypeResponseEvaluated  = "response_evaluated"
	TypeInterviewCompleted = "interview_completed"
)

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

type InterviewStartedEvent struct {
	Event
	ConnID string `json:"conn_id,omitempty"`
}

type InterviewEndedEvent struct {
	Event
	Duration   float64 `json:"duration"`
	Utterances int     `json:"utterances"`
	AudioPath  string  `json:"audio_path,omitempty"`
}

type TranscriptFinalEvent struct {
	Event
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type SuggestionServedEvent struct {
	Event
	Question string `json:"question"`
	Fallback bool   `json:"fallback"`
}

type ResponseEvaluatedEvent struct {
	Event
	ResponseID int64 `json:"response_id"`
	Score      int   `json:"score"`
	Fallback   bool  `json:"fallback"`
}

type InterviewCompletedEvent struct {
	Event
	OverallScore int    `json:"overall_score"`
	ArchivePath  string `json:"archive_path,omitempty"`
}

func NewEvent(eventType, sessionID string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
	}
}
