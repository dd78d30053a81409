package storage

import (
	"errors"
	"time"
)

// Interview session statuses.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var ErrNotFound = errors.New("not found")

type Session struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Status          string         `json:"status"`
	DifficultyLevel string         `json:"difficulty_level,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
	AIFeedback      string         `json:"ai_feedback,omitempty"`
	Score           *float64       `json:"score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type Question struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Text           string    `json:"question_text"`
	Type           string    `json:"question_type"`
	Difficulty     string    `json:"difficulty"`
	ExpectedAnswer string    `json:"expected_answer,omitempty"`
	AIPrompt       string    `json:"ai_prompt,omitempty"`
	OrderIndex     int       `json:"order_index"`
	CreatedAt      time.Time `json:"created_at"`
}

type Response struct {
	ID                  int64     `json:"id"`
	SessionID           string    `json:"session_id"`
	QuestionID          int64     `json:"question_id"`
	UserResponse        string    `json:"user_response"`
	AIFeedback          string    `json:"ai_feedback,omitempty"`
	Score               *float64  `json:"score,omitempty"`
	AudioFile           string    `json:"audio_file,omitempty"`
	Transcript          string    `json:"transcript,omitempty"`
	ResponseTimeSeconds *int      `json:"response_time_seconds,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Exchange pairs a response with the question it answers.
type Exchange struct {
	QuestionID int64    `json:"question_id"`
	Question   string   `json:"question"`
	Response   string   `json:"response"`
	Score      *float64 `json:"score,omitempty"`
}
