package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Outbound message types.
const (
	TypeInterviewStarted = "interview_started"
	TypeAudioProcessing  = "audio_processing"
	TypeTranscriptUpdate = "transcript_update"
	TypeSuggestion       = "suggestion"
	TypeEvaluation       = "evaluation"
	TypeInterviewEnded   = "interview_ended"
	TypeError            = "error"
	TypePong             = "pong"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribed     = "unsubscribed"
	TypeAIFeedback       = "ai_feedback"
	TypeInterviewSummary = "interview_summary"
)

// Error codes carried in error frames.
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnknownMessageType = "unknown_message_type"
	CodeMissingField       = "missing_field"
	CodeInterviewNotActive = "interview_not_active"
	CodeTranscription      = "transcription_failed"
	CodeSuggestion         = "suggestion_failed"
	CodeInternal           = "internal_error"
)

// Message is an outbound frame. Timestamp is Unix seconds.
type Message struct {
	Type      string  `json:"type"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// Encode marshals m. Outbound payloads contain only JSON-safe values.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

var now = time.Now

func newMessage(msgType string, data any) Message {
	t := now()
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: float64(t.UnixNano()) / 1e9,
	}
}

type InterviewStartedData struct {
	SessionID string `json:"session_id"`
}

type AudioProcessingData struct {
	Status string `json:"status"`
}

type TranscriptUpdateData struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

type SuggestionData struct {
	Suggestion string `json:"suggestion"`
}

type EvaluationData struct {
	QuestionID        string   `json:"question_id,omitempty"`
	Score             int      `json:"score"`
	Feedback          string   `json:"feedback"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	OverallAssessment string   `json:"overall_assessment,omitempty"`
}

type InterviewEndedData struct {
	SessionID string `json:"session_id,omitempty"`
}

type ErrorData struct {
	Message   string         `json:"message"`
	ErrorCode string         `json:"error_code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type SubscriptionData struct {
	SessionID string `json:"session_id"`
}

func InterviewStarted(sessionID string) Message {
	return newMessage(TypeInterviewStarted, InterviewStartedData{SessionID: sessionID})
}

func AudioProcessing() Message {
	return newMessage(TypeAudioProcessing, AudioProcessingData{Status: "processing"})
}

// TranscriptUpdate reports an unknown confidence as 0.
func TranscriptUpdate(text string, isFinal bool, confidence *float64) Message {
	data := TranscriptUpdateData{Transcript: text, IsFinal: isFinal}
	if confidence != nil {
		data.Confidence = *confidence
	}
	return newMessage(TypeTranscriptUpdate, data)
}

func Suggestion(text string) Message {
	return newMessage(TypeSuggestion, SuggestionData{Suggestion: text})
}

func Evaluation(data EvaluationData) Message {
	return newMessage(TypeEvaluation, data)
}

// AIFeedback is the out-of-band evaluation pushed through the registry.
func AIFeedback(data EvaluationData) Message {
	return newMessage(TypeAIFeedback, data)
}

func InterviewSummary(summary any) Message {
	return newMessage(TypeInterviewSummary, summary)
}

func InterviewEnded(sessionID string) Message {
	return newMessage(TypeInterviewEnded, InterviewEndedData{SessionID: sessionID})
}

func Error(code, message string, details map[string]any) Message {
	return newMessage(TypeError, ErrorData{Message: message, ErrorCode: code, Details: details})
}

func Pong() Message {
	return newMessage(TypePong, struct{}{})
}

func Subscribed(sessionID string) Message {
	return newMessage(TypeSubscribed, SubscriptionData{SessionID: sessionID})
}

func Unsubscribed(sessionID string) Message {
	return newMessage(TypeUnsubscribed, SubscriptionData{SessionID: sessionID})
}

// ErrorFor maps a Decode error to the frame sent back to the client.
func ErrorFor(err error) Message {
	switch {
	case errors.Is(err, ErrUnknownType):
		return Error(CodeUnknownMessageType, err.Error(), nil)
	case errors.Is(err, ErrMissingField):
		return Error(CodeMissingField, err.Error(), nil)
	default:
		return Error(CodeInvalidMessage, err.Error(), nil)
	}
}
