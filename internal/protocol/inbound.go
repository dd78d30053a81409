// Package protocol defines the JSON frames exchanged on the interview
// WebSocket: a {type, data, timestamp} envelope, a closed set of inbound
// variants, and constructors for every outbound frame.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeStartInterview = "start_interview"
	TypeAudioChunk     = "audio_chunk"
	TypeGetSuggestion  = "get_suggestion"
	TypeEndInterview   = "end_interview"
)

var (
	// ErrMalformed means the frame is not a JSON object with a string type.
	// It is a transport error: the connection that sent it is closed.
	ErrMalformed = errors.New("malformed frame")
	// ErrInvalidPayload means the envelope parsed but its data does not fit
	// the declared type.
	ErrInvalidPayload = errors.New("invalid payload")
	ErrMissingField   = errors.New("missing required field")
	ErrUnknownType    = errors.New("unknown message type")
)

// UnknownTypeError carries the rejected tag. It matches ErrUnknownType.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

// Inbound is implemented only by the message types in this package.
type Inbound interface {
	MessageType() string
	inbound()
}

type StartInterview struct {
	SessionID   string
	UserContext map[string]any
}

// AudioChunk holds decoded PCM. Audio is empty when the client omitted it.
type AudioChunk struct {
	Audio []byte
}

type GetSuggestion struct {
	Question          string
	PreviousResponses []string
}

type EndInterview struct{}

func (StartInterview) MessageType() string { return TypeStartInterview }
func (AudioChunk) MessageType() string     { return TypeAudioChunk }
func (GetSuggestion) MessageType() string  { return TypeGetSuggestion }
func (EndInterview) MessageType() string   { return TypeEndInterview }

func (StartInterview) inbound() {}
func (AudioChunk) inbound()     {}
func (GetSuggestion) inbound()  {}
func (EndInterview) inbound()   {}

type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
	// Clients send either a number or an ISO string; it is never read.
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode parses one text frame into its inbound variant.
func Decode(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}

	data := env.Data
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}

	switch *env.Type {
	case TypeStartInterview:
		return decodeStart(data)
	case TypeAudioChunk:
		return decodeAudio(data)
	case TypeGetSuggestion:
		return decodeSuggestion(data)
	case TypeEndInterview:
		return EndInterview{}, nil
	default:
		return nil, &UnknownTypeError{Type: *env.Type}
	}
}

func decodeStart(data json.RawMessage) (Inbound, error) {
	var payload struct {
		SessionID   json.RawMessage `json:"session_id"`
		UserContext map[string]any  `json:"user_context"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: start_interview: %v", ErrInvalidPayload, err)
	}

	id, err := parseSessionID(payload.SessionID)
	if err != nil {
		return nil, err
	}
	if payload.UserContext == nil {
		payload.UserContext = map[string]any{}
	}
	return StartInterview{SessionID: id, UserContext: payload.UserContext}, nil
}

// parseSessionID accepts a JSON string or number.
func parseSessionID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: session_id", ErrMissingField)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: session_id", ErrMissingField)
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("%w: session_id must be a string or number", ErrInvalidPayload)
	}
	return n.String(), nil
}

func decodeAudio(data json.RawMessage) (Inbound, error) {
	var payload struct {
		AudioData string `json:"audio_data"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: audio_chunk: %v", ErrInvalidPayload, err)
	}
	if payload.AudioData == "" {
		return AudioChunk{}, nil
	}

	audio, err := base64.StdEncoding.DecodeString(payload.AudioData)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_data is not base64: %v", ErrInvalidPayload, err)
	}
	return AudioChunk{Audio: audio}, nil
}

func decodeSuggestion(data json.RawMessage) (Inbound, error) {
	var payload struct {
		Question string `json:"question"`
		Context  struct {
			PreviousResponses []string `json:"previous_responses"`
		} `json:"context"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: get_suggestion: %v", ErrInvalidPayload, err)
	}
	return GetSuggestion{
		Question:          strings.TrimSpace(payload.Question),
		PreviousResponses: payload.Context.PreviousResponses,
	}, nil
}
