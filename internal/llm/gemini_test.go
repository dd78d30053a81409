package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiTurnsAndConfig(t *testing.T) {
	req := Request{
		Messages:  []Message{System("coach"), User("q1"), {Role: RoleAssistant, Content: "a1"}, System("short"), User("q2")},
		JSON:      true,
		MaxTokens: 128,
	}
	turns := geminiTurns(req.Messages)
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "model" || turns[2].Parts[0].Text != "q2" {
		t.Fatalf("unexpected turns: %+v %+v %+v", turns[0], turns[1], turns[2])
	}

	cfg := geminiConfig(req)
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "coach\n\nshort" {
		t.Fatalf("SystemInstruction = %+v", cfg.SystemInstruction)
	}
	if cfg.ResponseMIMEType != "application/json" || cfg.MaxOutputTokens != 128 {
		t.Fatalf("config = %+v", cfg)
	}
	if geminiConfig(Request{Messages: []Message{User("x")}}).SystemInstruction != nil {
		t.Fatal("expected no system instruction")
	}
}

func geminiServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			GenerationConfig struct {
				ResponseMIMEType string `json:"responseMimeType"`
			} `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMIMEType)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestGeminiComplete(t *testing.T) {
	server := geminiServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"score\":7}"}]}}]}`)
	defer server.Close()

	c, err := NewClient("gemini", "g-test", "gemini-test", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.Complete(context.Background(), Request{Messages: []Message{System("grade"), User("answer")}, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"score":7}` {
		t.Fatalf("got %q", got)
	}
}

func TestGeminiCompleteNoCandidates(t *testing.T) {
	server := geminiServer(t, `{"candidates":[]}`)
	defer server.Close()

	c, err := NewClient("gemini", "g-test", "gemini-test", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Complete(context.Background(), Request{Messages: []Message{User("answer")}, JSON: true})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}
