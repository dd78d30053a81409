package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sjawhar/interview-ai/internal/archive"
	"github.com/sjawhar/interview-ai/internal/events"
	"github.com/sjawhar/interview-ai/internal/protocol"
	"github.com/sjawhar/interview-ai/internal/registry"
	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

type connMock struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *connMock) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return nil
}

func (c *connMock) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

type publisherMock struct {
	mu     sync.Mutex
	events []any
}

func (p *publisherMock) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type archiverMock struct {
	docs []archive.Document
	err  error
}

func (a *archiverMock) Archive(_ context.Context, doc archive.Document) (string, error) {
	a.docs = append(a.docs, doc)
	return "data/transcripts/" + doc.Session.ID + ".md", a.err
}

type pingFailStore struct {
	*storage.SQLiteStore
}

func (pingFailStore) Ping(context.Context) error { return errors.New("database is locked") }

type testEnv struct {
	handler   http.Handler
	store     *storage.SQLiteStore
	registry  *registry.Registry
	publisher *publisherMock
	archiver  *archiverMock
}

func newTestEnv(t *testing.T, opts Options, mutate func(*Deps)) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:     store,
		registry:  registry.New(nil),
		publisher: &publisherMock{},
		archiver:  &archiverMock{},
	}
	deps := Deps{
		Store:     store,
		Registry:  env.registry,
		Batch:     transcribe.NewStub(),
		Archiver:  env.archiver,
		Publisher: env.publisher,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h, err := Handler(opts, deps)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	env.handler = h
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal %s: %v", rr.Body.String(), err)
	}
}

func (e *testEnv) createSession(t *testing.T, title string) storage.Session {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/interviews", map[string]any{"title": title, "difficulty_level": "hard"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	var sess storage.Session
	decodeJSON(t, rr, &sess)
	return sess
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Welcome to Interview AI Backend API") {
		t.Fatalf("root = %d %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected application/json content-type, got %q", got)
	}

	rr = env.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "healthy") {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/health/database", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "connected") {
		t.Fatalf("database health = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", rr.Code)
	}
}

func TestDatabaseHealthUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{}, func(d *Deps) {
		d.Store = pingFailStore{d.Store.(*storage.SQLiteStore)}
	})
	rr := env.do(t, http.MethodGet, "/health/database", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestHandlerRequiresStore(t *testing.T) {
	if _, err := Handler(Options{}, Deps{Registry: registry.New(nil)}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestInterviewCRUD(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	sess := env.createSession(t, "Backend loop")
	if sess.ID == "" || sess.Status != storage.StatusScheduled {
		t.Fatalf("created = %+v", sess)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/interviews?status=scheduled", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), sess.ID) {
		t.Fatalf("list = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/start", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), storage.StatusInProgress) {
		t.Fatalf("start = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/interviews/"+sess.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rr.Code)
	}
	var detail map[string]json.RawMessage
	decodeJSON(t, rr, &detail)
	for _, key := range []string{"session", "questions", "responses"} {
		if _, ok := detail[key]; !ok {
			t.Fatalf("detail missing %q: %s", key, rr.Body.String())
		}
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/interviews/"+sess.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/interviews/"+sess.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestInterviewValidation(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"missing title", http.MethodPost, "/api/v1/interviews", map[string]any{"title": " "}, http.StatusBadRequest},
		{"bad duration", http.MethodPost, "/api/v1/interviews", map[string]any{"title": "x", "duration_minutes": 0}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/v1/interviews", []byte("{"), http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/interviews/bad.id", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/interviews?limit=-1", nil, http.StatusBadRequest},
		{"unknown interview", http.MethodGet, "/api/v1/interviews/missing", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), `"error"`) {
				t.Fatalf("expected error body, got %s", rr.Body.String())
			}
		})
	}
}

func TestGenerateQuestionsStoresResults(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	sess := env.createSession(t, "Questions")

	rr := env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/questions:generate", map[string]any{"skills": []string{"go"}, "count": 3})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	stored, err := env.store.ListQuestions(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ListQuestions failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Text != "Tell me about yourself" {
		t.Fatalf("stored questions = %+v", stored)
	}
}

func TestSubmitResponseEvaluatesAndBroadcasts(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	ctx := context.Background()
	sess := env.createSession(t, "Feedback")
	q, err := env.store.AddQuestion(ctx, storage.Question{SessionID: sess.ID, Text: "Describe a deadlock", Type: "technical"})
	if err != nil {
		t.Fatalf("AddQuestion failed: %v", err)
	}

	live := &connMock{}
	env.registry.Subscribe(sess.ID, live)

	rr := env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/responses", map[string]any{
		"question_id":   q.ID,
		"user_response": "Two goroutines waiting on each other's locks",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	if got := live.types(); len(got) != 1 || got[0] != protocol.TypeAIFeedback {
		t.Fatalf("live frames = %v, want one ai_feedback", got)
	}

	responses, err := env.store.ListResponses(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListResponses failed: %v", err)
	}
	if len(responses) != 1 || responses[0].Score == nil || *responses[0].Score != 75 {
		t.Fatalf("responses = %+v", responses)
	}
	if responses[0].AIFeedback != "Good response structure" {
		t.Fatalf("feedback = %q", responses[0].AIFeedback)
	}

	env.publisher.mu.Lock()
	defer env.publisher.mu.Unlock()
	if len(env.publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(env.publisher.events))
	}
	if ev, ok := env.publisher.events[0].(events.ResponseEvaluatedEvent); !ok || ev.ResponseID != responses[0].ID {
		t.Fatalf("event = %#v", env.publisher.events[0])
	}
}

func TestSubmitResponseRejectsForeignQuestion(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	ctx := context.Background()
	a := env.createSession(t, "A")
	b := env.createSession(t, "B")
	q, err := env.store.AddQuestion(ctx, storage.Question{SessionID: a.ID, Text: "Question for A"})
	if err != nil {
		t.Fatalf("AddQuestion failed: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/api/v1/interviews/"+b.ID+"/responses", map[string]any{"question_id": q.ID, "user_response": "answer"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/v1/interviews/"+a.ID+"/responses", map[string]any{"question_id": q.ID})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty answer status = %d, want 400", rr.Code)
	}
}

func TestCompleteInterviewSummarizesAndArchives(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	ctx := context.Background()
	sess := env.createSession(t, "Complete")
	q, err := env.store.AddQuestion(ctx, storage.Question{SessionID: sess.ID, Text: "Why Go?"})
	if err != nil {
		t.Fatalf("AddQuestion failed: %v", err)
	}
	if _, err := env.store.AddResponse(ctx, storage.Response{SessionID: sess.ID, QuestionID: q.ID, UserResponse: "Simple concurrency"}); err != nil {
		t.Fatalf("AddResponse failed: %v", err)
	}
	live := &connMock{}
	env.registry.Subscribe(sess.ID, live)

	rr := env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/complete", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	got, err := env.store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != storage.StatusCompleted || got.Score == nil || *got.Score != 75 {
		t.Fatalf("session = %+v", got)
	}
	if !strings.Contains(got.Transcript, "Q: Why Go?\nA: Simple concurrency") {
		t.Fatalf("transcript = %q", got.Transcript)
	}

	if len(env.archiver.docs) != 1 || len(env.archiver.docs[0].History) != 1 {
		t.Fatalf("archived docs = %+v", env.archiver.docs)
	}
	if types := live.types(); len(types) != 1 || types[0] != protocol.TypeInterviewSummary {
		t.Fatalf("live frames = %v", types)
	}
	if !strings.Contains(rr.Body.String(), "data/transcripts/"+sess.ID+".md") {
		t.Fatalf("response missing archive path: %s", rr.Body.String())
	}
}

func TestFollowUps(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	sess := env.createSession(t, "Follow")

	rr := env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/follow-ups", map[string]any{"question": "q", "response": "r"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Can you elaborate?") {
		t.Fatalf("follow-ups = %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/v1/interviews/"+sess.ID+"/follow-ups", map[string]any{"question": "q"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing response status = %d, want 400", rr.Code)
	}
}

func TestTranscribeEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/transcribe?sample_rate=16000", make([]byte, 3200))
	if rr.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d: %s", rr.Code, rr.Body.String())
	}
	var result transcribe.Result
	decodeJSON(t, rr, &result)
	if result.Transcript != "Mock transcript for testing" {
		t.Fatalf("transcript = %q", result.Transcript)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/transcribe?language=xx-XX", make([]byte, 10))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported language status = %d, want 400", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/v1/transcribe", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/transcribe/quality", make([]byte, 32000))
	if rr.Code != http.StatusOK {
		t.Fatalf("quality status = %d", rr.Code)
	}
	var q transcribe.Quality
	decodeJSON(t, rr, &q)
	if q.Score >= 100 || len(q.Issues) == 0 {
		t.Fatalf("silent audio quality = %+v", q)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/transcribe/languages", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "en-US") {
		t.Fatalf("languages = %d %s", rr.Code, rr.Body.String())
	}
}

func TestTranscribeWithoutBatchBackend(t *testing.T) {
	env := newTestEnv(t, Options{}, func(d *Deps) { d.Batch = nil })
	rr := env.do(t, http.MethodPost, "/api/v1/transcribe", make([]byte, 10))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{AllowedOrigins: []string{"https://app.example"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/interviews", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
