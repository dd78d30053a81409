// Package server exposes the interview backend over HTTP: the real-time
// interview WebSocket, the session event WebSocket, the REST API, health
// checks and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/archive"
	"github.com/sjawhar/interview-ai/internal/interview"
	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
	"github.com/sjawhar/interview-ai/internal/protocol"
	"github.com/sjawhar/interview-ai/internal/registry"
	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/suggest"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

const Version = "1.0.0"

// Store is the persistence the API needs. *storage.SQLiteStore satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, sess storage.Session) (storage.Session, error)
	GetSession(ctx context.Context, id string) (storage.Session, error)
	ListSessions(ctx context.Context, status string, limit int) ([]storage.Session, error)
	DeleteSession(ctx context.Context, id string) error
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, at time.Time, transcript string) error
	SaveSummary(ctx context.Context, id, feedback string, score float64) error
	AddQuestion(ctx context.Context, q storage.Question) (storage.Question, error)
	GetQuestion(ctx context.Context, id int64) (storage.Question, error)
	ListQuestions(ctx context.Context, sessionID string) ([]storage.Question, error)
	AddResponse(ctx context.Context, r storage.Response) (storage.Response, error)
	UpdateResponseFeedback(ctx context.Context, id int64, feedback string, score float64) error
	ListResponses(ctx context.Context, sessionID string) ([]storage.Response, error)
	RecentResponses(ctx context.Context, sessionID string, limit int) ([]string, error)
	History(ctx context.Context, sessionID string) ([]storage.Exchange, error)
}

type Archiver interface {
	Archive(ctx context.Context, doc archive.Document) (string, error)
}

type Options struct {
	// AllowedOrigins restricts CORS and WebSocket origins. Empty allows all.
	AllowedOrigins []string
	Interview      interview.Config
}

// Deps wires the backends. Store and Registry are required; the rest
// degrade to stubs or are skipped when nil.
type Deps struct {
	Store       Store
	Registry    *registry.Registry
	Transcriber transcribe.Transcriber
	Batch       transcribe.BatchTranscriber
	Generator   suggest.Generator
	Archiver    Archiver
	Publisher   interview.Publisher
	Metrics     *metrics.Metrics
	// NewRecorder returns the audio recorder for one connection. Nil
	// disables recording.
	NewRecorder func() interview.Recorder
}

type server struct {
	opts     Options
	deps     Deps
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

func Handler(opts Options, deps Deps) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if deps.Generator == nil {
		deps.Generator = suggest.Stub{}
	}
	if deps.Transcriber == nil {
		deps.Transcriber = transcribe.NewStub()
	}

	s := &server{
		opts:   opts,
		deps:   deps,
		logger: logging.WithComponent("server"),
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/database", s.handleDatabaseHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	registerWSRoutes(mux, s)
	registerAPIRoutes(mux, s)
	registerSpeechRoutes(mux, s)

	return s.cors(mux), nil
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to Interview AI Backend API",
		"version": Version,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   Version,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("database health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

func (s *server) originAllowed(origin string) bool {
	if len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, strings.TrimRight(origin, "/"))
}

// checkOrigin admits clients without an Origin header (non-browser).
func (s *server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.originAllowed(origin)
}

func (s *server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// broadcast pushes a frame to the connection subscribed under sessionID.
func (s *server) broadcast(sessionID string, msg protocol.Message) {
	if !s.deps.Registry.Broadcast(sessionID, msg) {
		s.logger.Debug().Str("session_id", sessionID).Str("type", msg.Type).Msg("no live connection for broadcast")
	}
}

func (s *server) publish(ctx context.Context, key string, event any) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, key, event); err != nil {
		s.logger.Warn().Err(err).Str("session_id", key).Msg("publish event")
	}
}
