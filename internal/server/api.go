package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/interview-ai/internal/archive"
	"github.com/sjawhar/interview-ai/internal/events"
	"github.com/sjawhar/interview-ai/internal/protocol"
	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/suggest"
)

const (
	maxBodySize    = 1 << 20
	publishTimeout = 5 * time.Second
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func registerAPIRoutes(mux *http.ServeMux, s *server) {
	mux.HandleFunc("GET /api/v1/interviews", s.listInterviews)
	mux.HandleFunc("POST /api/v1/interviews", s.createInterview)
	mux.HandleFunc("GET /api/v1/interviews/{id}", s.getInterview)
	mux.HandleFunc("DELETE /api/v1/interviews/{id}", s.deleteInterview)
	mux.HandleFunc("POST /api/v1/interviews/{id}/start", s.startInterview)
	mux.HandleFunc("POST /api/v1/interviews/{id}/questions:generate", s.generateQuestions)
	mux.HandleFunc("POST /api/v1/interviews/{id}/responses", s.submitResponse)
	mux.HandleFunc("POST /api/v1/interviews/{id}/follow-ups", s.followUps)
	mux.HandleFunc("POST /api/v1/interviews/{id}/complete", s.completeInterview)
}

type createInterviewRequest struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DifficultyLevel string         `json:"difficulty_level"`
	DurationMinutes *int           `json:"duration_minutes"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *server) listInterviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := s.deps.Store.ListSessions(r.Context(), q.Get("status"), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list interviews: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *server) createInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSONError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		writeJSONError(w, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}

	sess, err := s.deps.Store.CreateSession(r.Context(), storage.Session{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     req.Description,
		DifficultyLevel: req.DifficultyLevel,
		DurationMinutes: req.DurationMinutes,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create interview: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *server) getInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	sess, ok := s.loadSession(ctx, w, id)
	if !ok {
		return
	}
	questions, err := s.deps.Store.ListQuestions(ctx, id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list questions: %v", err))
		return
	}
	responses, err := s.deps.Store.ListResponses(ctx, id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list responses: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"questions": questions,
		"responses": responses,
	})
}

func (s *server) deleteInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteSession(r.Context(), id); err != nil {
		writeStoreError(w, "delete interview", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) startInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.MarkStarted(r.Context(), id, s.now()); err != nil {
		writeStoreError(w, "start interview", err)
		return
	}
	sess, ok := s.loadSession(r.Context(), w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type generateQuestionsRequest struct {
	Skills     []string `json:"skills"`
	Difficulty string   `json:"difficulty"`
	Count      int      `json:"count"`
	Types      []string `json:"question_types"`
}

func (s *server) generateQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	var req generateQuestionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count < 0 || req.Count > 20 {
		writeJSONError(w, http.StatusBadRequest, "count must be between 0 and 20")
		return
	}
	ctx := r.Context()
	sess, ok := s.loadSession(ctx, w, id)
	if !ok {
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = sess.DifficultyLevel
	}

	set := s.deps.Generator.Questions(ctx, suggest.QuestionRequest{
		Skills:     req.Skills,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Types:      req.Types,
	})

	stored := make([]storage.Question, 0, len(set.Questions))
	for _, q := range set.Questions {
		saved, err := s.deps.Store.AddQuestion(ctx, storage.Question{
			SessionID:      id,
			Text:           q.Text,
			Type:           q.Type,
			Difficulty:     q.Difficulty,
			ExpectedAnswer: q.ExpectedAnswer,
			AIPrompt:       q.AIPrompt,
		})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save question: %v", err))
			return
		}
		stored = append(stored, saved)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"questions": stored,
		"fallback":  set.Fallback,
	})
}

type submitResponseRequest struct {
	QuestionID          int64  `json:"question_id"`
	UserResponse        string `json:"user_response"`
	Transcript          string `json:"transcript"`
	AudioFile           string `json:"audio_file"`
	ResponseTimeSeconds *int   `json:"response_time_seconds"`
}

// submitResponse stores an answer, evaluates it and pushes the feedback to
// the session's live connection.
func (s *server) submitResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	var req submitResponseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.UserResponse = strings.TrimSpace(req.UserResponse)
	if req.UserResponse == "" {
		req.UserResponse = strings.TrimSpace(req.Transcript)
	}
	if req.UserResponse == "" {
		writeJSONError(w, http.StatusBadRequest, "user_response is required")
		return
	}

	ctx := r.Context()
	sess, ok := s.loadSession(ctx, w, id)
	if !ok {
		return
	}
	question, err := s.deps.Store.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		writeStoreError(w, "get question", err)
		return
	}
	if question.SessionID != id {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("question %d does not belong to interview %s", req.QuestionID, id))
		return
	}

	resp, err := s.deps.Store.AddResponse(ctx, storage.Response{
		SessionID:           id,
		QuestionID:          question.ID,
		UserResponse:        req.UserResponse,
		Transcript:          req.Transcript,
		AudioFile:           req.AudioFile,
		ResponseTimeSeconds: req.ResponseTimeSeconds,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save response: %v", err))
		return
	}

	eval := s.deps.Generator.Evaluate(ctx, suggest.EvaluationRequest{
		Question:       question.Text,
		Response:       req.UserResponse,
		ExpectedAnswer: question.ExpectedAnswer,
		Context: map[string]any{
			"question_type":    question.Type,
			"difficulty":       question.Difficulty,
			"difficulty_level": sess.DifficultyLevel,
		},
	})
	score := float64(eval.Score)
	if err := s.deps.Store.UpdateResponseFeedback(ctx, resp.ID, eval.Feedback, score); err != nil {
		writeStoreError(w, "save feedback", err)
		return
	}
	resp.AIFeedback, resp.Score = eval.Feedback, &score

	s.broadcast(id, protocol.AIFeedback(protocol.EvaluationData{
		QuestionID:        strconv.FormatInt(question.ID, 10),
		Score:             eval.Score,
		Feedback:          eval.Feedback,
		Strengths:         eval.Strengths,
		Improvements:      eval.Improvements,
		OverallAssessment: eval.OverallAssessment,
	}))
	s.publishDetached(ctx, id, events.ResponseEvaluatedEvent{
		Event:      events.NewEvent(events.TypeResponseEvaluated, id, s.now()),
		ResponseID: resp.ID,
		Score:      eval.Score,
		Fallback:   eval.Fallback,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"response":   resp,
		"evaluation": eval,
		"fallback":   eval.Fallback,
	})
}

type followUpsRequest struct {
	Question string         `json:"question"`
	Response string         `json:"response"`
	Context  map[string]any `json:"context"`
}

func (s *server) followUps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	var req followUpsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Response) == "" {
		writeJSONError(w, http.StatusBadRequest, "question and response are required")
		return
	}
	if _, ok := s.loadSession(r.Context(), w, id); !ok {
		return
	}

	out := s.deps.Generator.FollowUps(r.Context(), suggest.FollowUpRequest{
		Question: req.Question,
		Response: req.Response,
		Context:  req.Context,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"follow_up_questions": out.Questions,
		"fallback":            out.Fallback,
	})
}

// completeInterview summarizes the answers, marks the session completed,
// archives a transcript and pushes the summary to the live connection.
func (s *server) completeInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	sess, ok := s.loadSession(ctx, w, id)
	if !ok {
		return
	}
	history, err := s.deps.Store.History(ctx, id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load history: %v", err))
		return
	}
	questions, err := s.deps.Store.ListQuestions(ctx, id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list questions: %v", err))
		return
	}

	summary := s.deps.Generator.Summarize(ctx, sessionData(sess, history))
	if err := s.deps.Store.SaveSummary(ctx, id, summary.DetailedFeedback, float64(summary.OverallScore)); err != nil {
		writeStoreError(w, "save summary", err)
		return
	}
	if err := s.deps.Store.MarkCompleted(ctx, id, s.now(), transcriptOf(history)); err != nil {
		writeStoreError(w, "complete interview", err)
		return
	}
	if sess, ok = s.loadSession(ctx, w, id); !ok {
		return
	}

	archivePath := ""
	if s.deps.Archiver != nil {
		path, err := s.deps.Archiver.Archive(ctx, archive.Document{
			Session:   sess,
			Questions: questions,
			History:   history,
			Summary:   summary,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("archive interview")
		}
		archivePath = path
	}

	s.broadcast(id, protocol.InterviewSummary(summary))
	s.publishDetached(ctx, id, events.InterviewCompletedEvent{
		Event:        events.NewEvent(events.TypeInterviewCompleted, id, s.now()),
		OverallScore: summary.OverallScore,
		ArchivePath:  archivePath,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"summary":      summary,
		"archive_path": archivePath,
		"fallback":     summary.Fallback,
	})
}

func sessionData(sess storage.Session, history []storage.Exchange) suggest.SessionData {
	data := suggest.SessionData{
		SessionID:  sess.ID,
		Title:      sess.Title,
		Difficulty: sess.DifficultyLevel,
		Exchanges:  make([]suggest.Exchange, 0, len(history)),
		Metadata:   sess.Metadata,
	}
	for _, ex := range history {
		item := suggest.Exchange{Question: ex.Question, Response: ex.Response}
		if ex.Score != nil {
			score := suggest.ClampScore(*ex.Score)
			item.Score = &score
		}
		data.Exchanges = append(data.Exchanges, item)
	}
	return data
}

func transcriptOf(history []storage.Exchange) string {
	var b strings.Builder
	for i, ex := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s", ex.Question, ex.Response)
	}
	return b.String()
}

// publishDetached publishes outside the request lifetime so a client
// hanging up does not drop the event.
func (s *server) publishDetached(ctx context.Context, key string, event any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	s.publish(ctx, key, event)
}

func (s *server) loadSession(ctx context.Context, w http.ResponseWriter, id string) (storage.Session, bool) {
	sess, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		writeStoreError(w, "get interview", err)
		return storage.Session{}, false
	}
	return sess, true
}

func pathSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !validSessionID(id) {
		writeJSONError(w, http.StatusBadRequest, "invalid interview id")
		return "", false
	}
	return id, true
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSONError(w, status, fmt.Sprintf("%s: %v", op, err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
