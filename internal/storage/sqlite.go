package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "interview-ai.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"interview_sessions table", `
		CREATE TABLE IF NOT EXISTS interview_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			difficulty_level TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER,
			started_at TEXT,
			completed_at TEXT,
			transcript TEXT NOT NULL DEFAULT '',
			ai_feedback TEXT NOT NULL DEFAULT '',
			score REAL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`},
	{"interview_questions table", `
		CREATE TABLE IF NOT EXISTS interview_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			question_text TEXT NOT NULL,
			question_type TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			expected_answer TEXT NOT NULL DEFAULT '',
			ai_prompt TEXT NOT NULL DEFAULT '',
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES interview_sessions(id) ON DELETE CASCADE
		);`},
	{"interview_responses table", `
		CREATE TABLE IF NOT EXISTS interview_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			user_response TEXT NOT NULL,
			ai_feedback TEXT NOT NULL DEFAULT '',
			score REAL,
			audio_file TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			response_time_seconds INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES interview_sessions(id) ON DELETE CASCADE,
			FOREIGN KEY(question_id) REFERENCES interview_questions(id) ON DELETE CASCADE
		);`},
	{"sessions index", "CREATE INDEX IF NOT EXISTS idx_interview_sessions_created_at ON interview_sessions(created_at)"},
	{"questions index", "CREATE INDEX IF NOT EXISTS idx_interview_questions_session ON interview_questions(session_id, order_index)"},
	{"responses index", "CREATE INDEX IF NOT EXISTS idx_interview_responses_session ON interview_responses(session_id, id)"},
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt.ddl); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if strings.TrimSpace(sess.ID) == "" {
		return Session{}, errors.New("session id is required")
	}
	if strings.TrimSpace(sess.Title) == "" {
		return Session{}, errors.New("session title is required")
	}
	if sess.Status == "" {
		sess.Status = StatusScheduled
	}
	meta, err := encodeMetadata(sess.Metadata)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: %w", sess.ID, err)
	}

	now := s.now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions(id, title, description, status, difficulty_level, duration_minutes, metadata, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Description, sess.Status, sess.DifficultyLevel,
		nullInt(sess.DurationMinutes), meta, formatTime(now), formatTime(now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return sess, nil
}

const sessionColumns = `id, title, description, status, difficulty_level, duration_minutes, started_at, completed_at,
	transcript, ai_feedback, score, metadata, created_at, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM interview_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns sessions newest first. An empty status matches all.
func (s *SQLiteStore) ListSessions(ctx context.Context, status string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM interview_sessions
		 WHERE (? = '' OR status = ?)
		 ORDER BY created_at DESC, id ASC
		 LIMIT ?`,
		status, status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return expectRow(res, "delete session", id)
}

// MarkStarted moves a session to in_progress. Restarting keeps the first
// start time.
func (s *SQLiteStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		 WHERE id = ?`,
		StatusInProgress, formatTime(at), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("start session %s: %w", id, err)
	}
	return expectRow(res, "start session", id)
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string, at time.Time, transcript string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET status = ?, completed_at = ?, transcript = ?, updated_at = ?
		 WHERE id = ?`,
		StatusCompleted, formatTime(at), transcript, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", id, err)
	}
	return expectRow(res, "complete session", id)
}

// SaveSummary stores the session-level feedback document and score.
func (s *SQLiteStore) SaveSummary(ctx context.Context, id, feedback string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET ai_feedback = ?, score = ?, updated_at = ? WHERE id = ?`,
		feedback, score, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("save summary for session %s: %w", id, err)
	}
	return expectRow(res, "save summary", id)
}

// AddQuestion appends a question. A zero OrderIndex places it after the
// existing ones.
func (s *SQLiteStore) AddQuestion(ctx context.Context, q Question) (Question, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Question{}, errors.New("question text is required")
	}
	if q.OrderIndex == 0 {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(order_index), 0) + 1 FROM interview_questions WHERE session_id = ?`, q.SessionID,
		).Scan(&q.OrderIndex); err != nil {
			return Question{}, fmt.Errorf("next question index for session %s: %w", q.SessionID, err)
		}
	}

	q.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_questions(session_id, question_text, question_type, difficulty, expected_answer, ai_prompt, order_index, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		q.SessionID, q.Text, q.Type, q.Difficulty, q.ExpectedAnswer, q.AIPrompt, q.OrderIndex, formatTime(q.CreatedAt),
	)
	if err != nil {
		return Question{}, fmt.Errorf("add question for session %s: %w", q.SessionID, err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return Question{}, fmt.Errorf("add question id: %w", err)
	}
	return q, nil
}

const questionColumns = `id, session_id, question_text, question_type, difficulty, expected_answer, ai_prompt, order_index, created_at`

func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM interview_questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Question{}, fmt.Errorf("query question %d: %w", id, err)
	}
	return q, nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, sessionID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM interview_questions WHERE session_id = ? ORDER BY order_index ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	questions := make([]Question, 0, 8)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question for session %s: %w", sessionID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows for session %s: %w", sessionID, err)
	}
	return questions, nil
}

func (s *SQLiteStore) AddResponse(ctx context.Context, r Response) (Response, error) {
	if strings.TrimSpace(r.UserResponse) == "" {
		return Response{}, errors.New("user response is required")
	}
	r.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_responses(session_id, question_id, user_response, ai_feedback, score, audio_file, transcript, response_time_seconds, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.QuestionID, r.UserResponse, r.AIFeedback, nullFloat(r.Score), r.AudioFile, r.Transcript,
		nullInt(r.ResponseTimeSeconds), formatTime(r.CreatedAt),
	)
	if err != nil {
		return Response{}, fmt.Errorf("add response for session %s: %w", r.SessionID, err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return Response{}, fmt.Errorf("add response id: %w", err)
	}
	return r, nil
}

// UpdateResponseFeedback attaches an evaluation to a stored response.
func (s *SQLiteStore) UpdateResponseFeedback(ctx context.Context, id int64, feedback string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_responses SET ai_feedback = ?, score = ? WHERE id = ?`, feedback, score, id,
	)
	if err != nil {
		return fmt.Errorf("update response %d feedback: %w", id, err)
	}
	return expectRow(res, "update response", fmt.Sprint(id))
}

func (s *SQLiteStore) ListResponses(ctx context.Context, sessionID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question_id, user_response, ai_feedback, score, audio_file, transcript, response_time_seconds, created_at
		 FROM interview_responses WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	responses := make([]Response, 0, 8)
	for rows.Next() {
		var (
			r       Response
			score   sql.NullFloat64
			elapsed sql.NullInt64
			created string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.UserResponse, &r.AIFeedback, &score,
			&r.AudioFile, &r.Transcript, &elapsed, &created); err != nil {
			return nil, fmt.Errorf("scan response for session %s: %w", sessionID, err)
		}
		r.Score = floatPtr(score)
		r.ResponseTimeSeconds = intPtr(elapsed)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse response %d created_at: %w", r.ID, err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response rows for session %s: %w", sessionID, err)
	}
	return responses, nil
}

// RecentResponses returns up to limit of the newest answers, oldest first.
func (s *SQLiteStore) RecentResponses(ctx context.Context, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_response FROM (
			SELECT id, user_response FROM interview_responses
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent responses for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan recent response for session %s: %w", sessionID, err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent responses for session %s: %w", sessionID, err)
	}
	return out, nil
}

// History returns question/response pairs in answer order.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.question_id, COALESCE(q.question_text, ''), r.user_response, r.score
		 FROM interview_responses r
		 LEFT JOIN interview_questions q ON q.id = r.question_id
		 WHERE r.session_id = ?
		 ORDER BY r.id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	history := make([]Exchange, 0, 8)
	for rows.Next() {
		var (
			ex    Exchange
			score sql.NullFloat64
		)
		if err := rows.Scan(&ex.QuestionID, &ex.Question, &ex.Response, &score); err != nil {
			return nil, fmt.Errorf("scan history for session %s: %w", sessionID, err)
		}
		ex.Score = floatPtr(score)
		history = append(history, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history for session %s: %w", sessionID, err)
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess                           Session
		duration                       sql.NullInt64
		startedAt, completedAt         sql.NullString
		score                          sql.NullFloat64
		metadata, createdAt, updatedAt string
	)
	if err := row.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.Status, &sess.DifficultyLevel, &duration,
		&startedAt, &completedAt, &sess.Transcript, &sess.AIFeedback, &score, &metadata, &createdAt, &updatedAt); err != nil {
		return Session{}, err
	}

	var err error
	sess.DurationMinutes = intPtr(duration)
	sess.Score = floatPtr(score)
	if sess.StartedAt, err = parseNullTime(startedAt); err != nil {
		return Session{}, fmt.Errorf("parse session %s started_at: %w", sess.ID, err)
	}
	if sess.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return Session{}, fmt.Errorf("parse session %s completed_at: %w", sess.ID, err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Session{}, fmt.Errorf("parse session %s created_at: %w", sess.ID, err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Session{}, fmt.Errorf("parse session %s updated_at: %w", sess.ID, err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
			return Session{}, fmt.Errorf("decode session %s metadata: %w", sess.ID, err)
		}
	}
	return sess, nil
}

func scanQuestion(row rowScanner) (Question, error) {
	var (
		q       Question
		created string
	)
	if err := row.Scan(&q.ID, &q.SessionID, &q.Text, &q.Type, &q.Difficulty, &q.ExpectedAnswer, &q.AIPrompt,
		&q.OrderIndex, &created); err != nil {
		return Question{}, err
	}
	var err error
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Question{}, fmt.Errorf("parse question %d created_at: %w", q.ID, err)
	}
	return q, nil
}

func expectRow(res sql.Result, op, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
