// Package suggest produces interview coaching content from a generative
// model: answer suggestions, scored evaluations, session summaries,
// follow-up questions and question sets. Every call is best-effort and
// returns a deterministic fallback when the backend fails.
package suggest

import (
	"context"
	"math"
)

type Generator interface {
	Suggest(ctx context.Context, req SuggestionRequest) Suggestion
	Evaluate(ctx context.Context, req EvaluationRequest) Evaluation
	Summarize(ctx context.Context, session SessionData) Summary
	FollowUps(ctx context.Context, req FollowUpRequest) FollowUps
	Questions(ctx context.Context, req QuestionRequest) QuestionSet
}

type SuggestionRequest struct {
	Question          string
	PreviousResponses []string
	UserProfile       map[string]any
}

// Suggestion.Fallback is set when Text is the generic placeholder returned
// after a backend failure.
type Suggestion struct {
	Text     string
	Fallback bool
}

type EvaluationRequest struct {
	Question       string
	Response       string
	ExpectedAnswer string
	Context        map[string]any
}

type Evaluation struct {
	Score             int      `json:"score"`
	Feedback          string   `json:"feedback"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	OverallAssessment string   `json:"overall_assessment"`
	Fallback          bool     `json:"-"`
}

type Exchange struct {
	Question string `json:"question"`
	Response string `json:"response"`
	Score    *int   `json:"score,omitempty"`
}

type SessionData struct {
	SessionID  string         `json:"session_id"`
	Title      string         `json:"title,omitempty"`
	Difficulty string         `json:"difficulty_level,omitempty"`
	Exchanges  []Exchange     `json:"exchanges"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type SkillAssessment struct {
	StrongSkills     []string `json:"strong_skills"`
	DevelopingSkills []string `json:"developing_skills"`
}

type Summary struct {
	OverallScore        int             `json:"overall_score"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areas_for_improvement"`
	DetailedFeedback    string          `json:"detailed_feedback"`
	Recommendations     []string        `json:"recommendations"`
	SkillAssessment     SkillAssessment `json:"skill_assessment"`
	Fallback            bool            `json:"-"`
}

type FollowUpRequest struct {
	Question string
	Response string
	Context  map[string]any
}

type FollowUps struct {
	Questions []string
	Fallback  bool
}

type QuestionRequest struct {
	Skills     []string
	Difficulty string
	Count      int
	Types      []string
}

type Question struct {
	Text           string `json:"question_text"`
	Type           string `json:"question_type"`
	Difficulty     string `json:"difficulty"`
	ExpectedAnswer string `json:"expected_answer"`
	AIPrompt       string `json:"ai_prompt"`
}

type QuestionSet struct {
	Questions []Question
	Fallback  bool
}

const (
	MaxFollowUps         = 3
	DefaultQuestionCount = 5
	DefaultDifficulty    = "medium"
)

// ClampScore rounds v and bounds it to [0, 100].
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func (r QuestionRequest) normalized() QuestionRequest {
	if r.Count <= 0 {
		r.Count = DefaultQuestionCount
	}
	if r.Difficulty == "" {
		r.Difficulty = DefaultDifficulty
	}
	if len(r.Types) == 0 {
		r.Types = []string{"technical", "behavioral", "situational"}
	}
	return r
}
