package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/llm"
	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
)

const DefaultTimeout = 20 * time.Second

// LLM is the live Generator backed by a chat completion client.
type LLM struct {
	client  llm.Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
	wait    func(context.Context, time.Duration) error
	backoff []time.Duration
}

// New returns a Generator with a per-call timeout. A zero timeout uses
// DefaultTimeout. m may be nil.
func New(client llm.Client, timeout time.Duration, m *metrics.Metrics) *LLM {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLM{
		client:  client,
		timeout: timeout,
		metrics: m,
		logger:  logging.WithComponent("suggest"),
		wait:    sleepCtx,
		backoff: []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second},
	}
}

// complete runs one bounded model call, retrying with backoff when attempts
// is greater than one.
func (g *LLM) complete(ctx context.Context, req llm.Request, attempts int) (string, error) {
	if attempts > len(g.backoff) {
		attempts = len(g.backoff)
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.client.Complete(callCtx, req)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts-1 {
			if g.wait(ctx, g.backoff[attempt]) != nil {
				break
			}
		}
	}
	return "", lastErr
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *LLM) observe(kind string, start time.Time, fallback bool, err error) {
	g.metrics.Generation(kind, fallback, time.Since(start).Seconds())
	if fallback {
		g.metrics.BackendError("generator")
		g.logger.Warn().Err(err).Str("kind", kind).Msg("generator failed, falling back")
	}
}

func (g *LLM) Suggest(ctx context.Context, req SuggestionRequest) Suggestion {
	start := time.Now()
	text, err := g.complete(ctx, llm.Request{
		Messages:  []llm.Message{llm.System(coachSystemPrompt), llm.User(suggestionPrompt(req))},
		MaxTokens: 400,
	}, 1)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = fmt.Errorf("empty suggestion")
	}
	if err != nil {
		g.observe("suggestion", start, true, err)
		return Suggestion{Text: FallbackSuggestion, Fallback: true}
	}
	g.observe("suggestion", start, false, nil)
	return Suggestion{Text: text}
}

func (g *LLM) Evaluate(ctx context.Context, req EvaluationRequest) Evaluation {
	start := time.Now()
	text, err := g.complete(ctx, llm.Request{
		Messages: []llm.Message{llm.System(graderSystemPrompt), llm.User(evaluationPrompt(req))},
		JSON:     true,
	}, 1)

	var raw struct {
		Score             score    `json:"score"`
		Feedback          string   `json:"feedback"`
		Strengths         []string `json:"strengths"`
		Improvements      []string `json:"improvements"`
		OverallAssessment string   `json:"overall_assessment"`
	}
	if err == nil {
		err = decodeJSON(text, &raw)
	}
	if err != nil {
		g.observe("evaluation", start, true, err)
		return fallbackEvaluation()
	}

	g.observe("evaluation", start, false, nil)
	return Evaluation{
		Score:             raw.Score.clamped(50),
		Feedback:          strings.TrimSpace(raw.Feedback),
		Strengths:         cleanList(raw.Strengths),
		Improvements:      cleanList(raw.Improvements),
		OverallAssessment: strings.TrimSpace(raw.OverallAssessment),
	}
}

// Summarize retries because it runs off the real-time path.
func (g *LLM) Summarize(ctx context.Context, session SessionData) Summary {
	start := time.Now()
	text, err := g.complete(ctx, llm.Request{
		Messages: []llm.Message{llm.System(graderSystemPrompt), llm.User(summaryPrompt(session))},
		JSON:     true,
	}, 3)

	var raw struct {
		OverallScore        score           `json:"overall_score"`
		Strengths           []string        `json:"strengths"`
		AreasForImprovement []string        `json:"areas_for_improvement"`
		DetailedFeedback    string          `json:"detailed_feedback"`
		Recommendations     []string        `json:"recommendations"`
		SkillAssessment     SkillAssessment `json:"skill_assessment"`
	}
	if err == nil {
		err = decodeJSON(text, &raw)
	}
	if err != nil {
		g.observe("summary", start, true, err)
		return fallbackSummary()
	}

	g.observe("summary", start, false, nil)
	return Summary{
		OverallScore:        raw.OverallScore.clamped(75),
		Strengths:           cleanList(raw.Strengths),
		AreasForImprovement: cleanList(raw.AreasForImprovement),
		DetailedFeedback:    strings.TrimSpace(raw.DetailedFeedback),
		Recommendations:     cleanList(raw.Recommendations),
		SkillAssessment: SkillAssessment{
			StrongSkills:     cleanList(raw.SkillAssessment.StrongSkills),
			DevelopingSkills: cleanList(raw.SkillAssessment.DevelopingSkills),
		},
	}
}

func (g *LLM) FollowUps(ctx context.Context, req FollowUpRequest) FollowUps {
	start := time.Now()
	text, err := g.complete(ctx, llm.Request{
		Messages: []llm.Message{llm.System(coachSystemPrompt), llm.User(followUpPrompt(req))},
		JSON:     true,
	}, 1)

	var questions []string
	if err == nil {
		questions, err = decodeStringList(text)
	}
	if err == nil && len(questions) == 0 {
		err = fmt.Errorf("no follow-up questions")
	}
	if err != nil {
		g.observe("follow_ups", start, true, err)
		return fallbackFollowUps()
	}

	if len(questions) > MaxFollowUps {
		questions = questions[:MaxFollowUps]
	}
	g.observe("follow_ups", start, false, nil)
	return FollowUps{Questions: questions}
}

func (g *LLM) Questions(ctx context.Context, req QuestionRequest) QuestionSet {
	req = req.normalized()
	start := time.Now()
	text, err := g.complete(ctx, llm.Request{
		Messages: []llm.Message{llm.System(graderSystemPrompt), llm.User(questionsPrompt(req))},
		JSON:     true,
	}, 1)

	var questions []Question
	if err == nil {
		questions, err = decodeQuestions(text)
	}
	if err == nil && len(questions) == 0 {
		err = fmt.Errorf("no questions generated")
	}
	if err != nil {
		g.observe("questions", start, true, err)
		return fallbackQuestions(req)
	}

	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	for i := range questions {
		if questions[i].Difficulty == "" {
			questions[i].Difficulty = req.Difficulty
		}
	}
	g.observe("questions", start, false, nil)
	return QuestionSet{Questions: questions}
}

// decodeStringList accepts a JSON array of strings or a single string.
func decodeStringList(text string) ([]string, error) {
	var list []string
	if err := decodeJSON(text, &list); err == nil {
		return cleanList(list), nil
	}
	var one string
	if err := decodeJSON(text, &one); err != nil {
		return nil, err
	}
	return cleanList([]string{one}), nil
}

// decodeQuestions accepts a JSON array of questions or a single object.
func decodeQuestions(text string) ([]Question, error) {
	var list []Question
	if err := decodeJSON(text, &list); err == nil {
		return nonEmptyQuestions(list), nil
	}
	var one Question
	if err := decodeJSON(text, &one); err != nil {
		return nil, err
	}
	return nonEmptyQuestions([]Question{one}), nil
}

func nonEmptyQuestions(qs []Question) []Question {
	out := qs[:0]
	for _, q := range qs {
		if strings.TrimSpace(q.Text) != "" {
			out = append(out, q)
		}
	}
	return out
}
