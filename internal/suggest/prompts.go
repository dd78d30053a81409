package suggest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// promptResponses is how many previous answers go into a suggestion prompt.
const promptResponses = 2

const coachSystemPrompt = "You are an interview coach helping a candidate during a live interview. Be concrete, brief and encouraging."

const graderSystemPrompt = "You are an experienced interviewer grading candidate answers. Reply with JSON only."

func suggestionPrompt(req SuggestionRequest) string {
	var b strings.Builder
	question := req.Question
	if question == "" {
		question = "(the question was not captured)"
	}
	fmt.Fprintf(&b, "The candidate is being asked: %q\n\n", question)
	b.WriteString("Give a concise, practical suggestion for answering this question.")

	if recent := lastN(req.PreviousResponses, promptResponses); len(recent) > 0 {
		fmt.Fprintf(&b, "\nPrevious responses: %s", strings.Join(recent, ", "))
	}
	if len(req.UserProfile) > 0 {
		fmt.Fprintf(&b, "\nUser profile: %s", mustJSON(req.UserProfile))
	}

	b.WriteString("\n\nCover the key points to mention, a structure for the answer, and a specific example where it helps.")
	b.WriteString(" Keep it to two or three actionable sentences.")
	return b.String()
}

func evaluationPrompt(req EvaluationRequest) string {
	var b strings.Builder
	b.WriteString("Evaluate this interview response.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	fmt.Fprintf(&b, "Expected Answer: %s\n", req.ExpectedAnswer)
	fmt.Fprintf(&b, "User's Response: %s\n", req.Response)
	if len(req.Context) > 0 {
		fmt.Fprintf(&b, "Context: %s\n", mustJSON(req.Context))
	}
	b.WriteString(`
Respond with a JSON object:
{
  "score": <integer 0-100>,
  "feedback": "detailed feedback on the response",
  "strengths": ["..."],
  "improvements": ["..."],
  "overall_assessment": "one sentence"
}
Be constructive and specific.`)
	return b.String()
}

func summaryPrompt(session SessionData) string {
	return fmt.Sprintf(`Analyze this interview session and summarize the candidate's performance.

Session Data: %s

Respond with a JSON object:
{
  "overall_score": <integer 0-100>,
  "strengths": ["..."],
  "areas_for_improvement": ["..."],
  "detailed_feedback": "comprehensive feedback",
  "recommendations": ["specific, actionable recommendations"],
  "skill_assessment": {"strong_skills": ["..."], "developing_skills": ["..."]}
}
Be specific and constructive.`, mustJSON(session))
}

func followUpPrompt(req FollowUpRequest) string {
	var b strings.Builder
	b.WriteString("Based on this interview exchange:\n\n")
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	fmt.Fprintf(&b, "Response: %s\n", req.Response)
	if len(req.Context) > 0 {
		fmt.Fprintf(&b, "Interview Context: %s\n", mustJSON(req.Context))
	}
	b.WriteString(`
Write two or three follow-up questions that dig deeper into the candidate's experience, explore related technical concepts, and probe problem solving.
Respond with a JSON array of question strings.`)
	return b.String()
}

func questionsPrompt(req QuestionRequest) string {
	return fmt.Sprintf(`Generate %d interview questions for a %s level candidate with skills in: %s.

Question types to include: %s

Respond with a JSON array of objects with keys:
question_text, question_type (technical/behavioral/situational), difficulty (easy/medium/hard), expected_answer (keywords or phrases), ai_prompt (how to evaluate responses).
Keep every question relevant to the listed skills and the difficulty level.`,
		req.Count, req.Difficulty, strings.Join(req.Skills, ", "), strings.Join(req.Types, ", "))
}

func lastN(items []string, n int) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
