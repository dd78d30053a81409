package suggest

import "context"

// Stub is the Generator used when no model credentials are configured.
type Stub struct{}

func (Stub) Suggest(context.Context, SuggestionRequest) Suggestion {
	return Suggestion{Text: "Structure your answer with specific examples"}
}

func (Stub) Evaluate(context.Context, EvaluationRequest) Evaluation {
	return Evaluation{
		Score:             75,
		Feedback:          "Good response structure",
		Strengths:         []string{"Clear communication"},
		Improvements:      []string{"More specific examples"},
		OverallAssessment: "Solid response",
	}
}

func (Stub) Summarize(context.Context, SessionData) Summary {
	return Summary{
		OverallScore:        75,
		Strengths:           []string{"Good communication"},
		AreasForImprovement: []string{"Technical depth"},
		DetailedFeedback:    "Good overall performance",
		Recommendations:     []string{"Continue practicing"},
		SkillAssessment:     SkillAssessment{StrongSkills: []string{}, DevelopingSkills: []string{}},
	}
}

func (Stub) FollowUps(context.Context, FollowUpRequest) FollowUps {
	return FollowUps{Questions: []string{"Can you elaborate?", "What challenges did you face?"}}
}

func (Stub) Questions(context.Context, QuestionRequest) QuestionSet {
	return QuestionSet{Questions: []Question{{
		Text:           "Tell me about yourself",
		Type:           "behavioral",
		Difficulty:     "easy",
		ExpectedAnswer: "Background, experience, interests",
		AIPrompt:       "Evaluate personal introduction",
	}}}
}
