package suggest

import "fmt"

const FallbackSuggestion = "Structure your answer with specific examples and focus on your relevant experience."

func fallbackEvaluation() Evaluation {
	return Evaluation{
		Score:             70,
		Feedback:          "Response received and noted.",
		Strengths:         []string{"Provided a response"},
		Improvements:      []string{"Could provide more specific details"},
		OverallAssessment: "Adequate response",
		Fallback:          true,
	}
}

func fallbackSummary() Summary {
	return Summary{
		OverallScore:        75,
		Strengths:           []string{"Completed interview session"},
		AreasForImprovement: []string{"Continue practicing"},
		DetailedFeedback:    "Interview session completed successfully.",
		Recommendations:     []string{"Continue preparing for future interviews"},
		SkillAssessment:     SkillAssessment{StrongSkills: []string{}, DevelopingSkills: []string{}},
		Fallback:            true,
	}
}

func fallbackFollowUps() FollowUps {
	return FollowUps{
		Questions: []string{
			"Can you elaborate on that experience?",
			"What challenges did you face in that project?",
			"How would you approach a similar situation now?",
		},
		Fallback: true,
	}
}

func fallbackQuestions(req QuestionRequest) QuestionSet {
	skills := req.Skills
	if len(skills) > req.Count {
		skills = skills[:req.Count]
	}
	qs := make([]Question, 0, len(skills))
	for _, skill := range skills {
		qs = append(qs, Question{
			Text:           fmt.Sprintf("Tell me about your experience with %s?", skill),
			Type:           "behavioral",
			Difficulty:     req.Difficulty,
			ExpectedAnswer: fmt.Sprintf("Experience with %s, projects, achievements", skill),
			AIPrompt:       fmt.Sprintf("Evaluate response about %s experience", skill),
		})
	}
	if len(qs) == 0 {
		qs = append(qs, Question{
			Text:           "Tell me about yourself",
			Type:           "behavioral",
			Difficulty:     req.Difficulty,
			ExpectedAnswer: "Background, experience, interests",
			AIPrompt:       "Evaluate personal introduction",
		})
	}
	return QuestionSet{Questions: qs, Fallback: true}
}
