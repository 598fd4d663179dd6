package plan

// Evaluation is the model's judgement of how well a run satisfied its goal.
type Evaluation struct {
	IsCompleted           bool   `json:"isCompleted"`
	CompletionPercentage  int    `json:"completionPercentage"`
	Evaluation            string `json:"evaluation"`
	SuggestionForNextStep string `json:"suggestionForNextStep"`
	SatisfactionScore     int    `json:"satisfactionScore"`
}

// MinCompletedScore is the lowest satisfaction score a completed run may carry.
const MinCompletedScore = 5

// Normalize clamps the percentage and score into range and lifts the score
// of a completed run to MinCompletedScore. Already-compliant values are
// returned unchanged.
func (e Evaluation) Normalize() Evaluation {
	e.CompletionPercentage = clamp(e.CompletionPercentage, 0, 100)
	e.SatisfactionScore = clamp(e.SatisfactionScore, 0, 10)
	if e.IsCompleted && e.SatisfactionScore < MinCompletedScore {
		e.SatisfactionScore = MinCompletedScore
	}
	return e
}

// NeutralEvaluation is used when the model answered but its output could
// not be parsed.
func NeutralEvaluation() Evaluation {
	return Evaluation{
		IsCompleted:           false,
		CompletionPercentage:  50,
		Evaluation:            "Could not parse the evaluation returned by the model",
		SuggestionForNextStep: "Continue with the plan",
		SatisfactionScore:     5,
	}
}

// UnavailableEvaluation is used when the model backend could not be reached.
func UnavailableEvaluation(err error) Evaluation {
	return Evaluation{
		IsCompleted:           false,
		CompletionPercentage:  40,
		Evaluation:            "Evaluation failed: " + err.Error(),
		SuggestionForNextStep: "Retry the task",
		SatisfactionScore:     5,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
