package engine

// Result is the final score of a run.
type Result struct {
	Total          int     `json:"total"`
	CorrectAnswers int     `json:"correct_answers"`
	XPEarned       int     `json:"xp_earned"`
	Accuracy       float64 `json:"accuracy"`
	Stars          int     `json:"stars"`
}

// Score computes accuracy as a percentage and the star rating.
// A lesson without questions scores 0 on both.
func Score(total, correct, xp int) Result {
	return Result{
		Total:          total,
		CorrectAnswers: correct,
		XPEarned:       xp,
		Accuracy:       Accuracy(total, correct),
		Stars:          Stars(total, correct),
	}
}

func Accuracy(total, correct int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// Stars rates a run from 0 to 3: all correct is 3, at least two thirds
// is 2, at least one third is 1.
func Stars(total, correct int) int {
	if total <= 0 {
		return 0
	}
	switch {
	case correct >= total:
		return 3
	case correct >= ceilDiv(2*total, 3):
		return 2
	case correct >= ceilDiv(total, 3):
		return 1
	}
	return 0
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
