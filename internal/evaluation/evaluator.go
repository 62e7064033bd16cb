// Package evaluation gates model promotion: a freshly trained challenger
// replaces the deployed champion only when it clears a fixed F1 margin on a
// shared holdout set.
package evaluation

import (
	"fmt"
	"math"
)

const (
	// MinImprovement is the F1 gain a challenger must show to be promoted.
	MinImprovement = 0.02
	// MinEvalSamples is the smallest holdout a comparison is meaningful for.
	MinEvalSamples = 10
)

const (
	DecisionPromoteChallenger = "promote_challenger"
	DecisionKeepChampion      = "keep_champion"
	DecisionInsufficientData  = "insufficient_data"
)

// PredictFunc scores a batch of feature vectors into binary labels.
type PredictFunc func(X [][]float64) []int

// Result is the outcome of one champion/challenger comparison.
type Result struct {
	Decision           string  `json:"decision"`
	Reason             string  `json:"reason"`
	ChampionF1         float64 `json:"champion_f1"`
	ChallengerF1       float64 `json:"challenger_f1"`
	ChampionAccuracy   float64 `json:"champion_accuracy"`
	ChallengerAccuracy float64 `json:"challenger_accuracy"`
	Improvement        float64 `json:"improvement"`
}

// Evaluate compares both models on the holdout set. It never fails: small
// holdouts produce an insufficient_data decision, and a tie or regression
// keeps the champion.
func Evaluate(champion, challenger PredictFunc, X [][]float64, y []int) Result {
	if len(y) < MinEvalSamples {
		return Result{
			Decision: DecisionInsufficientData,
			Reason:   fmt.Sprintf("holdout has %d samples, need at least %d", len(y), MinEvalSamples),
		}
	}

	championPred := champion(X)
	challengerPred := challenger(X)

	championF1 := f1Score(championPred, y)
	challengerF1 := f1Score(challengerPred, y)
	improvement := round4(challengerF1 - championF1)

	result := Result{
		ChampionF1:         round4(championF1),
		ChallengerF1:       round4(challengerF1),
		ChampionAccuracy:   round4(accuracy(championPred, y)),
		ChallengerAccuracy: round4(accuracy(challengerPred, y)),
		Improvement:        improvement,
	}

	if improvement >= MinImprovement {
		result.Decision = DecisionPromoteChallenger
		result.Reason = fmt.Sprintf("challenger F1 %.4f beats champion %.4f by %.4f (min %.2f)",
			result.ChallengerF1, result.ChampionF1, improvement, MinImprovement)
	} else {
		result.Decision = DecisionKeepChampion
		result.Reason = fmt.Sprintf("challenger F1 %.4f vs champion %.4f, improvement %.4f below %.2f",
			result.ChallengerF1, result.ChampionF1, improvement, MinImprovement)
	}

	return result
}

// f1Score computes binary F1 with zero-denominator cases scored as 0.
func f1Score(pred, truth []int) float64 {
	var tp, fp, fn int
	for i := range truth {
		switch {
		case pred[i] == 1 && truth[i] == 1:
			tp++
		case pred[i] == 1 && truth[i] == 0:
			fp++
		case pred[i] == 0 && truth[i] == 1:
			fn++
		}
	}

	if tp+fp == 0 || tp+fn == 0 {
		return 0
	}
	precision := float64(tp) / float64(tp+fp)
	recall := float64(tp) / float64(tp+fn)
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func accuracy(pred, truth []int) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if pred[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
