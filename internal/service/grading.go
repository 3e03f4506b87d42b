package service

import (
	"math"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/config"
)

// Mention labels on the 0-20 scale.
const (
	MentionExcellent    = "Excellent"
	MentionGood         = "Good"
	MentionFairlyGood   = "Fairly Good"
	MentionPass         = "Pass"
	MentionInsufficient = "Insufficient"
)

// Progression decisions.
const (
	DecisionAdmitted             = "Admitted"
	DecisionAdmittedDeficiencies = "Admitted with deficiencies"
	DecisionAllowedToContinue    = "Allowed to continue"
	DecisionRepeat               = "Repeat"
)

const (
	defaultPassThreshold = 10.0
	defaultScaleMax      = 20.0
)

// GradingPolicy is the grading scale shared by the engine and the summary generator.
type GradingPolicy struct {
	PassThreshold float64
	ScaleMax      float64
}

// NewGradingPolicy builds a policy from configuration, falling back to 10/20.
func NewGradingPolicy(cfg config.GradingConfig) GradingPolicy {
	policy := GradingPolicy{PassThreshold: cfg.PassThreshold, ScaleMax: cfg.ScaleMax}
	if policy.PassThreshold <= 0 {
		policy.PassThreshold = defaultPassThreshold
	}
	if policy.ScaleMax <= 0 {
		policy.ScaleMax = defaultScaleMax
	}
	return policy
}

// Passed reports whether avg reaches the pass threshold.
func (p GradingPolicy) Passed(avg float64) bool {
	return avg >= p.PassThreshold
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// weightedPart is one contribution to a percentage-weighted average.
type weightedPart struct {
	percentage float64
	value      float64
}

// normalizedAverage accumulates value*percentage/100 over the parts and rescales by 100/totalPercentage,
// so configured percentages that do not sum to 100 still yield a value on the full scale.
// It reports false when nothing contributes.
func normalizedAverage(parts []weightedPart) (float64, bool) {
	var weightedSum, totalPercentage float64
	for _, part := range parts {
		weightedSum += part.value * (part.percentage / 100)
		totalPercentage += part.percentage
	}
	if totalPercentage == 0 {
		return 0, false
	}
	return round2(weightedSum * (100 / totalPercentage)), true
}

// weightedComponentAverage groups scores by kind, averages each kind and weights the means by the
// configured percentage. Kinds without scores and scores of unconfigured kinds are ignored.
func weightedComponentAverage(weights []models.AssessmentWeight, scores []models.KindScore) (float64, bool) {
	if len(weights) == 0 {
		return 0, false
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, score := range scores {
		sums[score.KindCode] += score.Value
		counts[score.KindCode]++
	}
	parts := make([]weightedPart, 0, len(weights))
	for _, weight := range weights {
		n := counts[weight.KindCode]
		if n == 0 {
			continue
		}
		parts = append(parts, weightedPart{percentage: weight.Percentage, value: sums[weight.KindCode] / float64(n)})
	}
	return normalizedAverage(parts)
}

// coefficientAverage is the straight coefficient-weighted mean used at term level.
func coefficientAverage(parts []weightedPart) (float64, bool) {
	var weighted, coefficients float64
	for _, part := range parts {
		weighted += part.value * part.percentage
		coefficients += part.percentage
	}
	if coefficients == 0 {
		return 0, false
	}
	return round2(weighted / coefficients), true
}

// creditsFor awards the full unit credit when the average passes, otherwise nothing.
func (p GradingPolicy) creditsFor(avg, credits float64) float64 {
	if p.Passed(avg) {
		return credits
	}
	return 0
}

// Mention maps an average to its qualitative band.
func Mention(avg float64) string {
	switch {
	case avg >= 16:
		return MentionExcellent
	case avg >= 14:
		return MentionGood
	case avg >= 12:
		return MentionFairlyGood
	case avg >= 10:
		return MentionPass
	default:
		return MentionInsufficient
	}
}

// ValidationRate is the share of required credits earned, in percent. Zero required credits give 0.
func ValidationRate(earned, required float64) float64 {
	if required <= 0 {
		return 0
	}
	return earned / required * 100
}

// Decision maps an average and the credit validation rate to a progression outcome.
func Decision(avg, creditsEarned, creditsRequired float64) string {
	rate := ValidationRate(creditsEarned, creditsRequired)
	switch {
	case avg >= 10 && rate >= 100:
		return DecisionAdmitted
	case avg >= 10 && rate >= 70:
		return DecisionAdmittedDeficiencies
	case rate >= 50:
		return DecisionAllowedToContinue
	default:
		return DecisionRepeat
	}
}
