package eligibility

import (
	"golang.org/x/exp/slices"

	"splitfare/pkg/config"
	"splitfare/pkg/types"
)

// Evaluator decides which legs the flat-rate pass covers
type Evaluator struct {
	rules config.FlatRateRules
}

var defaultEvaluator = NewEvaluator(config.DefaultFlatRateRules())

// NewEvaluator creates an evaluator for the given rule set
func NewEvaluator(rules config.FlatRateRules) *Evaluator {
	return &Evaluator{rules: rules}
}

// Default returns the evaluator built from the package constants
func Default() *Evaluator {
	return defaultEvaluator
}

// IsLegEligible reports whether the leg is covered by the flat-rate pass.
// The remark code wins over the product heuristic; walking legs are always covered.
func (e *Evaluator) IsLegEligible(leg types.JourneyLeg) bool {
	if leg.Remarks.HasCode(e.rules.RemarkCode) {
		return true
	}

	if leg.Line == nil {
		return true
	}

	return slices.Contains(e.rules.Products, leg.Line.Product) ||
		slices.Contains(e.rules.ProductNames, leg.Line.ProductName)
}

// IsJourneyFullyEligible reports whether every leg is covered. An empty leg list is covered.
func (e *Evaluator) IsJourneyFullyEligible(legs []types.JourneyLeg) bool {
	for _, leg := range legs {
		if !e.IsLegEligible(leg) {
			return false
		}
	}
	return true
}

// EffectiveLegPrice returns 0 when the pass covers the leg, otherwise price
func (e *Evaluator) EffectiveLegPrice(leg types.JourneyLeg, price int64, hasPass bool) int64 {
	if hasPass && e.IsLegEligible(leg) {
		return 0
	}
	return price
}

func IsLegEligible(leg types.JourneyLeg) bool {
	return defaultEvaluator.IsLegEligible(leg)
}

func IsJourneyFullyEligible(legs []types.JourneyLeg) bool {
	return defaultEvaluator.IsJourneyFullyEligible(legs)
}

func EffectiveLegPrice(leg types.JourneyLeg, price int64, hasPass bool) int64 {
	return defaultEvaluator.EffectiveLegPrice(leg, price, hasPass)
}
