package gate

import (
	"fmt"

	"github.com/agenthive/governor/internal/events"
)

// SafeImprovementLimits is the remaining safe capability budget and its
// translation into per-dimension ceilings. Each ceiling is how much of only
// that dimension could be added without the weighted sum breaching the
// gate, assuming no contribution from the other two.
type SafeImprovementLimits struct {
	TotalCapabilityBudget float64 `json:"total_capability_budget"`
	MaxPerformanceGain    float64 `json:"max_performance_gain"`
	MaxCostReduction      float64 `json:"max_cost_reduction"`
	MaxReliabilityGain    float64 `json:"max_reliability_gain"`
}

// CalculateSafeImprovementLimit computes the headroom left under the gate.
// When the agent is already at or above the limit, every field is exactly
// zero, never negative.
func CalculateSafeImprovementLimit(
	velocity events.VelocityMeasurement,
	policy GatePolicy,
) (*SafeImprovementLimits, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate policy: %w", err)
	}
	if err := velocity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid velocity measurement: %w", err)
	}

	budget := policy.MaxGrowthPerDay - velocity.CapabilityGainPerDay
	if budget <= 0 {
		return &SafeImprovementLimits{}, nil
	}

	return &SafeImprovementLimits{
		TotalCapabilityBudget: budget,
		MaxPerformanceGain:    budget / policy.PerformanceWeight,
		MaxCostReduction:      budget / policy.CostWeight,
		MaxReliabilityGain:    budget / policy.ReliabilityWeight,
	}, nil
}
