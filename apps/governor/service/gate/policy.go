// Package gate implements the capability growth governor's decision core:
// gate evaluation, improvement projection, budget calculation and the
// approval workflow. Everything in this package is a pure computation over
// its arguments; persistence and transport live with the callers.
package gate

import (
	"fmt"
	"math"
)

// Default policy values. The defaults are deliberately conservative: an
// agent compounding at 10%/day doubles its capability roughly weekly.
const (
	DefaultMaxGrowthPerDay      = 10.0
	DefaultRapidGrowthThreshold = 8.0

	// Severity breakpoints, as a fraction of the configured limit.
	DefaultCriticalExcessRatio = 0.5
	DefaultBlockedExcessRatio  = 0.2

	// Per-dimension contribution weights. Their sum is 1.0.
	DefaultPerformanceWeight = 0.4
	DefaultCostWeight        = 0.3
	DefaultReliabilityWeight = 0.3
)

// GatePolicy is the configuration value object every evaluation runs
// against. Immutable per call; callers may supply a custom instance to
// simulate alternate policies.
type GatePolicy struct {
	// MaxGrowthPerDay is the maximum allowed capability gain per day, in
	// percent. The limit is inclusive: a rate exactly at the limit passes.
	MaxGrowthPerDay float64 `json:"max_growth_per_day"`

	// EnforceGates controls whether violations block. When false,
	// violations are detected and recorded but the call is let through.
	EnforceGates bool `json:"enforce_gates"`

	// RapidGrowthThreshold is the advisory threshold for trend analysis,
	// independent of the hard gate.
	RapidGrowthThreshold float64 `json:"rapid_growth_threshold"`

	// CriticalExcessRatio and BlockedExcessRatio grade violation severity
	// by excess as a fraction of the limit. Excess strictly above the
	// critical ratio is critical, strictly above the blocked ratio is
	// blocked, anything else is a warning.
	CriticalExcessRatio float64 `json:"critical_excess_ratio"`
	BlockedExcessRatio  float64 `json:"blocked_excess_ratio"`

	// Dimension weights used by the projector and budget calculator.
	PerformanceWeight float64 `json:"performance_weight"`
	CostWeight        float64 `json:"cost_weight"`
	ReliabilityWeight float64 `json:"reliability_weight"`
}

// DefaultGatePolicy returns the documented default policy.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		MaxGrowthPerDay:      DefaultMaxGrowthPerDay,
		EnforceGates:         true,
		RapidGrowthThreshold: DefaultRapidGrowthThreshold,
		CriticalExcessRatio:  DefaultCriticalExcessRatio,
		BlockedExcessRatio:   DefaultBlockedExcessRatio,
		PerformanceWeight:    DefaultPerformanceWeight,
		CostWeight:           DefaultCostWeight,
		ReliabilityWeight:    DefaultReliabilityWeight,
	}
}

// Validate checks the policy is well-formed. A malformed policy is invalid
// input and must fail fast rather than produce nonsensical verdicts.
func (p GatePolicy) Validate() error {
	if p.MaxGrowthPerDay <= 0 || !isFinite(p.MaxGrowthPerDay) {
		return fmt.Errorf("max growth per day must be positive and finite, got %v", p.MaxGrowthPerDay)
	}
	if p.RapidGrowthThreshold < 0 || !isFinite(p.RapidGrowthThreshold) {
		return fmt.Errorf("rapid growth threshold must be non-negative and finite, got %v", p.RapidGrowthThreshold)
	}
	if p.CriticalExcessRatio <= p.BlockedExcessRatio {
		return fmt.Errorf("critical excess ratio %v must exceed blocked excess ratio %v",
			p.CriticalExcessRatio, p.BlockedExcessRatio)
	}
	if p.BlockedExcessRatio <= 0 {
		return fmt.Errorf("blocked excess ratio must be positive, got %v", p.BlockedExcessRatio)
	}

	weights := map[string]float64{
		"performance weight": p.PerformanceWeight,
		"cost weight":        p.CostWeight,
		"reliability weight": p.ReliabilityWeight,
	}
	for name, w := range weights {
		if w <= 0 || !isFinite(w) {
			return fmt.Errorf("%s must be positive and finite, got %v", name, w)
		}
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
