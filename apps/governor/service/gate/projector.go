package gate

import (
	"fmt"

	"github.com/agenthive/governor/internal/events"
)

// ProjectionResult is the pre-flight verdict for a proposed improvement.
type ProjectionResult struct {
	AgentID             events.AgentID `json:"agent_id"`
	Allowed             bool           `json:"allowed"`
	Reason              string         `json:"reason"`
	ProjectedGrowthRate float64        `json:"projected_growth_rate"`
}

// BlockImprovementIfExceedsGate projects the capability-gain contribution of
// a not-yet-applied improvement onto the agent's current measured rate and
// checks the result against the gate limit. This lets a caller reject an
// improvement before committing it, rather than detecting the breach after
// the fact from a remeasured window.
func BlockImprovementIfExceedsGate(
	agentID events.AgentID,
	proposed events.ProposedImprovement,
	currentVelocity events.VelocityMeasurement,
	policy GatePolicy,
) (*ProjectionResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate policy: %w", err)
	}
	if agentID.IsZero() {
		return nil, fmt.Errorf("agent ID is required")
	}
	if err := proposed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proposed improvement: %w", err)
	}
	if err := currentVelocity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid velocity measurement: %w", err)
	}

	contribution := proposed.PerformanceGain*policy.PerformanceWeight +
		proposed.CostReduction*policy.CostWeight +
		proposed.ReliabilityGain*policy.ReliabilityWeight

	projected := currentVelocity.CapabilityGainPerDay + contribution

	result := &ProjectionResult{
		AgentID:             agentID,
		ProjectedGrowthRate: projected,
	}

	switch {
	case projected <= policy.MaxGrowthPerDay:
		result.Allowed = true
		result.Reason = fmt.Sprintf("projected growth rate %.2f%%/day is within capability gates (limit %.2f%%/day)",
			projected, policy.MaxGrowthPerDay)
	case !policy.EnforceGates:
		result.Allowed = true
		result.Reason = fmt.Sprintf(
			"projected growth rate %.2f%%/day exceeds capability gate limit %.2f%%/day, but enforcement is disabled; improvement allowed to proceed",
			projected, policy.MaxGrowthPerDay)
	default:
		result.Allowed = false
		result.Reason = fmt.Sprintf("projected growth rate %.2f%%/day exceeds capability gate limit %.2f%%/day",
			projected, policy.MaxGrowthPerDay)
	}

	return result, nil
}
