package gate

import (
	"fmt"
	"time"

	"github.com/agenthive/governor/internal/events"
)

// GateCheckResult is the evaluator's output. Violation is nil when the
// rate passed cleanly; ApprovalRequest is attached by callers after
// invoking the approval workflow, never by the evaluator itself.
type GateCheckResult struct {
	Allowed         bool                    `json:"allowed"`
	Reason          string                  `json:"reason"`
	Violation       *events.Violation       `json:"violation,omitempty"`
	Recommendations []string                `json:"recommendations"`
	ApprovalRequest *events.ApprovalRequest `json:"approval_request,omitempty"`
}

// CheckCapabilityGates evaluates a velocity measurement against the gate
// policy. A policy violation is a first-class outcome, not an error; the
// error return covers invalid input only.
//
// Deterministic: identical inputs always yield identical Allowed,
// CurrentGrowthRate and ExcessGrowth. DetectedAt is the one clock-derived
// field and downstream comparisons must ignore it.
func CheckCapabilityGates(
	velocity events.VelocityMeasurement,
	trend events.VelocityTrend,
	policy GatePolicy,
) (*GateCheckResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate policy: %w", err)
	}
	if err := velocity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid velocity measurement: %w", err)
	}

	rate := velocity.CapabilityGainPerDay
	limit := policy.MaxGrowthPerDay

	// The limit is inclusive.
	if rate <= limit {
		return &GateCheckResult{
			Allowed: true,
			Reason: fmt.Sprintf("growth rate %.2f%%/day is within capability gates (limit %.2f%%/day)",
				rate, limit),
			Recommendations: buildRecommendations(nil, trend, policy),
		}, nil
	}

	excess := rate - limit

	violation := &events.Violation{
		AgentID:              velocity.AgentID,
		ViolationType:        events.ViolationGrowthExceeded,
		Severity:             classifySeverity(excess, limit, policy),
		CurrentGrowthRate:    rate,
		MaxAllowedGrowthRate: limit,
		ExcessGrowth:         excess,
		Velocity:             velocity,
		Trend:                trend,
		RequiresApproval:     true,
		ApprovalStatus:       events.ApprovalStatusPending,
		DetectedAt:           time.Now().UTC(),
	}

	var reason string
	if policy.EnforceGates {
		violation.ActionTaken = events.GateActionBlocked
		reason = fmt.Sprintf("growth rate %.2f%%/day exceeds capability gate limit %.2f%%/day",
			rate, limit)
	} else {
		violation.ActionTaken = events.GateActionFlagged
		reason = fmt.Sprintf(
			"growth rate %.2f%%/day exceeds capability gate limit %.2f%%/day, but enforcement is disabled; growth flagged and allowed to proceed",
			rate, limit)
	}

	return &GateCheckResult{
		Allowed:         !policy.EnforceGates,
		Reason:          reason,
		Violation:       violation,
		Recommendations: buildRecommendations(violation, trend, policy),
	}, nil
}

// classifySeverity grades a violation by excess as a fraction of the
// configured limit. Both breakpoints are exclusive: an excess ratio of
// exactly 0.5 grades blocked, not critical.
func classifySeverity(excess, limit float64, policy GatePolicy) events.Severity {
	ratio := excess / limit
	switch {
	case ratio > policy.CriticalExcessRatio:
		return events.SeverityCritical
	case ratio > policy.BlockedExcessRatio:
		return events.SeverityBlocked
	default:
		return events.SeverityWarning
	}
}

// buildRecommendations produces the advisory list for a check result.
// Always returns at least one entry.
func buildRecommendations(violation *events.Violation, trend events.VelocityTrend, policy GatePolicy) []string {
	var recs []string

	if violation != nil {
		recs = append(recs,
			fmt.Sprintf("Pause self-improvements until the growth rate drops below %.2f%%/day",
				violation.MaxAllowedGrowthRate))

		switch violation.Severity {
		case events.SeverityCritical:
			recs = append(recs, "Request human approval before any further capability change; critical violations require immediate review")
		default:
			recs = append(recs, "Submit an approval request with justification if the growth must continue")
		}
	}

	if trend.IsAccelerating {
		recs = append(recs,
			fmt.Sprintf("Growth is accelerating (%+.1f%% versus the previous window); slow the improvement cadence before the next measurement",
				trend.AccelerationPercent))
	}

	if trend.IsRapidGrowth && violation == nil {
		recs = append(recs,
			fmt.Sprintf("Rate is above the rapid-growth threshold of %.2f%%/day; review upcoming improvements for compounding effects",
				policy.RapidGrowthThreshold))
	}

	if len(recs) == 0 {
		recs = append(recs, "Growth is within safe bounds; continue monitoring measurement windows")
	}

	return recs
}
