package events

import (
	"time"
)

// Queue payloads exchanged between the gateway, the telemetry collector
// and the governor. All payloads are JSON on the wire.

// VelocityMeasurementPayload carries one measurement window into the
// governor's continuous enforcement loop.
type VelocityMeasurementPayload struct {
	// Measurement is the current window.
	Measurement VelocityMeasurement `json:"measurement"`

	// Previous is the preceding window's measurement, absent for an
	// agent's first window.
	Previous *VelocityMeasurement `json:"previous,omitempty"`

	// DaysAboveThreshold is collector-tracked rapid-growth history.
	DaysAboveThreshold int `json:"days_above_threshold,omitempty"`

	// SubmittedBy identifies the submitting collector or operator.
	SubmittedBy string `json:"submitted_by,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// ImprovementProposalPayload asks for a pre-flight gate check of a
// not-yet-applied improvement.
type ImprovementProposalPayload struct {
	AgentID AgentID `json:"agent_id"`

	// Proposed carries the mutation engine's estimated deltas.
	Proposed ProposedImprovement `json:"proposed"`

	// CurrentVelocity is the agent's latest measured window.
	CurrentVelocity VelocityMeasurement `json:"current_velocity"`

	SubmittedBy string    `json:"submitted_by,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GateCheckCompletedPayload reports an enforcement verdict.
type GateCheckCompletedPayload struct {
	AgentID         AgentID    `json:"agent_id"`
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason"`
	Violation       *Violation `json:"violation,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`

	// ApprovalRequestID is set when a blocked violation spawned a request.
	ApprovalRequestID RequestID `json:"approval_request_id,omitempty"`
}

// GateViolationPayload reports a breach for the audit stream.
type GateViolationPayload struct {
	Violation Violation `json:"violation"`

	// ApprovalRequestID is the pending review spawned by this violation.
	ApprovalRequestID RequestID `json:"approval_request_id,omitempty"`
}

// ProjectionCompletedPayload reports a pre-flight projection verdict.
type ProjectionCompletedPayload struct {
	AgentID             AgentID `json:"agent_id"`
	Allowed             bool    `json:"allowed"`
	Reason              string  `json:"reason"`
	ProjectedGrowthRate float64 `json:"projected_growth_rate"`
}

// ApprovalReviewPayload carries a reviewer's verdict from the gateway to
// the governor.
type ApprovalReviewPayload struct {
	RequestID RequestID `json:"request_id"`

	// Approve is true to approve, false to reject.
	Approve bool `json:"approve"`

	Reviewer    string    `json:"reviewer"`
	ReviewNotes string    `json:"review_notes,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ApprovalResolvedPayload reports a terminal review decision.
type ApprovalResolvedPayload struct {
	RequestID   RequestID      `json:"request_id"`
	AgentID     AgentID        `json:"agent_id"`
	Status      ApprovalStatus `json:"status"`
	ReviewedBy  string         `json:"reviewed_by"`
	ReviewNotes string         `json:"review_notes,omitempty"`
	ReviewedAt  time.Time      `json:"reviewed_at"`
}
