package events

import (
	"time"
)

// ViolationType classifies a gate breach.
type ViolationType string

const (
	// ViolationGrowthExceeded is the only violation type today: the
	// measured or projected growth rate exceeded the gate limit.
	ViolationGrowthExceeded ViolationType = "growth_exceeded"
)

// Severity grades how far past the limit a violation landed.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityBlocked  Severity = "blocked"
	SeverityCritical Severity = "critical"
)

// GateAction records what the evaluator did about a violation.
type GateAction string

const (
	// GateActionBlocked means enforcement was active and the growth was stopped.
	GateActionBlocked GateAction = "blocked"

	// GateActionFlagged means enforcement was disabled; the violation was
	// recorded but the call was let through.
	GateActionFlagged GateAction = "flagged"
)

// ApprovalStatus tracks human review of a violation.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// IsTerminal returns true once review has resolved the request.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// RequestType classifies an approval request.
type RequestType string

const (
	// RequestTypeGateCrossing asks a human to let an agent past the gate.
	RequestTypeGateCrossing RequestType = "gate_crossing"
)

// Violation records a growth rate found above the policy limit. Created by
// the gate evaluator, immutable once created; consumed by the approval
// workflow to spawn a request.
type Violation struct {
	AgentID              AgentID       `json:"agent_id"`
	ViolationType        ViolationType `json:"violation_type"`
	Severity             Severity      `json:"severity"`
	CurrentGrowthRate    float64       `json:"current_growth_rate"`
	MaxAllowedGrowthRate float64       `json:"max_allowed_growth_rate"`

	// ExcessGrowth is CurrentGrowthRate - MaxAllowedGrowthRate, always
	// positive for a violation.
	ExcessGrowth float64 `json:"excess_growth"`

	// Velocity and Trend are the source measurements, kept for audit.
	Velocity VelocityMeasurement `json:"velocity"`
	Trend    VelocityTrend       `json:"trend"`

	ActionTaken      GateAction     `json:"action_taken"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalStatus   ApprovalStatus `json:"approval_status"`
	DetectedAt       time.Time      `json:"detected_at"`
}

// ApprovalRequest tracks human review of a violation. Created from exactly
// one Violation; the workflow transitions it pending → approved|rejected,
// terminal once set.
type ApprovalRequest struct {
	ID          RequestID   `json:"id"`
	AgentID     AgentID     `json:"agent_id"`
	RequestType RequestType `json:"request_type"`

	Status ApprovalStatus `json:"status"`

	// CurrentGrowthRate is copied from the violation at creation.
	CurrentGrowthRate float64 `json:"current_growth_rate"`

	// Justification is the requester's free-text case for the crossing,
	// stored verbatim.
	Justification string `json:"justification"`

	// Velocity and Trend snapshot the evidence the reviewer sees.
	Velocity VelocityMeasurement `json:"velocity"`
	Trend    VelocityTrend       `json:"trend"`

	// Review outcome, set on the terminal transition.
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
