package events

// EventType identifies the type of event.
// Format: {domain}.{aggregate}.{action}[.{qualifier}]
type EventType string

// Event type constants organized by category.
const (
	// === VELOCITY EVENTS ===

	// VelocityMeasurementRecorded marks a new capability velocity window
	// arriving from the telemetry collector.
	VelocityMeasurementRecorded EventType = "velocity.measurement.recorded"

	// === GATE EVENTS ===

	// GateCheckCompleted marks the evaluator having produced a result for
	// a measurement, whether allowed or not.
	GateCheckCompleted EventType = "gate.check.completed"

	// GateViolationDetected marks a growth rate found above the configured
	// limit. Emitted in addition to GateCheckCompleted.
	GateViolationDetected EventType = "gate.violation.detected"

	// GateProjectionCompleted marks a pre-flight projection verdict for a
	// proposed improvement.
	GateProjectionCompleted EventType = "gate.projection.completed"

	// === IMPROVEMENT EVENTS ===

	// ImprovementProposed marks a mutation-engine proposal submitted for a
	// pre-flight gate check.
	ImprovementProposed EventType = "improvement.proposal.submitted"

	// ImprovementBlocked marks a proposal whose projected growth breached
	// the gate.
	ImprovementBlocked EventType = "improvement.proposal.blocked"

	// === APPROVAL EVENTS ===

	// ApprovalRequested marks a blocked violation turned into a reviewable
	// request.
	ApprovalRequested EventType = "approval.request.created"

	// ApprovalGranted marks a reviewer approving a gate crossing.
	ApprovalGranted EventType = "approval.request.approved"

	// ApprovalRejected marks a reviewer rejecting a gate crossing.
	ApprovalRejected EventType = "approval.request.rejected"
)

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// Domain returns the domain component of the event type.
func (t EventType) Domain() string {
	s := string(t)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i]
		}
	}
	return s
}

// IsViolationEvent returns true if this event type records a gate breach.
func (t EventType) IsViolationEvent() bool {
	switch t {
	case GateViolationDetected, ImprovementBlocked:
		return true
	default:
		return false
	}
}

// IsTerminalApprovalEvent returns true if this event type resolves an
// approval request.
func (t EventType) IsTerminalApprovalEvent() bool {
	switch t {
	case ApprovalGranted, ApprovalRejected:
		return true
	default:
		return false
	}
}

// EventCategory represents a category of events.
type EventCategory string

const (
	CategoryVelocity    EventCategory = "velocity"
	CategoryGate        EventCategory = "gate"
	CategoryImprovement EventCategory = "improvement"
	CategoryApproval    EventCategory = "approval"
)

// Category returns the category this event type belongs to.
func (t EventType) Category() EventCategory {
	switch t.Domain() {
	case "velocity":
		return CategoryVelocity
	case "gate":
		return CategoryGate
	case "improvement":
		return CategoryImprovement
	case "approval":
		return CategoryApproval
	default:
		return ""
	}
}

// AllEventTypes returns all defined event types.
func AllEventTypes() []EventType {
	return []EventType{
		VelocityMeasurementRecorded,
		GateCheckCompleted,
		GateViolationDetected,
		GateProjectionCompleted,
		ImprovementProposed,
		ImprovementBlocked,
		ApprovalRequested,
		ApprovalGranted,
		ApprovalRejected,
	}
}
