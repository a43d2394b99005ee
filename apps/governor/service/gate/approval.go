package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/agenthive/governor/internal/events"
)

// ErrInvalidTransition is returned when a terminal approval request is
// reviewed again. Terminal records must never be overwritten.
var ErrInvalidTransition = errors.New("invalid approval state transition")

// CreateApprovalRequest turns a violation into a reviewable request. The
// request always starts pending, copies the growth rate from the violation
// and stores the caller's justification verbatim.
func CreateApprovalRequest(
	agentID events.AgentID,
	velocity events.VelocityMeasurement,
	trend events.VelocityTrend,
	violation events.Violation,
	justification string,
) (*events.ApprovalRequest, error) {
	if agentID.IsZero() {
		return nil, fmt.Errorf("agent ID is required")
	}
	if violation.ExcessGrowth <= 0 {
		return nil, fmt.Errorf("violation excess growth must be positive, got %v", violation.ExcessGrowth)
	}

	return &events.ApprovalRequest{
		ID:                events.NewRequestID(),
		AgentID:           agentID,
		RequestType:       events.RequestTypeGateCrossing,
		Status:            events.ApprovalStatusPending,
		CurrentGrowthRate: violation.CurrentGrowthRate,
		Justification:     justification,
		Velocity:          velocity,
		Trend:             trend,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// ApproveGateCrossing resolves a pending request to approved. The input is
// not mutated; a new record carrying the review outcome is returned.
func ApproveGateCrossing(
	request events.ApprovalRequest,
	reviewer string,
	notes string,
) (*events.ApprovalRequest, error) {
	return resolveRequest(request, events.ApprovalStatusApproved, reviewer, notes)
}

// RejectGateCrossing resolves a pending request to rejected.
func RejectGateCrossing(
	request events.ApprovalRequest,
	reviewer string,
	notes string,
) (*events.ApprovalRequest, error) {
	return resolveRequest(request, events.ApprovalStatusRejected, reviewer, notes)
}

func resolveRequest(
	request events.ApprovalRequest,
	status events.ApprovalStatus,
	reviewer string,
	notes string,
) (*events.ApprovalRequest, error) {
	if request.Status != events.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: request %s is already %s",
			ErrInvalidTransition, request.ID.String(), request.Status)
	}
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer is required")
	}

	now := time.Now().UTC()

	resolved := request
	resolved.Status = status
	resolved.ReviewedBy = reviewer
	resolved.ReviewNotes = notes
	resolved.ReviewedAt = &now

	return &resolved, nil
}
