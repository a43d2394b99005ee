package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

// VelocityMeasurementHandler runs the continuous enforcement loop: every
// incoming measurement window is evaluated against the gate policy, breaches
// are persisted with a pending approval request, and a verdict event is
// published either way.
type VelocityMeasurementHandler struct {
	policy     GatePolicy
	approvals  repository.ApprovalRepository
	violations repository.ViolationRepository
	velocities repository.VelocityRepository
	dedup      events.DeduplicationStore
	dedupTTL   time.Duration
	emitter    EventsEmitter

	checkedQueue   string
	violationQueue string
}

// NewVelocityMeasurementHandler creates the measurement subscriber handler.
func NewVelocityMeasurementHandler(
	policy GatePolicy,
	approvals repository.ApprovalRepository,
	violations repository.ViolationRepository,
	velocities repository.VelocityRepository,
	dedup events.DeduplicationStore,
	dedupTTL time.Duration,
	emitter EventsEmitter,
	checkedQueue, violationQueue string,
) *VelocityMeasurementHandler {
	return &VelocityMeasurementHandler{
		policy:         policy,
		approvals:      approvals,
		violations:     violations,
		velocities:     velocities,
		dedup:          dedup,
		dedupTTL:       dedupTTL,
		emitter:        emitter,
		checkedQueue:   checkedQueue,
		violationQueue: violationQueue,
	}
}

// Handle processes an incoming velocity measurement message.
func (h *VelocityMeasurementHandler) Handle(
	ctx context.Context,
	_ map[string]string,
	payload []byte,
) error {
	var msg events.VelocityMeasurementPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal velocity measurement: %w", err)
	}

	log := util.Log(ctx).With("agent_id", msg.Measurement.AgentID.String())

	if err := msg.Measurement.Validate(); err != nil {
		return fmt.Errorf("invalid velocity measurement: %w", err)
	}

	// Telemetry delivers at-least-once; a window evaluates only once.
	key := events.MeasurementKey(msg.Measurement.AgentID, msg.Measurement.WindowStart, msg.Measurement.WindowEnd)
	first, err := h.dedup.MarkProcessed(ctx, key, h.dedupTTL)
	if err != nil {
		return fmt.Errorf("deduplicate measurement: %w", err)
	}
	if !first {
		log.Debug("measurement window already processed", "key", key)
		return nil
	}

	// Keep the latest window queryable for budget calculations.
	snapshot, err := repository.NewVelocityRecord(&msg.Measurement)
	if err != nil {
		return err
	}
	if err = h.velocities.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("persist velocity snapshot: %w", err)
	}

	trend := events.NewVelocityTrend(msg.Measurement, msg.Previous, h.policy.RapidGrowthThreshold, msg.DaysAboveThreshold)

	result, err := CheckCapabilityGates(msg.Measurement, trend, h.policy)
	if err != nil {
		return fmt.Errorf("gate check failed: %w", err)
	}

	var requestID events.RequestID
	if result.Violation != nil {
		requestID, err = h.recordViolation(ctx, result, msg.SubmittedBy)
		if err != nil {
			return err
		}
	}

	log.Info("gate check completed",
		"allowed", result.Allowed,
		"growth_rate", msg.Measurement.CapabilityGainPerDay,
	)

	return h.emitter.Emit(ctx, h.checkedQueue, &events.GateCheckCompletedPayload{
		AgentID:           msg.Measurement.AgentID,
		Allowed:           result.Allowed,
		Reason:            result.Reason,
		Violation:         result.Violation,
		Recommendations:   result.Recommendations,
		ApprovalRequestID: requestID,
	})
}

// recordViolation persists the breach, spawns a pending approval request
// and publishes the violation audit event. Returns the spawned request ID.
func (h *VelocityMeasurementHandler) recordViolation(
	ctx context.Context,
	result *GateCheckResult,
	submittedBy string,
) (events.RequestID, error) {
	violation := result.Violation

	justification := fmt.Sprintf("automatic request: growth rate %.2f%%/day detected by %s",
		violation.CurrentGrowthRate, submittedBy)
	request, err := CreateApprovalRequest(violation.AgentID, violation.Velocity, violation.Trend, *violation, justification)
	if err != nil {
		return events.RequestID{}, fmt.Errorf("create approval request: %w", err)
	}

	record, err := repository.NewApprovalRecord(request)
	if err != nil {
		return events.RequestID{}, err
	}
	if err = h.approvals.Create(ctx, record); err != nil {
		return events.RequestID{}, fmt.Errorf("persist approval request: %w", err)
	}

	violationRecord, err := repository.NewViolationRecord(violation, request.ID)
	if err != nil {
		return events.RequestID{}, err
	}
	if err = h.violations.Create(ctx, violationRecord); err != nil {
		return events.RequestID{}, fmt.Errorf("persist violation: %w", err)
	}

	result.ApprovalRequest = request

	util.Log(ctx).Warn("gate violation detected",
		"agent_id", violation.AgentID.String(),
		"severity", violation.Severity,
		"excess", violation.ExcessGrowth,
		"approval_request_id", request.ID.String(),
	)

	err = h.emitter.Emit(ctx, h.violationQueue, &events.GateViolationPayload{
		Violation:         *violation,
		ApprovalRequestID: request.ID,
	})
	if err != nil {
		return events.RequestID{}, fmt.Errorf("emit violation event: %w", err)
	}

	return request.ID, nil
}
