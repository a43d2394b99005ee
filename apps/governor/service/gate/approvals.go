package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

// ApprovalService owns the persisted side of the approval workflow. The
// pure transition functions produce terminal records; this service
// serializes the read-modify-write against the store with a distributed
// lock plus an optimistic status check in the update itself.
type ApprovalService struct {
	repo          repository.ApprovalRepository
	locks         events.LockManager
	lockTTL       time.Duration
	emitter       EventsEmitter
	resolvedQueue string
}

// NewApprovalService creates the approval service.
func NewApprovalService(
	repo repository.ApprovalRepository,
	locks events.LockManager,
	lockTTL time.Duration,
	emitter EventsEmitter,
	resolvedQueue string,
) *ApprovalService {
	return &ApprovalService{
		repo:          repo,
		locks:         locks,
		lockTTL:       lockTTL,
		emitter:       emitter,
		resolvedQueue: resolvedQueue,
	}
}

// Get returns the approval request with the given ID.
func (s *ApprovalService) Get(ctx context.Context, id events.RequestID) (*events.ApprovalRequest, error) {
	record, err := s.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return record.ToApprovalRequest()
}

// ListByStatus returns requests in the given status, oldest first.
func (s *ApprovalService) ListByStatus(
	ctx context.Context,
	status events.ApprovalStatus,
	limit int,
) ([]*events.ApprovalRequest, error) {
	records, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}

	requests := make([]*events.ApprovalRequest, 0, len(records))
	for _, record := range records {
		request, convErr := record.ToApprovalRequest()
		if convErr != nil {
			return nil, convErr
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// Review resolves a pending request to approved or rejected. Exactly one
// concurrent reviewer wins: the per-request lock serializes the transition
// and the repository's status check catches anything the lock missed.
func (s *ApprovalService) Review(
	ctx context.Context,
	requestID events.RequestID,
	approve bool,
	reviewer, notes string,
) (*events.ApprovalRequest, error) {
	if requestID.IsZero() {
		return nil, fmt.Errorf("request ID is required")
	}
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer is required")
	}

	var resolved *events.ApprovalRequest

	err := events.WithLock(ctx, s.locks, events.ApprovalLockKey(requestID), reviewer, s.lockTTL,
		func(ctx context.Context) error {
			record, err := s.repo.GetByID(ctx, requestID.String())
			if err != nil {
				return err
			}

			request, err := record.ToApprovalRequest()
			if err != nil {
				return err
			}

			if approve {
				resolved, err = ApproveGateCrossing(*request, reviewer, notes)
			} else {
				resolved, err = RejectGateCrossing(*request, reviewer, notes)
			}
			if err != nil {
				return err
			}

			return s.repo.Resolve(ctx, requestID.String(), resolved.Status, reviewer, notes, *resolved.ReviewedAt)
		})
	if err != nil {
		return nil, err
	}

	util.Log(ctx).Info("approval request resolved",
		"request_id", requestID.String(),
		"agent_id", resolved.AgentID.String(),
		"status", resolved.Status,
		"reviewed_by", reviewer,
	)

	emitErr := s.emitter.Emit(ctx, s.resolvedQueue, &events.ApprovalResolvedPayload{
		RequestID:   resolved.ID,
		AgentID:     resolved.AgentID,
		Status:      resolved.Status,
		ReviewedBy:  resolved.ReviewedBy,
		ReviewNotes: resolved.ReviewNotes,
		ReviewedAt:  *resolved.ReviewedAt,
	})
	if emitErr != nil {
		return nil, fmt.Errorf("emit approval resolution: %w", emitErr)
	}

	return resolved, nil
}

// ApprovalReviewHandler consumes review verdicts queued by the gateway and
// applies them through the approval service.
type ApprovalReviewHandler struct {
	service *ApprovalService
}

// NewApprovalReviewHandler creates the review subscriber handler.
func NewApprovalReviewHandler(service *ApprovalService) *ApprovalReviewHandler {
	return &ApprovalReviewHandler{service: service}
}

// Handle processes an incoming approval review message.
func (h *ApprovalReviewHandler) Handle(
	ctx context.Context,
	_ map[string]string,
	payload []byte,
) error {
	var msg events.ApprovalReviewPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal approval review: %w", err)
	}

	_, err := h.service.Review(ctx, msg.RequestID, msg.Approve, msg.Reviewer, msg.ReviewNotes)
	if err != nil {
		// A review that raced another reviewer is not retryable; the
		// request is already terminal and redelivery would fail again.
		if isTerminalReviewError(err) {
			util.Log(ctx).Warn("review of already-resolved request dropped",
				"request_id", msg.RequestID.String(),
				"reviewer", msg.Reviewer,
			)
			return nil
		}
		return err
	}
	return nil
}

func isTerminalReviewError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, repository.ErrAlreadyResolved)
}
