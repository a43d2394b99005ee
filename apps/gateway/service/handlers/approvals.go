package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/agenthive/governor/apps/gateway/config"
	"github.com/agenthive/governor/apps/gateway/middleware"
	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

// ApprovalReviewHandler accepts reviewer verdicts on pending approval
// requests and queues them for the governor's approval workflow. The
// terminal transition itself happens in the governor under a lock; the
// gateway only rejects submissions that are obviously invalid.
type ApprovalReviewHandler struct {
	cfg       *appconfig.GatewayConfig
	publisher QueuePublisher
	approvals repository.ApprovalRepository
}

// NewApprovalReviewHandler creates a new approval review handler.
func NewApprovalReviewHandler(
	cfg *appconfig.GatewayConfig,
	publisher QueuePublisher,
	approvals repository.ApprovalRepository,
) *ApprovalReviewHandler {
	return &ApprovalReviewHandler{
		cfg:       cfg,
		publisher: publisher,
		approvals: approvals,
	}
}

// ReviewRequest is an incoming review verdict.
type ReviewRequest struct {
	// Approve is true to approve the gate crossing, false to reject (required).
	Approve *bool `json:"approve"`

	// Reviewer identifies who made the decision (optional, defaults to the
	// authenticated subject).
	Reviewer string `json:"reviewer,omitempty"`

	// ReviewNotes is the reviewer's free-text rationale (optional).
	ReviewNotes string `json:"review_notes,omitempty"`
}

// ServeHTTP handles the HTTP request for an approval review.
func (h *ApprovalReviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	requestID, err := events.ParseRequestID(r.PathValue("id"))
	if err != nil {
		writeValidationError(w, &ValidationError{
			Field:   "id",
			Message: "request ID must be a valid approval request identifier",
		})
		return
	}

	var request ReviewRequest
	if !readJSONBody(w, r, h.cfg.MaxRequestBodySize, &request) {
		return
	}

	if request.Approve == nil {
		writeValidationError(w, &ValidationError{
			Field:   "approve",
			Message: "approve is required and must be true or false",
		})
		return
	}

	if len(request.ReviewNotes) > h.cfg.MaxReviewNotesLength {
		writeValidationError(w, &ValidationError{
			Field:   "review_notes",
			Message: fmt.Sprintf("review notes must be %d bytes or less", h.cfg.MaxReviewNotesLength),
		})
		return
	}

	reviewer := request.Reviewer
	if reviewer == "" {
		if claims := middleware.GetUserFromContext(ctx); claims != nil {
			reviewer, _ = claims.GetSubject()
		}
	}
	if reviewer == "" {
		writeValidationError(w, &ValidationError{
			Field:   "reviewer",
			Message: "reviewer is required when the request is not authenticated",
		})
		return
	}

	// Reject reviews of unknown or already resolved requests up front.
	// A request that resolves between this check and the governor's
	// transition is dropped there; the check only improves the error the
	// reviewer sees.
	record, err := h.approvals.GetByID(ctx, requestID.String())
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "request_not_found",
				"No approval request matches the given ID", nil)
			return
		}
		log.WithError(err).Error("failed to load approval request",
			"request_id", requestID.String(),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "storage_error",
			"Failed to load approval request", nil)
		return
	}
	if events.ApprovalStatus(record.Status).IsTerminal() {
		writeErrorResponse(w, http.StatusConflict, "already_resolved",
			fmt.Sprintf("Approval request is already %s", record.Status), nil)
		return
	}

	payload := events.ApprovalReviewPayload{
		RequestID:   requestID,
		Approve:     *request.Approve,
		Reviewer:    reviewer,
		ReviewNotes: request.ReviewNotes,
		SubmittedAt: time.Now().UTC(),
	}

	if publishErr := h.publisher.Publish(ctx, h.cfg.QueueApprovalReviewsName, payload); publishErr != nil {
		log.WithError(publishErr).Error("failed to publish approval review",
			"request_id", requestID.String(),
			"reviewer", reviewer,
		)
		writeErrorResponse(w, http.StatusInternalServerError, "queue_error",
			"Failed to queue review for processing", nil)
		return
	}

	log.Info("approval review queued",
		"request_id", requestID.String(),
		"approve", *request.Approve,
		"reviewer", reviewer,
	)

	writeSuccessResponse(w, http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		ID:      requestID.String(),
		Message: "Review queued for processing",
	})
}

// ApprovalListHandler serves the reviewer queue: approval requests filtered
// by status, oldest pending first.
type ApprovalListHandler struct {
	cfg       *appconfig.GatewayConfig
	approvals repository.ApprovalRepository
}

// NewApprovalListHandler creates a new approval listing handler.
func NewApprovalListHandler(
	cfg *appconfig.GatewayConfig,
	approvals repository.ApprovalRepository,
) *ApprovalListHandler {
	return &ApprovalListHandler{
		cfg:       cfg,
		approvals: approvals,
	}
}

// ApprovalListResponse is the listing returned to reviewers.
type ApprovalListResponse struct {
	Count    int                       `json:"count"`
	Requests []*events.ApprovalRequest `json:"requests"`
}

// ServeHTTP handles the HTTP request for listing approval requests.
func (h *ApprovalListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	status := events.ApprovalStatusPending
	if s := r.URL.Query().Get("status"); s != "" {
		switch events.ApprovalStatus(s) {
		case events.ApprovalStatusPending, events.ApprovalStatusApproved, events.ApprovalStatusRejected:
			status = events.ApprovalStatus(s)
		default:
			writeValidationError(w, &ValidationError{
				Field:   "status",
				Message: "invalid status. Valid values: pending, approved, rejected",
			})
			return
		}
	}

	limit := h.cfg.ApprovalListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			writeValidationError(w, &ValidationError{
				Field:   "limit",
				Message: "limit must be a positive integer",
			})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	records, err := h.approvals.ListByStatus(ctx, status, limit)
	if err != nil {
		log.WithError(err).Error("failed to list approval requests",
			"status", string(status),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "storage_error",
			"Failed to list approval requests", nil)
		return
	}

	requests := make([]*events.ApprovalRequest, 0, len(records))
	for _, record := range records {
		req, convErr := record.ToApprovalRequest()
		if convErr != nil {
			log.WithError(convErr).Error("stored approval request is corrupt",
				"request_id", record.ID,
			)
			continue
		}
		requests = append(requests, req)
	}

	writeSuccessResponse(w, http.StatusOK, ApprovalListResponse{
		Count:    len(requests),
		Requests: requests,
	})
}
