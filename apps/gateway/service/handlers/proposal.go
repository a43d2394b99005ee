package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/agenthive/governor/apps/gateway/config"
	"github.com/agenthive/governor/apps/gateway/middleware"
	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

// ProposalHandler accepts improvement proposals from mutation engines and
// queues them for pre-flight projection. The agent's current velocity is
// looked up from the latest stored measurement, so an agent must have at
// least one evaluated window before proposals can be checked.
type ProposalHandler struct {
	cfg        *appconfig.GatewayConfig
	publisher  QueuePublisher
	velocities repository.VelocityRepository
}

// NewProposalHandler creates a new improvement proposal handler.
func NewProposalHandler(
	cfg *appconfig.GatewayConfig,
	publisher QueuePublisher,
	velocities repository.VelocityRepository,
) *ProposalHandler {
	return &ProposalHandler{
		cfg:        cfg,
		publisher:  publisher,
		velocities: velocities,
	}
}

// ProposalRequest is an incoming improvement proposal submission.
type ProposalRequest struct {
	// AgentID is the agent proposing the self-modification (required).
	AgentID string `json:"agent_id"`

	// Estimated per-dimension daily deltas of the proposed improvement.
	PerformanceGain float64 `json:"performance_gain"`
	CostReduction   float64 `json:"cost_reduction"`
	ReliabilityGain float64 `json:"reliability_gain"`

	// SubmittedBy identifies the mutation engine (optional).
	SubmittedBy string `json:"submitted_by,omitempty"`
}

// ServeHTTP handles the HTTP request for a proposal submission.
func (h *ProposalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	var request ProposalRequest
	if !readJSONBody(w, r, h.cfg.MaxRequestBodySize, &request) {
		return
	}

	agentID, err := events.ParseAgentID(request.AgentID)
	if err != nil {
		writeValidationError(w, &ValidationError{
			Field:   "agent_id",
			Message: "agent_id must be a valid agent identifier",
		})
		return
	}

	proposed := events.ProposedImprovement{
		PerformanceGain: request.PerformanceGain,
		CostReduction:   request.CostReduction,
		ReliabilityGain: request.ReliabilityGain,
	}
	if err = proposed.Validate(); err != nil {
		writeValidationError(w, &ValidationError{
			Field:   "proposed",
			Message: err.Error(),
		})
		return
	}

	record, err := h.velocities.GetByAgent(ctx, agentID.String())
	if err != nil {
		if errors.Is(err, repository.ErrVelocityNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "velocity_not_found",
				"No velocity measurement recorded for agent; submit a gate check first", nil)
			return
		}
		log.WithError(err).Error("failed to load agent velocity",
			"agent_id", agentID.String(),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "storage_error",
			"Failed to load agent velocity", nil)
		return
	}

	currentVelocity, err := record.ToMeasurement()
	if err != nil {
		log.WithError(err).Error("stored velocity measurement is corrupt",
			"agent_id", agentID.String(),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "storage_error",
			"Failed to load agent velocity", nil)
		return
	}

	submittedBy := request.SubmittedBy
	if submittedBy == "" {
		if claims := middleware.GetUserFromContext(ctx); claims != nil {
			submittedBy, _ = claims.GetSubject()
		}
	}

	payload := events.ImprovementProposalPayload{
		AgentID:         agentID,
		Proposed:        proposed,
		CurrentVelocity: *currentVelocity,
		SubmittedBy:     submittedBy,
		SubmittedAt:     time.Now().UTC(),
	}

	if publishErr := h.publisher.Publish(ctx, h.cfg.QueueImprovementProposalsName, payload); publishErr != nil {
		log.WithError(publishErr).Error("failed to publish improvement proposal",
			"agent_id", agentID.String(),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "queue_error",
			"Failed to queue proposal for projection", nil)
		return
	}

	log.Info("improvement proposal queued",
		"agent_id", agentID.String(),
		"performance_gain", proposed.PerformanceGain,
		"cost_reduction", proposed.CostReduction,
		"reliability_gain", proposed.ReliabilityGain,
	)

	writeSuccessResponse(w, http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		ID:      agentID.String(),
		Message: "Proposal queued for pre-flight projection",
	})
}
