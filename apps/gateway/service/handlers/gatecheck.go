package handlers

import (
	"net/http"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/agenthive/governor/apps/gateway/config"
	"github.com/agenthive/governor/apps/gateway/middleware"
	"github.com/agenthive/governor/internal/events"
)

// GateCheckHandler accepts velocity measurement windows from telemetry
// collectors and queues them for gate evaluation.
type GateCheckHandler struct {
	cfg       *appconfig.GatewayConfig
	publisher QueuePublisher
}

// NewGateCheckHandler creates a new gate check submission handler.
func NewGateCheckHandler(
	cfg *appconfig.GatewayConfig,
	publisher QueuePublisher,
) *GateCheckHandler {
	return &GateCheckHandler{
		cfg:       cfg,
		publisher: publisher,
	}
}

// MeasurementWindow is one measurement window as submitted by clients.
type MeasurementWindow struct {
	// WindowStart and WindowEnd bound the window (required).
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// CapabilityGainPercent is the cumulative gain over the window (required).
	CapabilityGainPercent float64 `json:"capability_gain_percent"`

	// Per-dimension daily rates (optional).
	PerformanceGainPerDay float64 `json:"performance_gain_per_day,omitempty"`
	CostReductionPerDay   float64 `json:"cost_reduction_per_day,omitempty"`
	ReliabilityGainPerDay float64 `json:"reliability_gain_per_day,omitempty"`

	// ImprovementsInWindow counts self-modifications applied in the window.
	ImprovementsInWindow int `json:"improvements_in_window,omitempty"`
}

// GateCheckRequest is an incoming measurement submission.
type GateCheckRequest struct {
	// AgentID is the measured agent (required).
	AgentID string `json:"agent_id"`

	// Current is the latest measurement window (required).
	Current MeasurementWindow `json:"current"`

	// Previous is the preceding window, absent for a first window.
	Previous *MeasurementWindow `json:"previous,omitempty"`

	// DaysAboveThreshold is collector-tracked rapid-growth history.
	DaysAboveThreshold int `json:"days_above_threshold,omitempty"`

	// SubmittedBy identifies the collector (optional, defaults to the
	// authenticated subject).
	SubmittedBy string `json:"submitted_by,omitempty"`
}

// ServeHTTP handles the HTTP request for a gate check submission.
func (h *GateCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	var request GateCheckRequest
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

	measurement, verr := toMeasurement(agentID, &request.Current, "current")
	if verr != nil {
		writeValidationError(w, verr)
		return
	}

	var previous *events.VelocityMeasurement
	if request.Previous != nil {
		previous, verr = toMeasurement(agentID, request.Previous, "previous")
		if verr != nil {
			writeValidationError(w, verr)
			return
		}
	}

	if request.DaysAboveThreshold < 0 {
		writeValidationError(w, &ValidationError{
			Field:   "days_above_threshold",
			Message: "days_above_threshold must be non-negative",
		})
		return
	}

	submittedBy := request.SubmittedBy
	if submittedBy == "" {
		if claims := middleware.GetUserFromContext(ctx); claims != nil {
			submittedBy, _ = claims.GetSubject()
		}
	}

	payload := events.VelocityMeasurementPayload{
		Measurement:        *measurement,
		Previous:           previous,
		DaysAboveThreshold: request.DaysAboveThreshold,
		SubmittedBy:        submittedBy,
		SubmittedAt:        time.Now().UTC(),
	}

	if publishErr := h.publisher.Publish(ctx, h.cfg.QueueVelocityMeasurementsName, payload); publishErr != nil {
		log.WithError(publishErr).Error("failed to publish velocity measurement",
			"agent_id", agentID.String(),
		)
		writeErrorResponse(w, http.StatusInternalServerError, "queue_error",
			"Failed to queue measurement for gate evaluation", nil)
		return
	}

	log.Info("velocity measurement queued",
		"agent_id", agentID.String(),
		"capability_gain_per_day", measurement.CapabilityGainPerDay,
		"submitted_by", submittedBy,
	)

	writeSuccessResponse(w, http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		ID:      events.MeasurementKey(agentID, measurement.WindowStart, measurement.WindowEnd),
		Message: "Measurement queued for gate evaluation",
	})
}

// toMeasurement converts a submitted window into a validated measurement.
func toMeasurement(
	agentID events.AgentID,
	window *MeasurementWindow,
	field string,
) (*events.VelocityMeasurement, *ValidationError) {
	m, err := events.NewVelocityMeasurement(
		agentID,
		window.WindowStart,
		window.WindowEnd,
		window.CapabilityGainPercent,
	)
	if err != nil {
		return nil, &ValidationError{Field: field, Message: err.Error()}
	}

	m.PerformanceGainPerDay = window.PerformanceGainPerDay
	m.CostReductionPerDay = window.CostReductionPerDay
	m.ReliabilityGainPerDay = window.ReliabilityGainPerDay
	m.ImprovementsInWindow = window.ImprovementsInWindow
	if window.ImprovementsInWindow > 0 {
		m.ImprovementRatePerDay = float64(window.ImprovementsInWindow) / m.WindowDays
	}

	if err = m.Validate(); err != nil {
		return nil, &ValidationError{Field: field, Message: err.Error()}
	}
	return m, nil
}
