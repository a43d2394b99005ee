package gate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/agenthive/governor/internal/events"
)

// ImprovementProposalHandler pre-flight-checks proposed improvements from
// the mutation engine before they are applied.
type ImprovementProposalHandler struct {
	policy       GatePolicy
	emitter      EventsEmitter
	checkedQueue string
}

// NewImprovementProposalHandler creates the proposal subscriber handler.
func NewImprovementProposalHandler(
	policy GatePolicy,
	emitter EventsEmitter,
	checkedQueue string,
) *ImprovementProposalHandler {
	return &ImprovementProposalHandler{
		policy:       policy,
		emitter:      emitter,
		checkedQueue: checkedQueue,
	}
}

// Handle processes an incoming improvement proposal message.
func (h *ImprovementProposalHandler) Handle(
	ctx context.Context,
	_ map[string]string,
	payload []byte,
) error {
	var msg events.ImprovementProposalPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal improvement proposal: %w", err)
	}

	result, err := BlockImprovementIfExceedsGate(msg.AgentID, msg.Proposed, msg.CurrentVelocity, h.policy)
	if err != nil {
		return fmt.Errorf("projection failed: %w", err)
	}

	util.Log(ctx).Info("improvement proposal projected",
		"agent_id", msg.AgentID.String(),
		"allowed", result.Allowed,
		"projected_rate", result.ProjectedGrowthRate,
	)

	return h.emitter.Emit(ctx, h.checkedQueue, &events.ProjectionCompletedPayload{
		AgentID:             msg.AgentID,
		Allowed:             result.Allowed,
		Reason:              result.Reason,
		ProjectedGrowthRate: result.ProjectedGrowthRate,
	})
}
