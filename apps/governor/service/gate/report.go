package gate

import (
	"fmt"
	"strings"
)

// GenerateGateReport renders a gate-check result as human-readable text.
// Pure presentation; every decision was made upstream.
func GenerateGateReport(result *GateCheckResult) string {
	var b strings.Builder

	b.WriteString("=== Capability Gate Report ===\n")

	if result.Violation != nil {
		fmt.Fprintf(&b, "Agent: %s\n", result.Violation.AgentID.String())
	} else if result.ApprovalRequest != nil {
		fmt.Fprintf(&b, "Agent: %s\n", result.ApprovalRequest.AgentID.String())
	}

	if result.Allowed {
		b.WriteString("Status: ALLOWED\n")
	} else {
		b.WriteString("Status: BLOCKED\n")
	}
	fmt.Fprintf(&b, "Reason: %s\n", result.Reason)

	if v := result.Violation; v != nil {
		b.WriteString("\nViolation Details:\n")
		fmt.Fprintf(&b, "  Severity: %s\n", v.Severity)
		fmt.Fprintf(&b, "  Current growth rate: %.2f%%/day\n", v.CurrentGrowthRate)
		fmt.Fprintf(&b, "  Maximum allowed: %.2f%%/day\n", v.MaxAllowedGrowthRate)
		fmt.Fprintf(&b, "  Excess: %.2f%%/day\n", v.ExcessGrowth)
		fmt.Fprintf(&b, "  Action taken: %s\n", v.ActionTaken)
	}

	if len(result.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for i, rec := range result.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, rec)
		}
	}

	if req := result.ApprovalRequest; req != nil {
		b.WriteString("\nApproval Request:\n")
		fmt.Fprintf(&b, "  ID: %s\n", req.ID.String())
		fmt.Fprintf(&b, "  Status: %s\n", strings.ToUpper(string(req.Status)))
		if req.ReviewedBy != "" {
			fmt.Fprintf(&b, "  Reviewed by: %s\n", req.ReviewedBy)
		}
	}

	return b.String()
}
