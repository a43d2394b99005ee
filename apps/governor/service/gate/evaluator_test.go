package gate

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/governor/internal/events"
)

func velocityWithRate(t *testing.T, rate float64) events.VelocityMeasurement {
	t.Helper()
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return events.VelocityMeasurement{
		AgentID:               events.NewAgentID(),
		WindowStart:           start,
		WindowEnd:             start.Add(24 * time.Hour),
		WindowDays:            1,
		CapabilityGainPercent: rate,
		CapabilityGainPerDay:  rate,
		MeasuredAt:            start.Add(24 * time.Hour),
	}
}

func trendFor(velocity events.VelocityMeasurement) events.VelocityTrend {
	return events.NewVelocityTrend(velocity, nil, DefaultRapidGrowthThreshold, 0)
}

func TestCheckCapabilityGates_WithinLimit(t *testing.T) {
	velocity := velocityWithRate(t, 5.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Violation)
	assert.NotEmpty(t, result.Recommendations)
}

func TestCheckCapabilityGates_LimitIsInclusive(t *testing.T) {
	velocity := velocityWithRate(t, 10.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Violation)
}

func TestCheckCapabilityGates_ZeroGrowthAllowed(t *testing.T) {
	velocity := velocityWithRate(t, 0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Violation)
	assert.NotEmpty(t, result.Recommendations)
}

func TestCheckCapabilityGates_Violation(t *testing.T) {
	velocity := velocityWithRate(t, 12.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "exceeds capability gate limit")

	require.NotNil(t, result.Violation)
	v := result.Violation
	assert.Equal(t, events.ViolationGrowthExceeded, v.ViolationType)
	assert.InDelta(t, 12.0, v.CurrentGrowthRate, 1e-9)
	assert.InDelta(t, 10.0, v.MaxAllowedGrowthRate, 1e-9)
	assert.InDelta(t, 2.0, v.ExcessGrowth, 1e-9)
	assert.Equal(t, events.GateActionBlocked, v.ActionTaken)
	assert.True(t, v.RequiresApproval)
	assert.Equal(t, events.ApprovalStatusPending, v.ApprovalStatus)
}

func TestCheckCapabilityGates_EnforcementDisabledFlags(t *testing.T) {
	velocity := velocityWithRate(t, 12.0)

	policy := DefaultGatePolicy()
	policy.EnforceGates = false

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), policy)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Contains(t, result.Reason, "enforcement is disabled")

	require.NotNil(t, result.Violation)
	assert.Equal(t, events.GateActionFlagged, result.Violation.ActionTaken)
}

func TestCheckCapabilityGates_SeverityClassification(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected events.Severity
	}{
		{"just above limit is warning", 11.0, events.SeverityWarning},
		{"excess ratio exactly 0.2 is warning", 12.0, events.SeverityWarning},
		{"excess ratio 0.3 is blocked", 13.0, events.SeverityBlocked},
		{"excess ratio exactly 0.5 is blocked", 15.0, events.SeverityBlocked},
		{"excess ratio 0.7 is critical", 17.0, events.SeverityCritical},
		{"arbitrarily large growth is critical", 1e6, events.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			velocity := velocityWithRate(t, tt.rate)

			result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
			require.NoError(t, err)
			require.NotNil(t, result.Violation)
			assert.Equal(t, tt.expected, result.Violation.Severity)
		})
	}
}

func TestCheckCapabilityGates_SeverityScalesWithLimit(t *testing.T) {
	policy := DefaultGatePolicy()
	policy.MaxGrowthPerDay = 20.0

	// Excess 7 against limit 20 is ratio 0.35: blocked, where the same
	// rate against the default limit would be critical.
	velocity := velocityWithRate(t, 27.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), policy)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, events.SeverityBlocked, result.Violation.Severity)
}

func TestCheckCapabilityGates_BlockedScenario(t *testing.T) {
	// rate 15 against limit 10: excess 5.0, ratio exactly 0.5.
	velocity := velocityWithRate(t, 15.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	require.NotNil(t, result.Violation)
	assert.InDelta(t, 5.0, result.Violation.ExcessGrowth, 1e-9)
	assert.Equal(t, events.SeverityBlocked, result.Violation.Severity)
}

func TestCheckCapabilityGates_CriticalScenario(t *testing.T) {
	// rate 17 against limit 10: excess 7.0, ratio 0.7.
	velocity := velocityWithRate(t, 17.0)

	result, err := CheckCapabilityGates(velocity, trendFor(velocity), DefaultGatePolicy())
	require.NoError(t, err)

	require.NotNil(t, result.Violation)
	assert.InDelta(t, 7.0, result.Violation.ExcessGrowth, 1e-9)
	assert.Equal(t, events.SeverityCritical, result.Violation.Severity)
}

func TestCheckCapabilityGates_AcceleratingRecommendation(t *testing.T) {
	previous := velocityWithRate(t, 8.0)
	current := velocityWithRate(t, 12.0)
	current.AgentID = previous.AgentID

	trend := events.NewVelocityTrend(current, &previous, DefaultRapidGrowthThreshold, 1)
	require.True(t, trend.IsAccelerating)

	result, err := CheckCapabilityGates(current, trend, DefaultGatePolicy())
	require.NoError(t, err)

	var mentionsAcceleration bool
	for _, rec := range result.Recommendations {
		if strings.Contains(strings.ToLower(rec), "accelerat") {
			mentionsAcceleration = true
		}
	}
	assert.True(t, mentionsAcceleration, "recommendations: %v", result.Recommendations)
}

func TestCheckCapabilityGates_Deterministic(t *testing.T) {
	velocity := velocityWithRate(t, 13.7)
	trend := trendFor(velocity)
	policy := DefaultGatePolicy()

	first, err := CheckCapabilityGates(velocity, trend, policy)
	require.NoError(t, err)
	second, err := CheckCapabilityGates(velocity, trend, policy)
	require.NoError(t, err)

	assert.Equal(t, first.Allowed, second.Allowed)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	require.NotNil(t, first.Violation)
	require.NotNil(t, second.Violation)
	assert.Equal(t, first.Violation.CurrentGrowthRate, second.Violation.CurrentGrowthRate)
	assert.Equal(t, first.Violation.ExcessGrowth, second.Violation.ExcessGrowth)
}

func TestCheckCapabilityGates_InvalidInput(t *testing.T) {
	velocity := velocityWithRate(t, 5.0)

	t.Run("invalid policy", func(t *testing.T) {
		policy := DefaultGatePolicy()
		policy.MaxGrowthPerDay = 0

		_, err := CheckCapabilityGates(velocity, trendFor(velocity), policy)
		assert.Error(t, err)
	})

	t.Run("negative limit", func(t *testing.T) {
		policy := DefaultGatePolicy()
		policy.MaxGrowthPerDay = -10

		_, err := CheckCapabilityGates(velocity, trendFor(velocity), policy)
		assert.Error(t, err)
	})

	t.Run("non-finite velocity", func(t *testing.T) {
		bad := velocity
		bad.CapabilityGainPerDay = math.NaN()

		_, err := CheckCapabilityGates(bad, trendFor(velocity), DefaultGatePolicy())
		assert.Error(t, err)
	})
}
