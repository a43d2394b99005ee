package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSafeImprovementLimit_Headroom(t *testing.T) {
	velocity := velocityWithRate(t, 5.0)

	limits, err := CalculateSafeImprovementLimit(velocity, DefaultGatePolicy())
	require.NoError(t, err)

	assert.InDelta(t, 5.0, limits.TotalCapabilityBudget, 1e-9)
	assert.InDelta(t, 12.5, limits.MaxPerformanceGain, 1e-9)
	assert.InDelta(t, 16.666666, limits.MaxCostReduction, 1e-3)
	assert.InDelta(t, 16.666666, limits.MaxReliabilityGain, 1e-3)
}

func TestCalculateSafeImprovementLimit_AtLimit(t *testing.T) {
	velocity := velocityWithRate(t, 10.0)

	limits, err := CalculateSafeImprovementLimit(velocity, DefaultGatePolicy())
	require.NoError(t, err)

	assert.Zero(t, limits.TotalCapabilityBudget)
	assert.Zero(t, limits.MaxPerformanceGain)
	assert.Zero(t, limits.MaxCostReduction)
	assert.Zero(t, limits.MaxReliabilityGain)
}

func TestCalculateSafeImprovementLimit_AboveLimit(t *testing.T) {
	velocity := velocityWithRate(t, 15.0)

	limits, err := CalculateSafeImprovementLimit(velocity, DefaultGatePolicy())
	require.NoError(t, err)

	// Never negative, exactly zero.
	assert.Zero(t, limits.TotalCapabilityBudget)
	assert.Zero(t, limits.MaxPerformanceGain)
	assert.Zero(t, limits.MaxCostReduction)
	assert.Zero(t, limits.MaxReliabilityGain)
}

func TestCalculateSafeImprovementLimit_CustomLimit(t *testing.T) {
	velocity := velocityWithRate(t, 5.0)

	policy := DefaultGatePolicy()
	policy.MaxGrowthPerDay = 25.0

	limits, err := CalculateSafeImprovementLimit(velocity, policy)
	require.NoError(t, err)

	assert.InDelta(t, 20.0, limits.TotalCapabilityBudget, 1e-9)
	assert.InDelta(t, 50.0, limits.MaxPerformanceGain, 1e-9)
}

func TestCalculateSafeImprovementLimit_InvalidPolicy(t *testing.T) {
	velocity := velocityWithRate(t, 5.0)

	policy := DefaultGatePolicy()
	policy.MaxGrowthPerDay = -1

	_, err := CalculateSafeImprovementLimit(velocity, policy)
	assert.Error(t, err)
}
