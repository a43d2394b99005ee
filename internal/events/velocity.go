package events

import (
	"fmt"
	"math"
	"time"
)

// VelocityMeasurement is an immutable snapshot of one agent's capability
// growth over one measurement window. Produced by the external telemetry
// collector; superseded, never mutated, by the next window's measurement.
type VelocityMeasurement struct {
	// AgentID is the measured agent.
	AgentID AgentID `json:"agent_id"`

	// WindowStart and WindowEnd bound the measurement window.
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// WindowDays is the window length in days, derived from the bounds.
	WindowDays float64 `json:"window_days"`

	// CapabilityGainPercent is the cumulative capability gain over the window.
	CapabilityGainPercent float64 `json:"capability_gain_percent"`

	// CapabilityGainPerDay is the daily growth rate the gate policy limits.
	CapabilityGainPerDay float64 `json:"capability_gain_per_day"`

	// Per-dimension daily rates. Their weighted sum approximates
	// CapabilityGainPerDay.
	PerformanceGainPerDay float64 `json:"performance_gain_per_day"`
	CostReductionPerDay   float64 `json:"cost_reduction_per_day"`
	ReliabilityGainPerDay float64 `json:"reliability_gain_per_day"`

	// ImprovementsInWindow counts self-modifications applied in the window.
	ImprovementsInWindow  int     `json:"improvements_in_window"`
	ImprovementRatePerDay float64 `json:"improvement_rate_per_day"`

	// MeasuredAt is when the telemetry collector produced this snapshot.
	MeasuredAt time.Time `json:"measured_at"`
}

// NewVelocityMeasurement builds a measurement from window bounds and the
// cumulative gain, deriving WindowDays and CapabilityGainPerDay.
func NewVelocityMeasurement(
	agentID AgentID,
	windowStart, windowEnd time.Time,
	capabilityGainPercent float64,
) (*VelocityMeasurement, error) {
	if !windowEnd.After(windowStart) {
		return nil, fmt.Errorf("window end %s is not after window start %s",
			windowEnd.Format(time.RFC3339), windowStart.Format(time.RFC3339))
	}

	windowDays := windowEnd.Sub(windowStart).Hours() / 24

	m := &VelocityMeasurement{
		AgentID:               agentID,
		WindowStart:           windowStart,
		WindowEnd:             windowEnd,
		WindowDays:            windowDays,
		CapabilityGainPercent: capabilityGainPercent,
		CapabilityGainPerDay:  capabilityGainPercent / windowDays,
		MeasuredAt:            time.Now().UTC(),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the measurement invariants. Invalid measurements must be
// rejected before evaluation rather than producing nonsensical verdicts.
func (m *VelocityMeasurement) Validate() error {
	if m.AgentID.IsZero() {
		return fmt.Errorf("agent ID is required")
	}
	if !m.WindowEnd.After(m.WindowStart) {
		return fmt.Errorf("window end %s is not after window start %s",
			m.WindowEnd.Format(time.RFC3339), m.WindowStart.Format(time.RFC3339))
	}
	if m.WindowDays <= 0 || !isFinite(m.WindowDays) {
		return fmt.Errorf("window days must be positive and finite, got %v", m.WindowDays)
	}
	if m.ImprovementsInWindow < 0 {
		return fmt.Errorf("improvements in window must be non-negative, got %d", m.ImprovementsInWindow)
	}

	rates := map[string]float64{
		"capability_gain_percent":  m.CapabilityGainPercent,
		"capability_gain_per_day":  m.CapabilityGainPerDay,
		"performance_gain_per_day": m.PerformanceGainPerDay,
		"cost_reduction_per_day":   m.CostReductionPerDay,
		"reliability_gain_per_day": m.ReliabilityGainPerDay,
		"improvement_rate_per_day": m.ImprovementRatePerDay,
	}
	for name, v := range rates {
		if !isFinite(v) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}

	return nil
}

// VelocityTrend pairs a current measurement with the immediately preceding
// one (nil if none exists) and derives the direction of change.
type VelocityTrend struct {
	// Current is the latest measurement.
	Current VelocityMeasurement `json:"current"`

	// Previous is the preceding window's measurement, nil for a first window.
	Previous *VelocityMeasurement `json:"previous,omitempty"`

	// IsAccelerating and IsDecelerating report the sign of change in
	// CapabilityGainPerDay. Mutually exclusive; both false when there is
	// no previous window or the rate is unchanged.
	IsAccelerating bool `json:"is_accelerating"`
	IsDecelerating bool `json:"is_decelerating"`

	// AccelerationPercent is the relative change in the daily rate versus
	// the previous window. Zero when no previous rate exists to compare.
	AccelerationPercent float64 `json:"acceleration_percent"`

	// IsRapidGrowth reports the current rate exceeding the configured
	// rapid-growth threshold, independent of the hard gate.
	IsRapidGrowth bool `json:"is_rapid_growth"`

	// DaysAboveThreshold counts consecutive days the agent has spent above
	// the rapid-growth threshold, as tracked by the telemetry collector.
	DaysAboveThreshold int `json:"days_above_threshold"`
}

// NewVelocityTrend derives a trend from a current and optional previous
// measurement. rapidGrowthThreshold is the policy's advisory threshold;
// daysAboveThreshold is history the telemetry collector tracks.
func NewVelocityTrend(
	current VelocityMeasurement,
	previous *VelocityMeasurement,
	rapidGrowthThreshold float64,
	daysAboveThreshold int,
) VelocityTrend {
	t := VelocityTrend{
		Current:            current,
		Previous:           previous,
		IsRapidGrowth:      current.CapabilityGainPerDay > rapidGrowthThreshold,
		DaysAboveThreshold: daysAboveThreshold,
	}

	if previous == nil {
		return t
	}

	delta := current.CapabilityGainPerDay - previous.CapabilityGainPerDay
	switch {
	case delta > 0:
		t.IsAccelerating = true
	case delta < 0:
		t.IsDecelerating = true
	}

	if previous.CapabilityGainPerDay > 0 {
		t.AccelerationPercent = delta / previous.CapabilityGainPerDay * 100
	}

	return t
}

// ProposedImprovement is a not-yet-applied self-modification's estimated
// per-dimension daily deltas, supplied by the external mutation engine.
type ProposedImprovement struct {
	PerformanceGain float64 `json:"performance_gain"`
	CostReduction   float64 `json:"cost_reduction"`
	ReliabilityGain float64 `json:"reliability_gain"`
}

// Validate checks the proposal deltas are finite and non-negative.
func (p ProposedImprovement) Validate() error {
	deltas := map[string]float64{
		"performance_gain": p.PerformanceGain,
		"cost_reduction":   p.CostReduction,
		"reliability_gain": p.ReliabilityGain,
	}
	for name, v := range deltas {
		if !isFinite(v) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
