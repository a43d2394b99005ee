package config

import (
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/agenthive/governor/apps/governor/service/gate"
)

// GovernorConfig defines configuration for the governor service. The
// governor enforces capability growth gates: it evaluates velocity
// measurements, pre-flight-checks proposed improvements, and tracks
// approval requests for blocked gate crossings.
type GovernorConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Queue Configuration
	// ==========================================================================

	// Velocity measurement queue (incoming from the telemetry collector)
	QueueVelocityMeasurementsName string `envDefault:"governor.velocity.measurements" env:"QUEUE_VELOCITY_MEASUREMENTS_NAME"`
	QueueVelocityMeasurementsURI  string `envDefault:"mem://governor.velocity.measurements" env:"QUEUE_VELOCITY_MEASUREMENTS_URI"`

	// Improvement proposal queue (incoming from the mutation engine)
	QueueImprovementProposalsName string `envDefault:"governor.improvement.proposals" env:"QUEUE_IMPROVEMENT_PROPOSALS_NAME"`
	QueueImprovementProposalsURI  string `envDefault:"mem://governor.improvement.proposals" env:"QUEUE_IMPROVEMENT_PROPOSALS_URI"`

	// Approval review queue (incoming from the gateway)
	QueueApprovalReviewsName string `envDefault:"governor.approval.reviews" env:"QUEUE_APPROVAL_REVIEWS_NAME"`
	QueueApprovalReviewsURI  string `envDefault:"mem://governor.approval.reviews" env:"QUEUE_APPROVAL_REVIEWS_URI"`

	// Gate check result queue (outgoing verdicts)
	QueueGateCheckedName string `envDefault:"governor.gate.checked" env:"QUEUE_GATE_CHECKED_NAME"`
	QueueGateCheckedURI  string `envDefault:"mem://governor.gate.checked" env:"QUEUE_GATE_CHECKED_URI"`

	// Violation audit queue (outgoing breaches)
	QueueGateViolationsName string `envDefault:"governor.gate.violations" env:"QUEUE_GATE_VIOLATIONS_NAME"`
	QueueGateViolationsURI  string `envDefault:"mem://governor.gate.violations" env:"QUEUE_GATE_VIOLATIONS_URI"`

	// ==========================================================================
	// Gate Policy
	// ==========================================================================

	// MaxGrowthPerDay is the maximum allowed capability gain per day, in
	// percent. The limit is inclusive.
	MaxGrowthPerDay float64 `envDefault:"10.0" env:"MAX_GROWTH_PER_DAY"`

	// EnforceGates controls whether violations block. When false, violations
	// are detected and recorded but growth is let through.
	EnforceGates bool `envDefault:"true" env:"ENFORCE_GATES"`

	// RapidGrowthThreshold is the advisory trend threshold, in percent/day.
	RapidGrowthThreshold float64 `envDefault:"8.0" env:"RAPID_GROWTH_THRESHOLD"`

	// CriticalExcessRatio and BlockedExcessRatio grade violation severity by
	// excess as a fraction of the limit.
	CriticalExcessRatio float64 `envDefault:"0.5" env:"CRITICAL_EXCESS_RATIO"`
	BlockedExcessRatio  float64 `envDefault:"0.2" env:"BLOCKED_EXCESS_RATIO"`

	// Per-dimension contribution weights for projection and budgeting.
	PerformanceWeight float64 `envDefault:"0.4" env:"PERFORMANCE_WEIGHT"`
	CostWeight        float64 `envDefault:"0.3" env:"COST_WEIGHT"`
	ReliabilityWeight float64 `envDefault:"0.3" env:"RELIABILITY_WEIGHT"`

	// ==========================================================================
	// Coordination
	// ==========================================================================

	// RedisURI enables Redis-backed locking and deduplication when set.
	// Empty means in-process implementations (single-instance deployments).
	RedisURI string `envDefault:"" env:"REDIS_URI"`

	// ApprovalLockTTL bounds how long one review transaction may hold the
	// per-request lock.
	ApprovalLockTTL time.Duration `envDefault:"30s" env:"APPROVAL_LOCK_TTL"`

	// MeasurementDedupTTL is how long a processed measurement window stays
	// claimed. Redelivery inside this horizon is dropped.
	MeasurementDedupTTL time.Duration `envDefault:"72h" env:"MEASUREMENT_DEDUP_TTL"`
}

// GatePolicy returns the gate policy configured for this service.
func (c *GovernorConfig) GatePolicy() gate.GatePolicy {
	return gate.GatePolicy{
		MaxGrowthPerDay:      c.MaxGrowthPerDay,
		EnforceGates:         c.EnforceGates,
		RapidGrowthThreshold: c.RapidGrowthThreshold,
		CriticalExcessRatio:  c.CriticalExcessRatio,
		BlockedExcessRatio:   c.BlockedExcessRatio,
		PerformanceWeight:    c.PerformanceWeight,
		CostWeight:           c.CostWeight,
		ReliabilityWeight:    c.ReliabilityWeight,
	}
}
