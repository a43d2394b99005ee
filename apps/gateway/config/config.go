package config

import (
	"github.com/pitabwire/frame/config"
)

// GatewayConfig defines configuration for the gateway service.
// The gateway is a lightweight HTTP API where telemetry collectors submit
// velocity measurements, mutation engines pre-flight improvement proposals,
// and operators review approval requests. Everything it accepts is queued
// to the governor for processing.
type GatewayConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Outgoing Queues (to the governor)
	// ==========================================================================

	// QueueVelocityMeasurementsName is the name of the measurement queue.
	QueueVelocityMeasurementsName string `envDefault:"governor.velocity.measurements" env:"QUEUE_VELOCITY_MEASUREMENTS_NAME"`

	// QueueVelocityMeasurementsURI is the URI of the measurement queue.
	QueueVelocityMeasurementsURI string `envDefault:"mem://governor.velocity.measurements" env:"QUEUE_VELOCITY_MEASUREMENTS_URI"`

	// QueueImprovementProposalsName is the name of the proposal queue.
	QueueImprovementProposalsName string `envDefault:"governor.improvement.proposals" env:"QUEUE_IMPROVEMENT_PROPOSALS_NAME"`

	// QueueImprovementProposalsURI is the URI of the proposal queue.
	QueueImprovementProposalsURI string `envDefault:"mem://governor.improvement.proposals" env:"QUEUE_IMPROVEMENT_PROPOSALS_URI"`

	// QueueApprovalReviewsName is the name of the approval review queue.
	QueueApprovalReviewsName string `envDefault:"governor.approval.reviews" env:"QUEUE_APPROVAL_REVIEWS_NAME"`

	// QueueApprovalReviewsURI is the URI of the approval review queue.
	QueueApprovalReviewsURI string `envDefault:"mem://governor.approval.reviews" env:"QUEUE_APPROVAL_REVIEWS_URI"`

	// ==========================================================================
	// Rate Limiting
	// ==========================================================================

	// RateLimitRequestsPerMinute limits requests per minute per client.
	RateLimitRequestsPerMinute int `envDefault:"120" env:"RATE_LIMIT_REQUESTS_PER_MINUTE"`

	// RateLimitBurstSize is the burst size for rate limiting.
	RateLimitBurstSize int `envDefault:"20" env:"RATE_LIMIT_BURST_SIZE"`

	// ==========================================================================
	// Request Validation
	// ==========================================================================

	// MaxRequestBodySize is the maximum accepted request body in bytes.
	MaxRequestBodySize int64 `envDefault:"262144" env:"MAX_REQUEST_BODY_SIZE"` // 256KB

	// MaxReviewNotesLength bounds reviewer notes on approval decisions.
	MaxReviewNotesLength int `envDefault:"4096" env:"MAX_REVIEW_NOTES_LENGTH"`

	// ApprovalListLimit caps how many requests one listing call returns.
	ApprovalListLimit int `envDefault:"100" env:"APPROVAL_LIST_LIMIT"`
}
