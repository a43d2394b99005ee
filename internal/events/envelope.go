package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is the canonical envelope for governor events. Events are
// partitioned by agent so that per-agent audit history replays in order.
type Event struct {
	// === IDENTITY ===

	// EventID is a globally unique event identifier (XID - time-ordered).
	EventID EventID `json:"event_id"`

	// AgentID is the agent this event concerns (partition key).
	AgentID AgentID `json:"agent_id"`

	// EventType is the event type identifier (e.g. "gate.violation.detected").
	EventType EventType `json:"event_type"`

	// SchemaVersion is the semantic version of the payload schema.
	SchemaVersion string `json:"schema_version"`

	// === ORDERING ===

	// SequenceNumber is a monotonically increasing number within the
	// agent's event stream. Starts at 1.
	SequenceNumber uint64 `json:"sequence_number"`

	// CreatedAt is the wall clock timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`

	// === CAUSALITY ===

	// CausationID is the event ID that directly caused this event.
	CausationID EventID `json:"causation_id,omitempty"`

	// CorrelationID ties together all events spawned by one measurement
	// or proposal submission.
	CorrelationID EventID `json:"correlation_id"`

	// === PAYLOAD ===

	// Payload is the JSON-encoded event payload. Type determined by EventType.
	Payload json.RawMessage `json:"payload"`

	// PayloadChecksum is the SHA-256 checksum of the serialized payload.
	PayloadChecksum string `json:"payload_checksum"`

	// === METADATA ===

	// Metadata contains producer information.
	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata contains producer information.
type EventMetadata struct {
	// ProducerID identifies the service that produced this event.
	ProducerID string `json:"producer_id"`

	// ProducerVersion is the version of the producer service.
	ProducerVersion string `json:"producer_version"`

	// Environment identifies the deployment environment.
	Environment string `json:"environment"`

	// Tags are arbitrary key-value pairs for filtering/routing.
	Tags map[string]string `json:"tags,omitempty"`
}

// EventBuilder provides a fluent interface for constructing events.
type EventBuilder struct {
	event Event
	err   error
}

// NewEventBuilder creates a new event builder.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: Event{
			EventID:       NewEventID(),
			SchemaVersion: "1.0.0",
			CreatedAt:     time.Now().UTC(),
		},
	}
}

// WithAgentID sets the agent ID.
func (b *EventBuilder) WithAgentID(id AgentID) *EventBuilder {
	b.event.AgentID = id
	return b
}

// WithEventType sets the event type.
func (b *EventBuilder) WithEventType(t EventType) *EventBuilder {
	b.event.EventType = t
	return b
}

// WithSequence sets the sequence number.
func (b *EventBuilder) WithSequence(seq uint64) *EventBuilder {
	b.event.SequenceNumber = seq
	return b
}

// WithCausation sets the causation ID (the event that caused this one).
func (b *EventBuilder) WithCausation(id EventID) *EventBuilder {
	b.event.CausationID = id
	return b
}

// WithCorrelation sets the correlation ID (root event ID).
func (b *EventBuilder) WithCorrelation(id EventID) *EventBuilder {
	b.event.CorrelationID = id
	return b
}

// WithPayload sets the event payload.
func (b *EventBuilder) WithPayload(payload any) *EventBuilder {
	if b.err != nil {
		return b
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.err = fmt.Errorf("marshal payload: %w", err)
		return b
	}

	b.event.Payload = data
	b.event.PayloadChecksum = computeChecksum(data)
	return b
}

// WithMetadata sets the event metadata.
func (b *EventBuilder) WithMetadata(meta EventMetadata) *EventBuilder {
	b.event.Metadata = meta
	return b
}

// Build constructs the final event.
func (b *EventBuilder) Build() (*Event, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.event.AgentID.IsZero() {
		return nil, fmt.Errorf("agent ID is required")
	}
	if b.event.EventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if b.event.CorrelationID.IsZero() {
		return nil, fmt.Errorf("correlation ID is required")
	}
	if len(b.event.Payload) == 0 {
		return nil, fmt.Errorf("payload is required")
	}

	return &b.event, nil
}

// MustBuild constructs the event, panicking on error.
func (b *EventBuilder) MustBuild() *Event {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// computeChecksum computes SHA-256 checksum of data.
func computeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies the payload checksum.
func (e *Event) VerifyChecksum() bool {
	return e.PayloadChecksum == computeChecksum(e.Payload)
}

// UnmarshalPayload unmarshals the payload into the given type.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Key returns the partition key for this event.
func (e *Event) Key() string {
	return e.AgentID.String()
}
