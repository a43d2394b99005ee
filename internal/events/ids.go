// Package events provides the event envelope, payloads and coordination
// primitives shared by the governor services.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Identifiers are XIDs: 20 characters, base32-hex encoded, 12 bytes,
// time-ordered and coordination-free. Smaller than a UUID and sortable
// by creation time, which keeps audit listings naturally chronological.

// AgentID identifies an agent in the population. Agents are registered
// externally; the governor treats the ID as opaque but validates the
// encoding at the boundary.
type AgentID struct {
	id xid.ID
}

// NewAgentID generates a new agent ID.
func NewAgentID() AgentID {
	return AgentID{id: xid.New()}
}

// ParseAgentID parses an agent ID from string.
func ParseAgentID(s string) (AgentID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return AgentID{}, fmt.Errorf("invalid agent ID %q: %w", s, err)
	}
	return AgentID{id: id}, nil
}

// MustParseAgentID parses an agent ID, panicking on error.
func MustParseAgentID(s string) AgentID {
	id, err := ParseAgentID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation.
func (a AgentID) String() string {
	return a.id.String()
}

// Short returns the first 8 characters for human-readable contexts.
func (a AgentID) Short() string {
	s := a.id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// IsZero returns true if this is the zero value.
func (a AgentID) IsZero() bool {
	return a.id.IsNil()
}

// Compare returns -1, 0, or 1 comparing two IDs.
func (a AgentID) Compare(other AgentID) int {
	return a.id.Compare(other.id)
}

// MarshalJSON implements json.Marshaler.
func (a AgentID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AgentID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	a.id = id
	return nil
}

// EventID identifies an event emitted by the governor.
type EventID struct {
	id xid.ID
}

// NewEventID generates a new event ID.
func NewEventID() EventID {
	return EventID{id: xid.New()}
}

// ParseEventID parses an event ID from string.
func ParseEventID(s string) (EventID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event ID %q: %w", s, err)
	}
	return EventID{id: id}, nil
}

// String returns the string representation.
func (e EventID) String() string {
	return e.id.String()
}

// Time returns the timestamp embedded in the ID.
func (e EventID) Time() time.Time {
	return e.id.Time()
}

// IsZero returns true if this is the zero value.
func (e EventID) IsZero() bool {
	return e.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (e EventID) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EventID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// RequestID identifies an approval request. Assigned by the approval
// workflow at creation; the repository persists it as-is.
type RequestID struct {
	id xid.ID
}

// NewRequestID generates a new approval request ID.
func NewRequestID() RequestID {
	return RequestID{id: xid.New()}
}

// ParseRequestID parses a request ID from string.
func ParseRequestID(s string) (RequestID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return RequestID{}, fmt.Errorf("invalid request ID %q: %w", s, err)
	}
	return RequestID{id: id}, nil
}

// String returns the string representation.
func (r RequestID) String() string {
	return r.id.String()
}

// Time returns the timestamp embedded in the ID.
func (r RequestID) Time() time.Time {
	return r.id.Time()
}

// IsZero returns true if this is the zero value.
func (r RequestID) IsZero() bool {
	return r.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (r RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// MeasurementKey derives the deduplication key for a measurement window.
// Two deliveries of the same agent+window must evaluate only once.
func MeasurementKey(agentID AgentID, windowStart, windowEnd time.Time) string {
	return fmt.Sprintf("measurement:%s:%d:%d", agentID.String(), windowStart.Unix(), windowEnd.Unix())
}

// ApprovalLockKey derives the lock key serializing review transitions
// on a single approval request.
func ApprovalLockKey(requestID RequestID) string {
	return fmt.Sprintf("approval:%s", requestID.String())
}
