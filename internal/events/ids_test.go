package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentID_RoundTrip(t *testing.T) {
	id := NewAgentID()
	assert.False(t, id.IsZero())
	assert.Len(t, id.String(), 20)

	parsed, err := ParseAgentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, 0, id.Compare(parsed))
}

func TestAgentID_ParseInvalid(t *testing.T) {
	_, err := ParseAgentID("not-an-xid")
	assert.Error(t, err)

	_, err = ParseAgentID("")
	assert.Error(t, err)
}

func TestAgentID_JSON(t *testing.T) {
	id := NewAgentID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded AgentID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id.String(), decoded.String())
}

func TestAgentID_Short(t *testing.T) {
	id := NewAgentID()
	assert.Len(t, id.Short(), 8)
	assert.Equal(t, id.String()[:8], id.Short())
}

func TestEventID_TimeOrdered(t *testing.T) {
	first := NewEventID()
	second := NewEventID()

	assert.False(t, first.Time().After(second.Time()))
}

func TestRequestID_ZeroValue(t *testing.T) {
	var id RequestID
	assert.True(t, id.IsZero())
}

func TestMeasurementKey_Deterministic(t *testing.T) {
	agentID := NewAgentID()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	key1 := MeasurementKey(agentID, start, end)
	key2 := MeasurementKey(agentID, start, end)
	assert.Equal(t, key1, key2)

	other := MeasurementKey(agentID, start, end.Add(time.Hour))
	assert.NotEqual(t, key1, other)
}

func TestApprovalLockKey(t *testing.T) {
	id := NewRequestID()
	assert.Equal(t, "approval:"+id.String(), ApprovalLockKey(id))
}
