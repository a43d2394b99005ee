package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/governor/internal/events"
)

func seedRecord(t *testing.T, repo ApprovalRepository, createdAt time.Time) *ApprovalRecord {
	t.Helper()

	record := &ApprovalRecord{
		ID:                events.NewRequestID().String(),
		AgentID:           events.NewAgentID().String(),
		RequestType:       string(events.RequestTypeGateCrossing),
		Status:            string(events.ApprovalStatusPending),
		CurrentGrowthRate: 15.0,
		Justification:     "test",
		CreatedAt:         createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), record))
	return record
}

func TestMemoryApprovalRepository_Resolve(t *testing.T) {
	repo := NewMemoryApprovalRepository()
	ctx := context.Background()
	record := seedRecord(t, repo, time.Now())

	err := repo.Resolve(ctx, record.ID, events.ApprovalStatusApproved, "alice", "ok", time.Now())
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, string(events.ApprovalStatusApproved), stored.Status)
	assert.Equal(t, "alice", stored.ReviewedBy)
	require.NotNil(t, stored.ReviewedAt)
}

func TestMemoryApprovalRepository_ResolveIsOptimistic(t *testing.T) {
	repo := NewMemoryApprovalRepository()
	ctx := context.Background()
	record := seedRecord(t, repo, time.Now())

	require.NoError(t, repo.Resolve(ctx, record.ID, events.ApprovalStatusRejected, "bob", "no", time.Now()))

	// The second terminal update loses the status check.
	err := repo.Resolve(ctx, record.ID, events.ApprovalStatusApproved, "carol", "yes", time.Now())
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	stored, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, string(events.ApprovalStatusRejected), stored.Status)
	assert.Equal(t, "bob", stored.ReviewedBy)
}

func TestMemoryApprovalRepository_ResolveMissing(t *testing.T) {
	repo := NewMemoryApprovalRepository()

	err := repo.Resolve(context.Background(), events.NewRequestID().String(),
		events.ApprovalStatusApproved, "alice", "", time.Now())
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestMemoryApprovalRepository_ListByStatusOrdersOldestFirst(t *testing.T) {
	repo := NewMemoryApprovalRepository()
	ctx := context.Background()

	now := time.Now()
	older := seedRecord(t, repo, now.Add(-time.Hour))
	newer := seedRecord(t, repo, now)

	pending, err := repo.ListByStatus(ctx, events.ApprovalStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)

	limited, err := repo.ListByStatus(ctx, events.ApprovalStatusPending, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, older.ID, limited[0].ID)
}

func TestApprovalRecord_RoundTrip(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	velocity := events.VelocityMeasurement{
		AgentID:               events.NewAgentID(),
		WindowStart:           start,
		WindowEnd:             start.Add(24 * time.Hour),
		WindowDays:            1,
		CapabilityGainPercent: 15,
		CapabilityGainPerDay:  15,
		MeasuredAt:            start.Add(24 * time.Hour),
	}

	request := &events.ApprovalRequest{
		ID:                events.NewRequestID(),
		AgentID:           velocity.AgentID,
		RequestType:       events.RequestTypeGateCrossing,
		Status:            events.ApprovalStatusPending,
		CurrentGrowthRate: 15,
		Justification:     "window spike from cache warmup",
		Velocity:          velocity,
		Trend:             events.NewVelocityTrend(velocity, nil, 8.0, 2),
		CreatedAt:         time.Now().UTC(),
	}

	record, err := NewApprovalRecord(request)
	require.NoError(t, err)

	restored, err := record.ToApprovalRequest()
	require.NoError(t, err)

	assert.Equal(t, request.ID.String(), restored.ID.String())
	assert.Equal(t, request.Justification, restored.Justification)
	assert.InDelta(t, 15.0, restored.Velocity.CapabilityGainPerDay, 1e-9)
	assert.Equal(t, 2, restored.Trend.DaysAboveThreshold)
}

func TestMemoryViolationRepository(t *testing.T) {
	repo := NewMemoryViolationRepository()
	ctx := context.Background()

	agentID := events.NewAgentID()
	now := time.Now()

	for i, severity := range []events.Severity{events.SeverityWarning, events.SeverityCritical} {
		require.NoError(t, repo.Create(ctx, &ViolationRecord{
			ID:           events.NewEventID().String(),
			AgentID:      agentID.String(),
			Severity:     string(severity),
			ExcessGrowth: float64(i + 1),
			DetectedAt:   now.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := repo.ListByAgent(ctx, agentID.String(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Newest first.
	assert.Equal(t, string(events.SeverityCritical), rows[0].Severity)

	count, err := repo.CountBySeverity(ctx, events.SeverityCritical, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryVelocityRepository_Upsert(t *testing.T) {
	repo := NewMemoryVelocityRepository()
	ctx := context.Background()

	agentID := events.NewAgentID().String()

	require.NoError(t, repo.Upsert(ctx, &VelocityRecord{AgentID: agentID, CapabilityGainPerDay: 4.0}))
	require.NoError(t, repo.Upsert(ctx, &VelocityRecord{AgentID: agentID, CapabilityGainPerDay: 9.0}))

	record, err := repo.GetByAgent(ctx, agentID)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, record.CapabilityGainPerDay, 1e-9)

	_, err = repo.GetByAgent(ctx, events.NewAgentID().String())
	assert.ErrorIs(t, err, ErrVelocityNotFound)
}
