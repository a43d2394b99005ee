package gate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

type approvalFixture struct {
	service *ApprovalService
	repo    *repository.MemoryApprovalRepository
	locks   *events.InMemoryLockManager
	emitter *fakeEmitter
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	f := &approvalFixture{
		repo:    repository.NewMemoryApprovalRepository(),
		locks:   events.NewInMemoryLockManager(),
		emitter: &fakeEmitter{},
	}
	t.Cleanup(func() { _ = f.locks.Close() })

	f.service = NewApprovalService(f.repo, f.locks, 10*time.Second, f.emitter, "governor.gate.checked")
	return f
}

func (f *approvalFixture) seedPending(t *testing.T) events.RequestID {
	t.Helper()

	request := pendingRequest(t)
	record, err := repository.NewApprovalRecord(&request)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), record))
	return request.ID
}

func TestApprovalService_Approve(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	id := f.seedPending(t)

	resolved, err := f.service.Review(ctx, id, true, "alice", "audited")
	require.NoError(t, err)

	assert.Equal(t, events.ApprovalStatusApproved, resolved.Status)
	assert.Equal(t, "alice", resolved.ReviewedBy)

	stored, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, events.ApprovalStatusApproved, stored.Status)
	require.NotNil(t, stored.ReviewedAt)

	emitted := f.emitter.byName("governor.gate.checked")
	require.Len(t, emitted, 1)
	payload := emitted[0].payload.(*events.ApprovalResolvedPayload)
	assert.Equal(t, events.ApprovalStatusApproved, payload.Status)
}

func TestApprovalService_SecondReviewFails(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	id := f.seedPending(t)

	_, err := f.service.Review(ctx, id, false, "bob", "unjustified")
	require.NoError(t, err)

	// A later approval must not overwrite the rejection.
	_, err = f.service.Review(ctx, id, true, "carol", "override attempt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, events.ApprovalStatusRejected, stored.Status)
	assert.Equal(t, "bob", stored.ReviewedBy)
}

func TestApprovalService_Validation(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	_, err := f.service.Review(ctx, events.RequestID{}, true, "alice", "")
	assert.Error(t, err)

	id := f.seedPending(t)
	_, err = f.service.Review(ctx, id, true, "", "")
	assert.Error(t, err)
}

func TestApprovalService_ListByStatus(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	first := f.seedPending(t)
	second := f.seedPending(t)

	pending, err := f.service.ListByStatus(ctx, events.ApprovalStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.service.Review(ctx, first, true, "alice", "")
	require.NoError(t, err)

	pending, err = f.service.ListByStatus(ctx, events.ApprovalStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.String(), pending[0].ID.String())
}

func TestApprovalReviewHandler_DropsTerminalReview(t *testing.T) {
	f := newApprovalFixture(t)
	handler := NewApprovalReviewHandler(f.service)
	ctx := context.Background()
	id := f.seedPending(t)

	review := func(approve bool, reviewer string) []byte {
		raw, err := json.Marshal(events.ApprovalReviewPayload{
			RequestID:   id,
			Approve:     approve,
			Reviewer:    reviewer,
			SubmittedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		return raw
	}

	require.NoError(t, handler.Handle(ctx, nil, review(true, "alice")))

	// The racing rejection is dropped, not retried forever.
	require.NoError(t, handler.Handle(ctx, nil, review(false, "bob")))

	stored, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, events.ApprovalStatusApproved, stored.Status)
	assert.Equal(t, "alice", stored.ReviewedBy)
}
