package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

func openQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func newPair(t *testing.T) (id.RegistrationID, id.EventID) {
	t.Helper()
	registrationID, err := id.ParseRegistrationID(uuid.NewString())
	require.NoError(t, err)
	eventID, err := id.ParseEventID(uuid.NewString())
	require.NoError(t, err)
	return registrationID, eventID
}

func TestQueue_EnqueueAndPending(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)
	registrationID, eventID := newPair(t)
	capturedAt := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, registrationID, eventID, capturedAt))

	items, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, registrationID, items[0].RegistrationID)
	assert.Equal(t, eventID, items[0].EventID)
	assert.Equal(t, capturedAt, items[0].RecordedAt)
	assert.False(t, items[0].QueuedAt.IsZero())
}

func TestQueue_EnqueueDedupesPair(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)
	registrationID, eventID := newPair(t)

	require.NoError(t, q.Enqueue(ctx, registrationID, eventID, time.Now()))

	err := q.Enqueue(ctx, registrationID, eventID, time.Now())
	require.ErrorIs(t, err, sentinel.ErrConflict)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")
	registrationID, eventID := newPair(t)

	q, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, registrationID, eventID, time.Now()))
	require.NoError(t, q.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, registrationID, items[0].RegistrationID)
}

func TestQueue_MarkSynced(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)

	regA, evA := newPair(t)
	regB, evB := newPair(t)
	require.NoError(t, q.Enqueue(ctx, regA, evA, time.Now()))
	require.NoError(t, q.Enqueue(ctx, regB, evB, time.Now()))

	items, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, q.MarkSynced(ctx, []int64{items[0].ID}, "accepted"))

	remaining, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "unacked items stay pending")
	assert.Equal(t, items[1].ID, remaining[0].ID)
}

func TestQueue_PendingOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)

	var firstRegistration id.RegistrationID
	for i := 0; i < 5; i++ {
		registrationID, eventID := newPair(t)
		if i == 0 {
			firstRegistration = registrationID
		}
		require.NoError(t, q.Enqueue(ctx, registrationID, eventID, time.Now()))
	}

	items, err := q.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, firstRegistration, items[0].RegistrationID, "items drain in capture order")
}

func TestQueue_PurgeSynced(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)

	regA, evA := newPair(t)
	regB, evB := newPair(t)
	require.NoError(t, q.Enqueue(ctx, regA, evA, time.Now()))
	require.NoError(t, q.Enqueue(ctx, regB, evB, time.Now()))

	items, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, q.MarkSynced(ctx, []int64{items[0].ID}, "accepted"))

	purged, err := q.PurgeSynced(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged, "only synced rows are purged")

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
