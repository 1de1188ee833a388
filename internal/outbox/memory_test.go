package outbox

import (
	"context"
	"testing"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SequenceStrictlyIncreasing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), first)

	second, err := store.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), second)
}

func TestMemoryStore_InsertRejectsDuplicateSequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := model.OutboxEntry{EventID: "a", SequenceNumber: 1}
	require.NoError(t, store.Insert(ctx, entry))

	dup := model.OutboxEntry{EventID: "b", SequenceNumber: 1}
	err := store.Insert(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestMemoryStore_ReadAfterIsAscendingAndExclusive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, store.Insert(ctx, model.OutboxEntry{SequenceNumber: seq}))
	}

	got, err := store.ReadAfter(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].SequenceNumber)
	require.Equal(t, int64(3), got[1].SequenceNumber)
}

func TestMemoryStore_ReadAfterRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, store.Insert(ctx, model.OutboxEntry{SequenceNumber: seq}))
	}

	got, err := store.ReadAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].SequenceNumber)
	require.Equal(t, int64(2), got[1].SequenceNumber)
}

func TestMemoryStore_LatestOnEmptyStoreIsNil(t *testing.T) {
	store := NewMemoryStore()
	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestMemoryStore_CheckpointUpsertIsMonotonicPerCaller(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-1", 5, "evt-5"))
	cp, err := store.Load(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), cp.LastSequenceNo)

	require.NoError(t, store.Save(ctx, "client-1", 9, "evt-9"))
	cp, err = store.Load(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, int64(9), cp.LastSequenceNo)
	require.False(t, cp.CreatedAt.IsZero())
}

func TestMemoryStore_LoadUnknownClientIsNil(t *testing.T) {
	store := NewMemoryStore()
	cp, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, cp)
}
