package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func makeEntry(seq int64) model.OutboxEntry {
	return model.OutboxEntry{SequenceNumber: seq, EventID: "preseeded"}
}

func TestPublish_AllocatesStrictlyIncreasingSeq(t *testing.T) {
	store := outbox.NewMemoryStore()
	p := New(store, store, nil)
	p.sleep = noSleep

	e1, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.NoError(t, err)
	e2, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.NoError(t, err)

	require.Equal(t, int64(1), e1.Seq)
	require.Equal(t, int64(2), e2.Seq)
	require.NotEqual(t, e1.ID, e2.ID)
}

func TestPublish_DurabilityBeforeReturn(t *testing.T) {
	store := outbox.NewMemoryStore()
	p := New(store, store, nil)
	p.sleep = noSleep

	evt, err := p.Publish(context.Background(), "notification", []byte(`{"x":1}`), "")
	require.NoError(t, err)

	got, err := store.ReadAfter(context.Background(), evt.Seq-1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, evt.Seq, got[0].SequenceNumber)
}

func TestPublish_RetriesTransientStoreFailure(t *testing.T) {
	store := outbox.NewMemoryStore()
	store.FailInsertOnce = 2
	p := New(store, store, nil)
	p.sleep = noSleep

	evt, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.NoError(t, err)
	require.Equal(t, int64(1), evt.Seq)
}

func TestPublish_TerminalFailureLeavesSeqGap(t *testing.T) {
	// Scenario S6: allocator returns a seq, insert fails permanently;
	// the seq is never reused and the next publish gets the following
	// value.
	store := outbox.NewMemoryStore()
	store.FailNextInsertsPermanently = true
	p := New(store, store, nil, WithMaxRetries(1))
	p.sleep = noSleep

	_, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.ErrorIs(t, err, ErrPublishFailed)

	store.FailNextInsertsPermanently = false
	evt, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.NoError(t, err)
	require.Equal(t, int64(2), evt.Seq)

	entries, err := store.ReadAfter(context.Background(), 0, 10)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, int64(1), e.SequenceNumber)
	}
}

func TestPublish_RetriesTransientSequenceAllocatorFailure(t *testing.T) {
	store := outbox.NewMemoryStore()
	store.FailSequenceOnce = 2
	p := New(store, store, nil)
	p.sleep = noSleep

	evt, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.NoError(t, err)
	require.Equal(t, int64(1), evt.Seq)
}

func TestPublish_SequenceAllocatorTerminalFailure(t *testing.T) {
	store := outbox.NewMemoryStore()
	store.FailSequenceOnce = 99
	p := New(store, store, nil, WithMaxRetries(1))
	p.sleep = noSleep

	_, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.ErrorIs(t, err, ErrPublishFailed)
}

func TestPublish_DuplicateSeqDoesNotRetry(t *testing.T) {
	store := outbox.NewMemoryStore()
	p := New(store, store, nil)
	p.sleep = noSleep

	// Pre-seed the sequence the allocator is about to hand out.
	require.NoError(t, store.Insert(context.Background(), makeEntry(1)))

	_, err := p.Publish(context.Background(), "message", []byte(`{}`), "")
	require.ErrorIs(t, err, ErrPublishFailed)
}
