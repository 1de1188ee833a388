package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingTransport) Write(event model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingTransport) Flush() error { return nil }

func (r *recordingTransport) received() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func TestEngine_DeduplicatesByEventID(t *testing.T) {
	e := New("c1", nil, nil)
	e.Enqueue(model.Event{ID: "a", Seq: 1})
	e.Enqueue(model.Event{ID: "a", Seq: 1})
	e.Enqueue(model.Event{ID: "b", Seq: 2})

	require.Len(t, e.ch, 2)
}

func TestEngine_YieldsInSeqOrder(t *testing.T) {
	e := New("c1", nil, nil)
	for _, seq := range []int64{1, 2, 3} {
		e.Enqueue(model.Event{ID: "evt", Seq: seq})
	}
	// Different IDs so none are deduped.
	e2 := New("c2", nil, nil)
	for _, seq := range []int64{1, 2, 3} {
		e2.Enqueue(model.Event{ID: string(rune('a' + seq)), Seq: seq})
	}

	transport := &recordingTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = e2.Run(ctx, transport)

	got := transport.received()
	require.Len(t, got, 3)
	require.Equal(t, int64(1), got[0].Seq)
	require.Equal(t, int64(2), got[1].Seq)
	require.Equal(t, int64(3), got[2].Seq)
}

func TestEngine_UpdatesCheckpointAfterConfirmedWrite(t *testing.T) {
	store := outbox.NewMemoryStore()
	e := New("c1", store, nil)
	e.Enqueue(model.Event{ID: "a", Seq: 42})

	transport := &recordingTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx, transport)

	cp, err := store.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, int64(42), cp.LastSequenceNo)
}

type failingCheckpointStore struct{}

func (failingCheckpointStore) Save(ctx context.Context, clientID string, lastSeq int64, lastEventID string) error {
	return outbox.ErrStoreUnavailable
}
func (failingCheckpointStore) Load(ctx context.Context, clientID string) (*model.Checkpoint, error) {
	return nil, nil
}

func TestEngine_CheckpointFailureDoesNotAbortStream(t *testing.T) {
	e := New("c1", failingCheckpointStore{}, nil)
	e.Enqueue(model.Event{ID: "a", Seq: 1})
	e.Enqueue(model.Event{ID: "b", Seq: 2})

	transport := &recordingTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx, transport)

	require.Len(t, transport.received(), 2)
}

func TestEngine_SlowClientDropsEventButSessionStaysOpen(t *testing.T) {
	e := New("c1", nil, nil, WithEnqueueTimeout(10*time.Millisecond))

	// Fill the channel to capacity so the next Enqueue must wait, then
	// drop, without crashing the session.
	for i := 0; i < channelCapacity; i++ {
		e.ch <- model.Event{ID: "filler", Seq: int64(i)}
	}

	done := make(chan struct{})
	go func() {
		e.Enqueue(model.Event{ID: "dropped", Seq: int64(channelCapacity + 1)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue should have returned after its timeout")
	}
}

func TestEngine_ReplayPrecedesConcurrentLiveDelivery(t *testing.T) {
	e := New("c1", nil, nil)
	e.BeginReplay()

	// A live delivery arrives (as the Dispatcher would deliver it)
	// while replay is still draining; it must not reach the channel
	// ahead of the replayed events.
	live := make(chan struct{})
	go func() {
		e.Enqueue(model.Event{ID: "live-1", Seq: 100})
		close(live)
	}()
	<-live

	for _, seq := range []int64{1, 2, 3} {
		e.EnqueueReplay(model.Event{ID: string(rune('a' + seq)), Seq: seq})
	}
	e.EndReplay()

	transport := &recordingTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx, transport)

	got := transport.received()
	require.Len(t, got, 4)
	require.Equal(t, int64(1), got[0].Seq)
	require.Equal(t, int64(2), got[1].Seq)
	require.Equal(t, int64(3), got[2].Seq)
	require.Equal(t, int64(100), got[3].Seq)
}

func TestEngine_RecentIDsNeverExceedsCapacity(t *testing.T) {
	e := New("c1", nil, nil)
	for i := 0; i < recentIDCapacity*3; i++ {
		e.markSeen(string(rune(i)))
		require.LessOrEqual(t, e.recentIDCount(), recentIDCapacity)
	}
}
