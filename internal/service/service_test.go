package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	events chan model.Event
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{events: make(chan model.Event, 16)}
}

func (f *fakeReceiver) Enqueue(event model.Event) {
	f.events <- event
}

func TestService_PublishedEventReachesRegisteredClient(t *testing.T) {
	store := outbox.NewMemoryStore()
	svc := New(store, nil, Config{
		PollInterval:      time.Millisecond,
		HeartbeatInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	recv := newFakeReceiver()
	clientCtx, clientCancel := svc.Dispatcher().Register(ctx, "client-1", "", recv)
	defer clientCancel()
	_ = clientCtx

	_, err := svc.Publisher().Publish(ctx, model.EventTypeNotification, json.RawMessage(`{}`), "")
	require.NoError(t, err)

	select {
	case evt := <-recv.events:
		require.Equal(t, model.EventTypeNotification, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected event to reach registered client")
	}
}

func TestService_StopIsIdempotentWithoutStart(t *testing.T) {
	store := outbox.NewMemoryStore()
	svc := New(store, nil, Config{})
	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
}

func TestService_StartStopLifecycle(t *testing.T) {
	store := outbox.NewMemoryStore()
	svc := New(store, nil, Config{PollInterval: time.Millisecond, HeartbeatInterval: time.Hour})

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
}
