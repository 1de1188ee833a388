package heartbeat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, data json.RawMessage, target string) (model.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return model.Event{ID: "hb", Type: eventType, Data: data, Seq: int64(p.calls)}, nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestTicker_PublishesWhileClientsConnected(t *testing.T) {
	pub := &recordingPublisher{}
	ticker := New(pub, func() bool { return true }, nil, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	ticker.Run(ctx)

	require.GreaterOrEqual(t, pub.count(), 2)
}

func TestTicker_SkipsPublishWhenNoLocalClients(t *testing.T) {
	pub := &recordingPublisher{}
	ticker := New(pub, func() bool { return false }, nil, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	ticker.Run(ctx)

	require.Equal(t, 0, pub.count())
}
