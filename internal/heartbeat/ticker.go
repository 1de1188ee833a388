// Package heartbeat implements the Heartbeat Ticker (spec.md §4.7): a
// background task that periodically submits a heartbeat event through
// the same ordered publish path as any other event, so heartbeats
// receive a sequence number, share the ordering guarantees, and respect
// per-client filters.
package heartbeat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

const defaultInterval = 30 * time.Second

// Publisher is the minimal surface the Ticker needs from
// internal/publisher.Publisher.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data json.RawMessage, target string) (model.Event, error)
}

// Ticker publishes a heartbeat every interval, but only while at least
// one client is connected locally on this pod.
type Ticker struct {
	publisher    Publisher
	hasListeners func() bool
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithInterval overrides the default 30s heartbeat interval.
func WithInterval(d time.Duration) Option {
	return func(t *Ticker) { t.interval = d }
}

// New builds a Ticker. hasListeners should report whether any client is
// currently registered locally — typically dispatcher.Dispatcher.HasLocalClients.
func New(publisher Publisher, hasListeners func() bool, logger *slog.Logger, opts ...Option) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Ticker{
		publisher:    publisher,
		hasListeners: hasListeners,
		interval:     defaultInterval,
		logger:       logger.With("component", "heartbeat"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	if !t.hasListeners() {
		return
	}

	payload := model.HeartbeatPayload{
		Envelope: model.NewEnvelope("", model.EventTypeHeartbeat, t.now()),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("failed to marshal heartbeat payload", "error", err)
		return
	}

	if _, err := t.publisher.Publish(ctx, model.EventTypeHeartbeat, data, ""); err != nil {
		t.logger.Error("failed to publish heartbeat", "error", err)
	}
}
