// Package replay implements the Replay Coordinator (spec.md §4.6):
// on-connect delivery of outbox entries the client has not yet seen,
// ahead of the live feed.
package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
)

const (
	defaultBatchLimit = 1_000
	defaultPace       = 10 * time.Millisecond
)

// Receiver is the replay-enqueue side of the Stream Engine the
// Coordinator injects replayed events into. EnqueueReplay shares the
// dedup-aware path Enqueue uses for live delivery — so overlap between
// replay and the live feed is absorbed by the recent-ids set (spec.md
// §4.6) — but bypasses the Engine's live-delivery buffer, since replay
// is expected to run while that buffer is gating concurrent live
// deliveries for the same client.
type Receiver interface {
	EnqueueReplay(event model.Event)
}

// Coordinator replays missed outbox entries at connect time.
type Coordinator struct {
	store      outbox.Store
	logger     *slog.Logger
	batchLimit int
	pace       time.Duration

	// sleep is overridable for deterministic tests.
	sleep func(context.Context, time.Duration) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchLimit overrides the default 1,000-entry replay batch cap.
func WithBatchLimit(n int) Option {
	return func(c *Coordinator) { c.batchLimit = n }
}

// WithPace overrides the default 10ms inter-enqueue pacing delay.
func WithPace(d time.Duration) Option {
	return func(c *Coordinator) { c.pace = d }
}

// New builds a Coordinator over the given outbox store.
func New(store outbox.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:      store,
		logger:     logger.With("component", "replay"),
		batchLimit: defaultBatchLimit,
		pace:       defaultPace,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EffectiveCheckpoint resolves the checkpoint to replay from: the
// explicit value if the client presented one, else the persisted
// checkpoint, else none (spec.md §4.6 step 1). ok is false when there is
// nothing to replay from.
func EffectiveCheckpoint(explicit *int64, persisted *model.Checkpoint) (seq int64, ok bool) {
	if explicit != nil {
		return *explicit, true
	}
	if persisted != nil {
		return persisted.LastSequenceNo, true
	}
	return 0, false
}

// Replay reads up to one batch of entries with seq > fromSeq and enqueues
// them, in seq order, onto receiver with pacing between enqueues. A
// store read error is non-fatal per spec.md §4.8: it is logged and the
// live feed takes over.
func (c *Coordinator) Replay(ctx context.Context, fromSeq int64, receiver Receiver) error {
	entries, err := c.store.ReadAfter(ctx, fromSeq, c.batchLimit)
	if err != nil {
		c.logger.Warn("replay read failed, proceeding to live feed", "fromSeq", fromSeq, "error", err)
		return nil
	}

	for i, entry := range entries {
		receiver.EnqueueReplay(entry.Event())
		if i < len(entries)-1 {
			if err := c.sleep(ctx, c.pace); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
