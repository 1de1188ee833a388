// Package stream implements the per-client Stream Engine (spec.md §4.5):
// one connection's de-duplication, backpressure, ordering, and checkpoint
// persistence. Filtering by event type happens in the Dispatcher before
// Enqueue is called.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
)

const (
	channelCapacity  = 10_000
	recentIDCapacity = 1_000
	enqueueTimeout   = 30 * time.Second
)

// Transport is the write side of the connection, implemented by the SSE
// transport adapter outside the core (spec.md §1: framing is explicitly
// out of scope). Flush must make the write visible to the client
// immediately — there is no batching in this contract.
type Transport interface {
	Write(event model.Event) error
	Flush() error
}

// Engine owns one connection's live state: it is created on connect and
// destroyed on disconnect or cancellation (spec.md §3). It satisfies
// dispatcher.Receiver via Enqueue and replay.Receiver via EnqueueReplay.
type Engine struct {
	clientID       string
	ch             chan model.Event
	checkpoint     outbox.CheckpointStore
	logger         *slog.Logger
	enqueueTimeout time.Duration

	mu        sync.Mutex
	recentIDs []string
	seen      map[string]struct{}
	replaying bool
	pending   []model.Event
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnqueueTimeout overrides the default 30s slow-client timeout.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(e *Engine) { e.enqueueTimeout = d }
}

// New builds a Stream Engine for clientID. checkpoint may be nil if
// checkpoint persistence is not desired (e.g. in tests).
func New(clientID string, checkpoint outbox.CheckpointStore, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		clientID:       clientID,
		ch:             make(chan model.Event, channelCapacity),
		checkpoint:     checkpoint,
		logger:         logger.With("component", "stream-engine", "clientId", clientID),
		seen:           make(map[string]struct{}),
		enqueueTimeout: enqueueTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue implements the enqueue path of spec.md §4.5, as seen by the
// Dispatcher delivering live events. It is designed to be called from a
// detached goroutine (the Dispatcher spawns one per delivery) since it
// can block for up to enqueueTimeout.
//
// While a replay is in flight (between BeginReplay and EndReplay), live
// deliveries are held in an internal buffer rather than sent to the
// channel — otherwise a live event delivered concurrently with a
// draining replay batch could reach the channel ahead of older replayed
// events for the same client, violating the seq-ascending guarantee
// spec.md §4.5 makes across the replay/live boundary.
func (e *Engine) Enqueue(event model.Event) {
	if event.ID != "" && e.markSeen(event.ID) {
		return
	}

	e.mu.Lock()
	if e.replaying {
		e.pending = append(e.pending, event)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.send(event)
}

// EnqueueReplay delivers one replayed event directly to the channel,
// bypassing the live-delivery buffer. The Replay Coordinator calls this
// instead of Enqueue so replayed events are never held back by their
// own gate.
func (e *Engine) EnqueueReplay(event model.Event) {
	if event.ID != "" && e.markSeen(event.ID) {
		return
	}
	e.send(event)
}

// BeginReplay starts gating live deliveries behind the pending buffer.
// Callers must register the Engine with the Dispatcher only after this
// returns, so no live event for this client can reach the channel
// before the replay that precedes it.
func (e *Engine) BeginReplay() {
	e.mu.Lock()
	e.replaying = true
	e.mu.Unlock()
}

// EndReplay stops gating live deliveries and flushes whatever
// accumulated in the pending buffer onto the channel, in arrival order,
// before resuming normal delivery. Callers must invoke this exactly
// once per connection, whether or not a replay actually ran.
func (e *Engine) EndReplay() {
	for {
		e.mu.Lock()
		pending := e.pending
		e.pending = nil
		if len(pending) == 0 {
			e.replaying = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		for _, event := range pending {
			e.send(event)
		}
	}
}

func (e *Engine) send(event model.Event) {
	t := time.NewTimer(e.enqueueTimeout)
	defer t.Stop()

	select {
	case e.ch <- event:
	case <-t.C:
		e.logger.Warn("dropping event for slow client", "eventId", event.ID, "seq", event.Seq)
	}
}

// markSeen reports whether id has already been enqueued for this
// session, recording it if not. The recent-ids set is capped at
// recentIDCapacity; on overflow the oldest half is dropped (spec.md
// §4.5, §3 invariant B3).
func (e *Engine) markSeen(id string) (duplicate bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[id]; ok {
		return true
	}

	e.seen[id] = struct{}{}
	e.recentIDs = append(e.recentIDs, id)
	if len(e.recentIDs) > recentIDCapacity {
		half := len(e.recentIDs) / 2
		for _, old := range e.recentIDs[:half] {
			delete(e.seen, old)
		}
		e.recentIDs = append([]string(nil), e.recentIDs[half:]...)
	}
	return false
}

// recentIDCount exposes the current size of the dedup set, for tests
// asserting B3.
func (e *Engine) recentIDCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recentIDs)
}

// Run drives the yield path of spec.md §4.5 until ctx is cancelled or the
// transport errors. Enqueue order is the Poller's dispatch order (seq
// ascending); the channel preserves that order, so the yielded order is
// seq-ascending modulo drops.
func (e *Engine) Run(ctx context.Context, transport Transport) error {
	for {
		select {
		case event, ok := <-e.ch:
			if !ok {
				return nil
			}
			if err := transport.Write(event); err != nil {
				return err
			}
			if err := transport.Flush(); err != nil {
				return err
			}
			e.updateCheckpoint(ctx, event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// updateCheckpoint persists progress after a confirmed write+flush.
// Failures are logged and otherwise ignored — spec.md §4.8: "Checkpoint
// write error: Non-fatal; Log; continue" — so a slow or failing
// checkpoint store never aborts the stream.
func (e *Engine) updateCheckpoint(ctx context.Context, event model.Event) {
	if e.checkpoint == nil {
		return
	}
	if err := e.checkpoint.Save(ctx, e.clientID, event.Seq, event.ID); err != nil {
		e.logger.Warn("checkpoint write failed", "seq", event.Seq, "error", err)
	}
}

// ClientID returns the client id this engine serves.
func (e *Engine) ClientID() string {
	return e.clientID
}
