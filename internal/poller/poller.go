// Package poller implements the per-process Outbox Poller (spec.md §4.3):
// a background loop that reads new outbox entries in sequence order and
// hands them to the local Dispatcher. Every pod runs exactly one Poller;
// each pod's progress is purely local.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 50 * time.Millisecond
	defaultErrorBackoff = 5 * time.Second
	replayWindow        = 100
)

// Dispatcher is the local fan-out router a Poller hands events to. It
// must never block for long — internal/dispatcher.Dispatcher satisfies
// this by detaching each client delivery onto its own goroutine.
type Dispatcher interface {
	Deliver(event model.Event)
}

// Poller is the per-process background loop of spec.md §4.3.
type Poller struct {
	store         outbox.Store
	dispatcher    Dispatcher
	logger        *slog.Logger
	batchSize     int
	pollInterval  time.Duration
	errorBackoff  time.Duration
	lastDelivered int64

	// sleep is overridable for deterministic tests.
	sleep func(context.Context, time.Duration) error
}

// Option configures a Poller.
type Option func(*Poller)

// WithBatchSize overrides the default batch size of 100.
func WithBatchSize(n int) Option {
	return func(p *Poller) { p.batchSize = n }
}

// WithPollInterval overrides the default 50ms empty-batch poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) { p.pollInterval = d }
}

// WithErrorBackoff overrides the default 5s store-error backoff.
func WithErrorBackoff(d time.Duration) Option {
	return func(p *Poller) { p.errorBackoff = d }
}

// New builds a Poller. Call Init before Run to seed lastDelivered from
// the store's current tail.
func New(store outbox.Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger.With("component", "poller"),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		errorBackoff: defaultErrorBackoff,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init seeds lastDelivered to max(0, latest.seq - 100) so a restarting
// pod re-drives roughly the last 100 events to its now-empty client set
// (spec.md §4.3). Duplicate suppression at the Stream Engine absorbs any
// overlap with clients that reconnected to other pods. Call this once,
// before Run.
func (p *Poller) Init(ctx context.Context) error {
	latest, err := p.store.Latest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		p.lastDelivered = 0
		return nil
	}
	p.lastDelivered = latest.SequenceNumber - replayWindow
	if p.lastDelivered < 0 {
		p.lastDelivered = 0
	}
	return nil
}

// LastDelivered returns the highest sequence number handed to the
// Dispatcher so far. Single-writer (this Poller's own goroutine); safe
// to read from the same goroutine only.
func (p *Poller) LastDelivered() int64 {
	return p.lastDelivered
}

// Run drives the poll loop until ctx is cancelled. It never blocks on a
// slow client — Dispatcher.Deliver is non-blocking by contract.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, err := p.store.ReadAfter(ctx, p.lastDelivered, p.batchSize)
		if err != nil {
			p.logger.Error("outbox read failed, backing off", "error", err)
			if err := p.sleep(ctx, p.errorBackoff); err != nil {
				return err
			}
			continue
		}

		if len(entries) == 0 {
			if err := p.sleep(ctx, p.pollInterval); err != nil {
				return err
			}
			continue
		}

		for _, entry := range entries {
			p.dispatcher.Deliver(entry.Event())
			p.lastDelivered = entry.SequenceNumber
		}
	}
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
