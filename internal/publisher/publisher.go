// Package publisher implements the synchronous, durable event submission
// path (spec.md §4.2). A publish call blocks until the event has been
// durably written to the outbox; callers that observe success are
// guaranteed the event will eventually reach every matching client.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
)

// ErrPublishFailed is returned when sequence allocation or the insert
// exhausts its retry budget, or when the insert hits a duplicate sequence
// number (which is not retried). The event is not in the outbox and will never be delivered; the
// allocated sequence number is deliberately not reused (spec.md §4.2:
// "Do not roll back the allocated seq").
var ErrPublishFailed = errors.New("publisher: publish failed")

const (
	defaultMaxRetries  = 3
	defaultInitBackoff = 100 * time.Millisecond
	defaultEntryTTL    = time.Hour
)

// Publisher accepts event submissions, allocates a sequence number, and
// writes the resulting entry to the outbox with bounded retry.
type Publisher struct {
	seq         outbox.SequenceAllocator
	store       outbox.Store
	maxRetries  int
	initBackoff time.Duration
	entryTTL    time.Duration
	logger      *slog.Logger

	// now is overridable for deterministic tests.
	now func() time.Time
	// newID is overridable for deterministic tests.
	newID func() string
	// sleep is overridable so retry tests don't actually wait.
	sleep func(context.Context, time.Duration) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMaxRetries overrides the default retry budget of 3.
func WithMaxRetries(n int) Option {
	return func(p *Publisher) { p.maxRetries = n }
}

// WithInitialBackoff overrides the default 100ms starting backoff.
func WithInitialBackoff(d time.Duration) Option {
	return func(p *Publisher) { p.initBackoff = d }
}

// WithEntryTTL overrides the default 1 hour outbox retention.
func WithEntryTTL(d time.Duration) Option {
	return func(p *Publisher) { p.entryTTL = d }
}

// New builds a Publisher over the given sequence allocator and outbox
// store.
func New(seq outbox.SequenceAllocator, store outbox.Store, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		seq:         seq,
		store:       store,
		maxRetries:  defaultMaxRetries,
		initBackoff: defaultInitBackoff,
		entryTTL:    defaultEntryTTL,
		logger:      logger.With("component", "publisher"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish allocates a sequence number, builds the outbox entry, and
// writes it with bounded exponential-backoff retry. It blocks until the
// event is durably written and returns the resulting Event (with its
// assigned Seq) on success.
func (p *Publisher) Publish(ctx context.Context, eventType string, data json.RawMessage, target string) (model.Event, error) {
	seq, err := p.allocateSeqWithRetry(ctx)
	if err != nil {
		p.logger.Error("sequence allocation failed after retries", "eventType", eventType, "error", err)
		return model.Event{}, fmt.Errorf("%w: allocate sequence: %v", ErrPublishFailed, err)
	}

	createdAt := p.now()
	entry := model.OutboxEntry{
		EventID:        p.newID(),
		SequenceNumber: seq,
		EventType:      eventType,
		EventData:      data,
		TargetClientID: target,
		CreatedAt:      createdAt,
		Ttl:            createdAt.Add(p.entryTTL),
	}

	if err := p.insertWithRetry(ctx, entry); err != nil {
		p.logger.Error("publish failed after retries", "seq", seq, "eventType", eventType, "error", err)
		return model.Event{}, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return entry.Event(), nil
}

// allocateSeqWithRetry retries a transient sequence-allocator failure with
// the same bounded exponential backoff as insertWithRetry, per spec.md
// §4.8/§7: "Sequence allocator store unavailable | Retryable | Publisher
// retries up to 3×".
func (p *Publisher) allocateSeqWithRetry(ctx context.Context) (int64, error) {
	backoff := p.initBackoff
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		seq, err := p.seq.Next(ctx)
		if err == nil {
			return seq, nil
		}
		lastErr = err
		if attempt == p.maxRetries {
			break
		}
		if sleepErr := p.sleep(ctx, backoff); sleepErr != nil {
			return 0, sleepErr
		}
		backoff *= 2
	}
	return 0, lastErr
}

func (p *Publisher) insertWithRetry(ctx context.Context, entry model.OutboxEntry) error {
	backoff := p.initBackoff
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		lastErr = p.store.Insert(ctx, entry)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, outbox.ErrDuplicateSequence) {
			// Fatal for this publish; retrying cannot help (spec.md §4.8).
			return lastErr
		}
		if attempt == p.maxRetries {
			break
		}
		if err := p.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	return lastErr
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
