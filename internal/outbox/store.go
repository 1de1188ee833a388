// Package outbox defines the durable, globally-ordered event log and its
// two singleton collaborators: the sequence allocator and the per-client
// checkpoint store. The MongoDB-backed implementation satisfies the
// contract the spec requires of any backend — ordered reads, atomic
// counter increment, single-document upsert, and TTL-based expiry — but
// callers depend only on the interfaces below.
package outbox

import (
	"context"
	"errors"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// Retries are the caller's responsibility (see internal/publisher).
var ErrStoreUnavailable = errors.New("outbox: store unavailable")

// ErrDuplicateSequence is returned by Insert when an entry with the same
// SequenceNumber already exists. This is fatal for the publish attempt
// that produced it; the allocated seq is not retried.
var ErrDuplicateSequence = errors.New("outbox: duplicate sequence number")

// Store is the durable, append-only, ordered log of published events.
type Store interface {
	// Insert persists an immutable entry. Fails with ErrStoreUnavailable
	// or ErrDuplicateSequence.
	Insert(ctx context.Context, entry model.OutboxEntry) error

	// ReadAfter returns up to limit entries with SequenceNumber > fromSeq,
	// in ascending sequence order.
	ReadAfter(ctx context.Context, fromSeq int64, limit int) ([]model.OutboxEntry, error)

	// Latest returns the entry with the highest SequenceNumber, or nil if
	// the outbox is empty.
	Latest(ctx context.Context) (*model.OutboxEntry, error)
}

// SequenceAllocator issues the next global sequence number. Implementations
// must guarantee strictly increasing values across all callers in all
// processes; the first invocation returns 1.
type SequenceAllocator interface {
	Next(ctx context.Context) (int64, error)
}

// CheckpointStore is the per-client persistent record of the highest seq
// written to that client's byte stream.
type CheckpointStore interface {
	// Save upserts the checkpoint for clientID. lastEventID may be empty.
	Save(ctx context.Context, clientID string, lastSeq int64, lastEventID string) error

	// Load returns the persisted checkpoint for clientID, or nil if none
	// has ever been saved.
	Load(ctx context.Context, clientID string) (*model.Checkpoint, error)
}
