package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

// MemoryStore is an in-memory Store + SequenceAllocator + CheckpointStore
// used by the core event-plane tests so they exercise the real
// invariants (P1–P5, R1–R2, B1–B3) without a live MongoDB, mirroring the
// teacher's preference for fakes over a live backend in unit tests (e.g.
// internal/puller/internal/core/puller_test.go).
type MemoryStore struct {
	mu          sync.Mutex
	entries     []model.OutboxEntry
	seq         int64
	checkpoints map[string]model.Checkpoint

	// FailInsertOnce, if > 0, makes the next N calls to Insert fail with
	// ErrStoreUnavailable before succeeding — used to exercise the
	// Publisher's retry budget and scenario S6 (seq gap on terminal
	// failure).
	FailInsertOnce int
	// FailNextInsertsPermanently makes every future call to Insert fail,
	// for exhausting the retry budget entirely.
	FailNextInsertsPermanently bool
	// FailSequenceOnce mirrors FailInsertOnce for Next.
	FailSequenceOnce int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]model.Checkpoint)}
}

// Next implements SequenceAllocator.
func (m *MemoryStore) Next(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSequenceOnce > 0 {
		m.FailSequenceOnce--
		return 0, ErrStoreUnavailable
	}

	m.seq++
	return m.seq, nil
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, entry model.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextInsertsPermanently {
		return ErrStoreUnavailable
	}
	if m.FailInsertOnce > 0 {
		m.FailInsertOnce--
		return ErrStoreUnavailable
	}

	for _, e := range m.entries {
		if e.SequenceNumber == entry.SequenceNumber {
			return ErrDuplicateSequence
		}
	}

	m.entries = append(m.entries, entry)
	return nil
}

// ReadAfter implements Store.
func (m *MemoryStore) ReadAfter(ctx context.Context, fromSeq int64, limit int) ([]model.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := append([]model.OutboxEntry(nil), m.entries...)
	sortBySeq(sorted)

	var out []model.OutboxEntry
	for _, e := range sorted {
		if e.SequenceNumber > fromSeq {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context) (*model.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return nil, nil
	}

	best := m.entries[0]
	for _, e := range m.entries[1:] {
		if e.SequenceNumber > best.SequenceNumber {
			best = e
		}
	}
	return &best, nil
}

// Save implements CheckpointStore.
func (m *MemoryStore) Save(ctx context.Context, clientID string, lastSeq int64, lastEventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, existed := m.checkpoints[clientID]
	now := time.Now().UTC()
	if !existed {
		cp.CreatedAt = now
		cp.ClientID = clientID
	}
	cp.LastSequenceNo = lastSeq
	cp.LastEventID = lastEventID
	cp.UpdatedAt = now
	m.checkpoints[clientID] = cp
	return nil
}

// Load implements CheckpointStore.
func (m *MemoryStore) Load(ctx context.Context, clientID string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[clientID]
	if !ok {
		return nil, nil
	}
	cpCopy := cp
	return &cpCopy, nil
}

func sortBySeq(entries []model.OutboxEntry) {
	// Small-N insertion sort is plenty for test fixtures and keeps this
	// package dependency-free; production ordering comes from Mongo's
	// index scan, not from this fake.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].SequenceNumber > entries[j].SequenceNumber; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

var (
	_ Store             = (*MemoryStore)(nil)
	_ SequenceAllocator = (*MemoryStore)(nil)
	_ CheckpointStore   = (*MemoryStore)(nil)
)
