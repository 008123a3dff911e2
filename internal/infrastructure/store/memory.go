// Package store provides ledger persistence backends: an in-memory store
// for tests, an embedded SQLite store and a PostgreSQL store. All satisfy
// audit.Store; the ledger holds the single-writer invariant, stores only
// persist.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// MemoryStore keeps records in process memory. Used by tests and as the
// explicit "memory" backend for ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*audit.Record

	// FailAppends forces append failures; tests use it to exercise the
	// pending-retry path.
	FailAppends bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*audit.Record)}
}

func (s *MemoryStore) Append(_ context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends {
		return errors.ErrLedgerUnavailable
	}
	if _, dup := s.records[record.Sequence]; dup {
		return errors.NewConflictError("duplicate ledger sequence")
	}
	clone := *record
	s.records[record.Sequence] = &clone
	return nil
}

func (s *MemoryStore) Last(_ context.Context) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *audit.Record
	for _, r := range s.records {
		if last == nil || r.Sequence > last.Sequence {
			last = r
		}
	}
	if last == nil {
		return nil, nil
	}
	clone := *last
	return &clone, nil
}

func (s *MemoryStore) Range(_ context.Context, from, to int64) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.Record
	for seq, r := range s.records {
		if seq >= from && seq <= to {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sequences []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seq := range sequences {
		delete(s.records, seq)
	}
	return nil
}

// Tamper overwrites a stored record's payload in place, bypassing the
// append-only contract. Test hook for chain verification.
func (s *MemoryStore) Tamper(sequence int64, mutate func(*audit.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[sequence]; ok {
		mutate(r)
	}
}
