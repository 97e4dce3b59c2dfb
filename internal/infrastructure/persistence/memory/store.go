// Package memory provides an in-process store implementing the request,
// history and transaction ports. It is used by tests and by the "memory"
// storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

type contextKey string

const txKey contextKey = "memory-tx"

type state struct {
	requests map[string]*entity.RequestRecord
	history  map[string][]entity.HistoryEntry
}

func newState() state {
	return state{
		requests: map[string]*entity.RequestRecord{},
		history:  map[string][]entity.HistoryEntry{},
	}
}

// fork copies the maps; records are replaced on write, never mutated in place.
func (s state) fork() state {
	out := state{
		requests: make(map[string]*entity.RequestRecord, len(s.requests)),
		history:  make(map[string][]entity.HistoryEntry, len(s.history)),
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.history {
		out.history[k] = v
	}
	return out
}

// Store is a mutex-guarded store with snapshot transactions.
// Writers are serialized on txMu; committed state is swapped under mu.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTransaction runs fn against a private copy of the state and publishes it on success
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.fork()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey, &working)); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// write runs fn inside the caller's transaction or a new single-statement one
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey).(*state); ok {
		return fn(st)
	}
	return s.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx.Value(txKey).(*state))
	})
}

// read runs fn against the transaction's state or the committed state
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrStorageFailure, err)
	}
	if st, ok := ctx.Value(txKey).(*state); ok {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

// Create stores a new record
func (s *Store) Create(ctx context.Context, record *entity.RequestRecord) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.requests[record.ID]; exists {
			return fmt.Errorf("%w: request %s already exists", workflow.ErrStorageFailure, record.ID)
		}
		stored := record.Clone()
		stored.History = nil
		st.requests[record.ID] = stored
		return nil
	})
}

// GetByID returns a copy of the record without history
func (s *Store) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	var out *entity.RequestRecord
	err := s.read(ctx, func(st *state) error {
		r, ok := st.requests[id]
		if !ok {
			return fmt.Errorf("%w: request %s", workflow.ErrNotFound, id)
		}
		out = r.Clone()
		return nil
	})
	return out, err
}

// UpdateIfVersion replaces the record when its version still matches
func (s *Store) UpdateIfVersion(ctx context.Context, next *entity.RequestRecord, expectedVersion int64) error {
	return s.write(ctx, func(st *state) error {
		current, ok := st.requests[next.ID]
		if !ok {
			return fmt.Errorf("%w: request %s", workflow.ErrNotFound, next.ID)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: request %s is at version %d, expected %d",
				workflow.ErrStaleVersion, next.ID, current.Version, expectedVersion)
		}
		stored := next.Clone()
		stored.Version = expectedVersion + 1
		stored.History = nil
		st.requests[next.ID] = stored
		return nil
	})
}

// List returns matching records ordered by creation time, newest first
func (s *Store) List(ctx context.Context, query entity.RequestQuery) ([]*entity.RequestRecord, error) {
	query.RequestFilter = query.RequestFilter.Normalized()

	var matched []*entity.RequestRecord
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.requests {
			if query.Matches(r) {
				matched = append(matched, r.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if query.Offset >= len(matched) {
		return []*entity.RequestRecord{}, nil
	}
	matched = matched[query.Offset:]
	if len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// Append adds a history entry; sequences must be contiguous per request
func (s *Store) Append(ctx context.Context, entry entity.HistoryEntry) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.requests[entry.RequestID]; !ok {
			return fmt.Errorf("%w: request %s", workflow.ErrNotFound, entry.RequestID)
		}
		existing := st.history[entry.RequestID]
		if want := int64(len(existing)) + 1; entry.Sequence != want {
			return fmt.Errorf("%w: history sequence %d for request %s, expected %d",
				workflow.ErrStaleVersion, entry.Sequence, entry.RequestID, want)
		}
		// Full slice expression forces a fresh backing array so committed snapshots stay untouched.
		st.history[entry.RequestID] = append(existing[:len(existing):len(existing)], entry.Clone())
		return nil
	})
}

// GetByRequestID returns copies of the entries in sequence order
func (s *Store) GetByRequestID(ctx context.Context, requestID string) ([]entity.HistoryEntry, error) {
	out := []entity.HistoryEntry{}
	err := s.read(ctx, func(st *state) error {
		for _, h := range st.history[requestID] {
			out = append(out, h.Clone())
		}
		return nil
	})
	return out, err
}
