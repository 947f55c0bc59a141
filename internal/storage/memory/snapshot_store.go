package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	rows []*domain.NetworkMetadata
	keys map[int64]bool // keyed by computed_at
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		keys: make(map[int64]bool),
	}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds one filter-pass summary. Returns ErrDuplicateKey if computed_at exists.
func (s *SnapshotStore) Insert(_ context.Context, m *domain.NetworkMetadata) error {
	if m == nil || m.ComputedAt == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[m.ComputedAt] {
		return storage.ErrDuplicateKey
	}

	rowCopy := *m
	s.keys[m.ComputedAt] = true
	s.rows = append(s.rows, &rowCopy)
	return nil
}

// GetByTimeRange retrieves summaries within [start, end] ordered by computed_at ASC.
func (s *SnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.NetworkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.NetworkMetadata
	for _, m := range s.rows {
		if m.ComputedAt >= start && m.ComputedAt <= end {
			rowCopy := *m
			out = append(out, &rowCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ComputedAt < out[j].ComputedAt
	})
	return out, nil
}

// Latest retrieves the most recent summary. Returns ErrNotFound when empty.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.NetworkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return nil, storage.ErrNotFound
	}

	best := s.rows[0]
	for _, m := range s.rows[1:] {
		if m.ComputedAt > best.ComputedAt {
			best = m
		}
	}
	rowCopy := *best
	return &rowCopy, nil
}
