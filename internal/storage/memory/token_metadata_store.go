package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/storage"
)

// metadataKey is the composite key for metadata deduplication.
type metadataKey struct {
	Mint      string
	FetchedAt int64
}

// TokenMetadataStore is an in-memory implementation of storage.TokenMetadataStore.
type TokenMetadataStore struct {
	mu     sync.RWMutex
	rows   []*domain.TokenMetadata
	keys   map[metadataKey]bool
	latest map[string]*domain.TokenMetadata // keyed by mint, newest fetched_at wins
}

// NewTokenMetadataStore creates a new in-memory token metadata store.
func NewTokenMetadataStore() *TokenMetadataStore {
	return &TokenMetadataStore{
		keys:   make(map[metadataKey]bool),
		latest: make(map[string]*domain.TokenMetadata),
	}
}

var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)

// Insert adds a metadata row. Returns ErrDuplicateKey if (mint, fetched_at) exists.
func (s *TokenMetadataStore) Insert(_ context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := metadataKey{Mint: m.Mint, FetchedAt: m.FetchedAt}
	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	rowCopy := *m
	s.keys[key] = true
	s.rows = append(s.rows, &rowCopy)
	if current, ok := s.latest[m.Mint]; !ok || rowCopy.FetchedAt >= current.FetchedAt {
		s.latest[m.Mint] = &rowCopy
	}
	return nil
}

// GetByMint retrieves the latest metadata for a mint. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.latest[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rowCopy := *m
	return &rowCopy, nil
}

// GetFetchedSince retrieves all rows fetched at or after since, ordered by fetched_at ASC.
func (s *TokenMetadataStore) GetFetchedSince(_ context.Context, since int64) ([]*domain.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TokenMetadata
	for _, m := range s.rows {
		if m.FetchedAt >= since {
			rowCopy := *m
			out = append(out, &rowCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FetchedAt != out[j].FetchedAt {
			return out[i].FetchedAt < out[j].FetchedAt
		}
		return out[i].Mint < out[j].Mint
	})
	return out, nil
}
