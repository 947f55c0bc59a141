package storage

import (
	"context"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// TokenMetadataStore persists resolved token metadata.
// Rows are append-only, keyed by (mint, fetched_at); reads return the most
// recently fetched row for a mint.
type TokenMetadataStore interface {
	// Insert adds a metadata row. Returns ErrDuplicateKey if (mint, fetched_at) exists.
	Insert(ctx context.Context, m *domain.TokenMetadata) error

	// GetByMint retrieves the latest metadata for a mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error)

	// GetFetchedSince retrieves all rows fetched at or after since (ms), ordered by fetched_at ASC.
	GetFetchedSince(ctx context.Context, since int64) ([]*domain.TokenMetadata, error)
}

// SnapshotStore persists per-pass network metadata as an analytics timeseries.
type SnapshotStore interface {
	// Insert adds one filter-pass summary. Returns ErrDuplicateKey if computed_at exists.
	Insert(ctx context.Context, m *domain.NetworkMetadata) error

	// GetByTimeRange retrieves summaries within [start, end] (inclusive, ms), ordered by computed_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.NetworkMetadata, error)

	// Latest retrieves the most recent summary. Returns ErrNotFound when empty.
	Latest(ctx context.Context) (*domain.NetworkMetadata, error)
}
