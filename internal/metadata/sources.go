// Package metadata resolves display metadata for token mints with
// memoization, TTL expiry, negative caching, and request coalescing.
package metadata

import (
	"context"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// Source resolves metadata for a single mint. Implementations return
// (nil, nil) when the source has no record for the mint.
type Source interface {
	Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// BatchSource resolves metadata for many mints in one call. The returned
// map is keyed by lowercase mint and contains only resolved entries;
// requested mints absent from the response are simply missing keys.
type BatchSource interface {
	// BatchSize returns the maximum number of mints accepted per call.
	BatchSize() int

	FetchBatch(ctx context.Context, mints []string) (map[string]*domain.TokenMetadata, error)
}
