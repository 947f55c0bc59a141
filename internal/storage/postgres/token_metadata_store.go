package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/observability"
	"github.com/blok-hamster/kol-play-core/internal/storage"
)

// TokenMetadataStore implements storage.TokenMetadataStore using PostgreSQL.
type TokenMetadataStore struct {
	pool *Pool
}

// NewTokenMetadataStore creates a new TokenMetadataStore.
func NewTokenMetadataStore(pool *Pool) *TokenMetadataStore {
	return &TokenMetadataStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)

// Insert adds a metadata row. Returns ErrDuplicateKey if (mint, fetched_at) exists.
func (s *TokenMetadataStore) Insert(ctx context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_metadata (
			mint, name, symbol, image, decimals, price_usd,
			liquidity_usd, market_cap, pool_address, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		m.Mint,
		m.Name,
		m.Symbol,
		m.Image,
		m.Decimals,
		m.PriceUSD,
		m.LiquidityUSD,
		m.MarketCap,
		m.PoolAddress,
		m.FetchedAt,
	)
	observability.RecordDBQuery("postgres", "insert_token_metadata", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token metadata: %w", err)
	}
	return nil
}

// GetByMint retrieves the latest metadata for a mint. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	query := `
		SELECT mint, name, symbol, image, decimals, price_usd,
		       liquidity_usd, market_cap, pool_address, fetched_at
		FROM token_metadata
		WHERE mint = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	start := time.Now()
	row := s.pool.QueryRow(ctx, query, mint)
	m, err := scanTokenMetadata(row)
	if err != nil {
		if isNotFoundError(err) {
			// A miss is not a query error
			observability.RecordDBQuery("postgres", "get_token_metadata", time.Since(start).Seconds(), nil)
			return nil, storage.ErrNotFound
		}
		observability.RecordDBQuery("postgres", "get_token_metadata", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("get token metadata by mint: %w", err)
	}
	observability.RecordDBQuery("postgres", "get_token_metadata", time.Since(start).Seconds(), nil)
	return m, nil
}

// GetFetchedSince retrieves all rows fetched at or after since, ordered by fetched_at ASC.
func (s *TokenMetadataStore) GetFetchedSince(ctx context.Context, since int64) ([]*domain.TokenMetadata, error) {
	query := `
		SELECT mint, name, symbol, image, decimals, price_usd,
		       liquidity_usd, market_cap, pool_address, fetched_at
		FROM token_metadata
		WHERE fetched_at >= $1
		ORDER BY fetched_at ASC, mint ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, since)
	observability.RecordDBQuery("postgres", "get_metadata_fetched_since", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query metadata fetched since: %w", err)
	}
	defer rows.Close()

	var out []*domain.TokenMetadata
	for rows.Next() {
		m, err := scanTokenMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token metadata rows: %w", err)
	}
	return out, nil
}

// scanTokenMetadata scans a single row into TokenMetadata.
func scanTokenMetadata(row pgx.Row) (*domain.TokenMetadata, error) {
	var m domain.TokenMetadata

	err := row.Scan(
		&m.Mint,
		&m.Name,
		&m.Symbol,
		&m.Image,
		&m.Decimals,
		&m.PriceUSD,
		&m.LiquidityUSD,
		&m.MarketCap,
		&m.PoolAddress,
		&m.FetchedAt,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
