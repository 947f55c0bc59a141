package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/observability"
	"github.com/blok-hamster/kol-play-core/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds one filter-pass summary. Returns ErrDuplicateKey if computed_at exists.
// MergeTree doesn't enforce uniqueness, so existence is checked before insert.
func (s *SnapshotStore) Insert(ctx context.Context, m *domain.NetworkMetadata) error {
	if m == nil || m.ComputedAt == 0 {
		return storage.ErrInvalidInput
	}

	start := time.Now()

	exists, err := s.exists(ctx, m.ComputedAt)
	if err != nil {
		observability.RecordDBQuery("clickhouse", "insert_snapshot", time.Since(start).Seconds(), err)
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO network_snapshots (
			computed_at, token_count, kol_count, filtered_tokens, filtered_kols
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		uint64(m.ComputedAt),
		uint32(m.TokenCount),
		uint32(m.KOLCount),
		uint32(m.FilteredTokens),
		uint32(m.FilteredKOLs),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_snapshot", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves summaries within [start, end] (inclusive), ordered by computed_at ASC.
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.NetworkMetadata, error) {
	query := `
		SELECT computed_at, token_count, kol_count, filtered_tokens, filtered_kols
		FROM network_snapshots
		WHERE computed_at >= ? AND computed_at <= ?
		ORDER BY computed_at ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	observability.RecordDBQuery("clickhouse", "snapshots_by_time_range", time.Since(began).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Latest retrieves the most recent summary. Returns ErrNotFound when empty.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.NetworkMetadata, error) {
	query := `
		SELECT computed_at, token_count, kol_count, filtered_tokens, filtered_kols
		FROM network_snapshots
		ORDER BY computed_at DESC
		LIMIT 1
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query)
	observability.RecordDBQuery("clickhouse", "latest_snapshot", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	out, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out[0], nil
}

// exists checks if a snapshot with the given computed_at exists.
func (s *SnapshotStore) exists(ctx context.Context, computedAt int64) (bool, error) {
	query := `
		SELECT count(*) FROM network_snapshots
		WHERE computed_at = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, uint64(computedAt)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSnapshots scans rows into NetworkMetadata.
func scanSnapshots(rows driver.Rows) ([]*domain.NetworkMetadata, error) {
	var out []*domain.NetworkMetadata
	for rows.Next() {
		var computedAt uint64
		var tokenCount, kolCount, filteredTokens, filteredKOLs uint32
		err := rows.Scan(&computedAt, &tokenCount, &kolCount, &filteredTokens, &filteredKOLs)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, &domain.NetworkMetadata{
			ComputedAt:     int64(computedAt),
			TokenCount:     int(tokenCount),
			KOLCount:       int(kolCount),
			FilteredTokens: int(filteredTokens),
			FilteredKOLs:   int(filteredKOLs),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}
