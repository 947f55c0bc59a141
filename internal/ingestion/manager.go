package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/metadata"
	"github.com/blok-hamster/kol-play-core/internal/mindmap"
	"github.com/blok-hamster/kol-play-core/internal/observability"
	"github.com/blok-hamster/kol-play-core/internal/storage"
)

// ErrInvalidSnapshot is returned when an incoming snapshot fails validation.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Manager turns raw connection-map snapshots into the published mindmap graph.
// Per snapshot it validates, filters, projects, records the pass summary and
// enriches token nodes with display metadata. The latest graph is held for
// the serving layer.
type Manager struct {
	filter *mindmap.Filter
	cache  *metadata.Cache

	snapshotStore storage.SnapshotStore
	metadataStore storage.TokenMetadataStore

	limits             domain.SizeLimits
	onlyShowSubscribed bool
	isSubscribed       func(wallet string) bool
	trending           map[string]bool

	mu     sync.RWMutex
	latest *domain.UnifiedGraph

	logger *log.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	// Filter applies the connection thresholds. Defaults to mindmap defaults.
	Filter *mindmap.Filter
	// Cache resolves token display metadata. Optional.
	Cache *metadata.Cache
	// SnapshotStore records per-pass summaries. Optional.
	SnapshotStore storage.SnapshotStore
	// MetadataStore persists metadata resolved during enrichment. Optional.
	MetadataStore storage.TokenMetadataStore

	// Limits bounds the projected graph. Zero value means desktop limits.
	Limits domain.SizeLimits
	// OnlyShowSubscribed restricts KOLs to the subscribed set.
	OnlyShowSubscribed bool
	// IsSubscribed reports subscription membership for a KOL wallet.
	IsSubscribed func(wallet string) bool
	// Trending marks token mints rendered as trending.
	Trending map[string]bool

	Logger *log.Logger
}

// NewManager creates a new snapshot manager.
func NewManager(opts ManagerOptions) *Manager {
	filter := opts.Filter
	if filter == nil {
		filter = mindmap.NewFilter(mindmap.DefaultThresholds())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[manager] ", log.LstdFlags|log.Lshortfile)
	}
	return &Manager{
		filter:             filter,
		cache:              opts.Cache,
		snapshotStore:      opts.SnapshotStore,
		metadataStore:      opts.MetadataStore,
		limits:             opts.Limits,
		onlyShowSubscribed: opts.OnlyShowSubscribed,
		isSubscribed:       opts.IsSubscribed,
		trending:           opts.Trending,
		logger:             logger,
	}
}

// Run consumes snapshots from the source until the context is cancelled or
// the source channel closes. Processing errors are logged, not fatal: the
// previous graph stays published.
func (m *Manager) Run(ctx context.Context, source SnapshotSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-source.Snapshots():
			if !ok {
				return nil
			}
			if _, err := m.Process(ctx, snapshot); err != nil {
				m.logger.Printf("process snapshot: %v", err)
			}
		}
	}
}

// Process runs one full pass over a raw snapshot and publishes the result.
func (m *Manager) Process(ctx context.Context, raw domain.ConnectionMap) (*domain.UnifiedGraph, error) {
	start := time.Now()

	if !mindmap.Validate(raw) {
		observability.RecordSnapshotRejected()
		return nil, ErrInvalidSnapshot
	}

	data := m.filter.FilterExcludedToken(raw)
	data = m.filter.OptimizeNetworkData(data)
	data = m.filter.FilterBySubscription(data, m.onlyShowSubscribed, m.isSubscribed)

	graph := mindmap.BuildUnifiedGraph(data, m.trending, m.limits)

	if m.snapshotStore != nil {
		err := m.snapshotStore.Insert(ctx, &graph.Metadata)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			// Summary persistence is best-effort, the graph still publishes
			m.logger.Printf("record snapshot summary: %v", err)
		}
	}

	if err := m.enrich(ctx, graph); err != nil {
		return nil, fmt.Errorf("enrich graph: %w", err)
	}

	m.mu.Lock()
	m.latest = graph
	m.mu.Unlock()

	observability.RecordSnapshotProcessed(
		time.Since(start).Seconds(),
		len(graph.Nodes),
		len(graph.Links),
		graph.Metadata.FilteredTokens,
		graph.Metadata.FilteredKOLs,
	)

	return graph, nil
}

// Latest returns the most recently published graph, or nil before the first
// successful pass.
func (m *Manager) Latest() *domain.UnifiedGraph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// enrich relabels token nodes with resolved symbols. Unresolved mints keep
// the mint as label.
func (m *Manager) enrich(ctx context.Context, graph *domain.UnifiedGraph) error {
	if m.cache == nil {
		return nil
	}

	var mints []string
	for _, node := range graph.Nodes {
		if node.Type == domain.NodeTypeToken {
			mints = append(mints, node.ID)
		}
	}
	if len(mints) == 0 {
		return nil
	}

	metas := m.cache.GetMultipleTokenMetadata(ctx, mints)
	for _, node := range graph.Nodes {
		if node.Type != domain.NodeTypeToken {
			continue
		}
		meta := metas[node.ID]
		if meta == nil {
			continue
		}
		switch {
		case meta.Symbol != "":
			node.Label = meta.Symbol
		case meta.Name != "":
			node.Label = meta.Name
		}
		m.persistMetadata(ctx, meta)
	}
	return nil
}

// persistMetadata records a resolved row, best-effort. Cache hits resolve to
// the same (mint, fetched_at) row repeatedly; the duplicate is expected.
func (m *Manager) persistMetadata(ctx context.Context, meta *domain.TokenMetadata) {
	if m.metadataStore == nil {
		return
	}
	err := m.metadataStore.Insert(ctx, meta)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		m.logger.Printf("persist metadata for %s: %v", meta.Mint, err)
	}
}
