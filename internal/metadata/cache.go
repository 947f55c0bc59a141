package metadata

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/observability"
)

// Default cache behavior.
const (
	DefaultTTL                 = 5 * time.Minute
	DefaultFallbackConcurrency = 2
	DefaultFallbackDelay       = 200 * time.Millisecond
)

// entry is one memoized resolution. A nil Meta is a legitimate cached
// negative result: both sources had nothing for the mint.
type entry struct {
	Meta      *domain.TokenMetadata
	FetchedAt time.Time
}

// inflight is a resolution shared by every caller requesting the same mint
// while it is outstanding. Meta is written before done is closed.
type inflight struct {
	done chan struct{}
	meta *domain.TokenMetadata
}

// Cache memoizes token metadata resolved from a primary batch source with a
// single-item fallback. Concurrent lookups for the same mint coalesce onto
// one outbound call: the pending entry is installed under the lock before
// any network I/O starts, and removed the instant that mint's resolution
// settles. Construct one Cache at startup and inject it.
type Cache struct {
	primary  BatchSource
	fallback Source

	ttl                 time.Duration
	fallbackConcurrency int
	fallbackDelay       time.Duration

	mu      sync.Mutex
	entries map[string]entry     // keyed by lowercase mint
	pending map[string]*inflight // keyed by lowercase mint

	logger *log.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the cache entry lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = d
	}
}

// WithFallbackConcurrency bounds concurrent fallback-source calls.
func WithFallbackConcurrency(n int) CacheOption {
	return func(c *Cache) {
		c.fallbackConcurrency = n
	}
}

// WithFallbackDelay sets the pause between fallback chunks.
func WithFallbackDelay(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.fallbackDelay = d
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *log.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache creates a metadata cache over the given sources.
func NewCache(primary BatchSource, fallback Source, opts ...CacheOption) *Cache {
	c := &Cache{
		primary:             primary,
		fallback:            fallback,
		ttl:                 DefaultTTL,
		fallbackConcurrency: DefaultFallbackConcurrency,
		fallbackDelay:       DefaultFallbackDelay,
		entries:             make(map[string]entry),
		pending:             make(map[string]*inflight),
		logger:              log.New(os.Stdout, "[metadata] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTokenMetadata resolves metadata for one mint. It returns nil when the
// mint is unknown to both sources; that miss is cached for the TTL so hot
// retry loops never reach the network. Cancelling ctx abandons the wait but
// never the resolution: the in-flight call completes and populates the cache.
func (c *Cache) GetTokenMetadata(ctx context.Context, mint string) *domain.TokenMetadata {
	key := strings.ToLower(mint)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.FetchedAt) < c.ttl {
		c.mu.Unlock()
		if e.Meta == nil {
			observability.RecordNegativeHit()
		} else {
			observability.RecordCacheHit()
		}
		return e.Meta
	}
	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		observability.RecordCoalescedWait()
		return c.await(ctx, p)
	}
	p := &inflight{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	observability.RecordCacheMiss()

	// Resolution outlives any single waiter.
	meta := c.resolve(context.WithoutCancel(ctx), mint)
	c.settle(key, p, meta)
	return meta
}

// GetMultipleTokenMetadata resolves metadata for many mints. Input is
// de-duplicated case-insensitively; the result map is keyed by the first
// requested spelling and contains only mints that resolved to metadata.
// Uncached mints are batched against the primary source, with per-mint
// fallback for anything the batches did not cover. Each mint's pending
// entry settles the moment its own answer is known.
func (c *Cache) GetMultipleTokenMetadata(ctx context.Context, mints []string) map[string]*domain.TokenMetadata {
	// Dedupe, preserving the first spelling for result keys.
	spelling := make(map[string]string, len(mints))
	var keys []string
	for _, mint := range mints {
		if mint == "" {
			continue
		}
		key := strings.ToLower(mint)
		if _, seen := spelling[key]; !seen {
			spelling[key] = mint
			keys = append(keys, key)
		}
	}

	results := make(map[string]*domain.TokenMetadata, len(keys))
	var piggyback []struct {
		key string
		p   *inflight
	}
	var uncached []string
	owned := make(map[string]*inflight)

	c.mu.Lock()
	for _, key := range keys {
		if e, ok := c.entries[key]; ok && time.Since(e.FetchedAt) < c.ttl {
			if e.Meta != nil {
				results[spelling[key]] = e.Meta
				observability.RecordCacheHit()
			} else {
				observability.RecordNegativeHit()
			}
			continue
		}
		if p, ok := c.pending[key]; ok {
			piggyback = append(piggyback, struct {
				key string
				p   *inflight
			}{key, p})
			observability.RecordCoalescedWait()
			continue
		}
		p := &inflight{done: make(chan struct{})}
		c.pending[key] = p
		owned[key] = p
		uncached = append(uncached, spelling[key])
	}
	c.mu.Unlock()

	if len(uncached) > 0 {
		resolved := c.resolveBatch(context.WithoutCancel(ctx), uncached, owned)
		for key, meta := range resolved {
			if meta != nil {
				results[spelling[key]] = meta
			}
		}
	}

	for _, w := range piggyback {
		if meta := c.await(ctx, w.p); meta != nil {
			results[spelling[w.key]] = meta
		}
	}

	return results
}

// Clear drops all cached entries. In-flight resolutions are unaffected.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of cached entries, live or expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// await blocks until the shared resolution settles or ctx is done.
func (c *Cache) await(ctx context.Context, p *inflight) *domain.TokenMetadata {
	select {
	case <-p.done:
		return p.meta
	case <-ctx.Done():
		return nil
	}
}

// settle writes the result to the cache, removes the pending entry, and
// releases every waiter. Must be called exactly once per inflight.
func (c *Cache) settle(key string, p *inflight, meta *domain.TokenMetadata) {
	c.mu.Lock()
	c.entries[key] = entry{Meta: meta, FetchedAt: time.Now()}
	delete(c.pending, key)
	c.mu.Unlock()

	p.meta = meta
	close(p.done)
}

// resolve runs the primary→fallback chain for a single mint. Failures
// degrade to nil, never to an error.
func (c *Cache) resolve(ctx context.Context, mint string) *domain.TokenMetadata {
	if c.primary != nil {
		batch, err := c.primary.FetchBatch(ctx, []string{mint})
		if err != nil {
			observability.RecordOutboundCall("primary", "error")
			c.logger.Printf("primary lookup failed for %s: %v", mint, err)
		} else {
			observability.RecordOutboundCall("primary", "ok")
			if meta := batch[strings.ToLower(mint)]; meta != nil {
				return meta
			}
		}
	}
	return c.resolveFallback(ctx, mint)
}

func (c *Cache) resolveFallback(ctx context.Context, mint string) *domain.TokenMetadata {
	if c.fallback == nil {
		return nil
	}
	meta, err := c.fallback.Fetch(ctx, mint)
	if err != nil {
		observability.RecordOutboundCall("fallback", "error")
		c.logger.Printf("fallback lookup failed for %s: %v", mint, err)
		return nil
	}
	observability.RecordOutboundCall("fallback", "ok")
	return meta
}

// resolveBatch resolves the owned uncached mints: primary batch calls in
// parallel, then bounded-concurrency fallback for the remainder. Every owned
// mint settles exactly once, individually, as soon as its answer is known.
// mints carry their original spelling (base58 is case-sensitive on the wire);
// owned and the returned map are keyed by lowercase mint.
func (c *Cache) resolveBatch(ctx context.Context, mints []string, owned map[string]*inflight) map[string]*domain.TokenMetadata {
	results := make(map[string]*domain.TokenMetadata, len(mints))
	var resultsMu sync.Mutex

	var missing []string
	var missingMu sync.Mutex

	settleNow := func(mint string, meta *domain.TokenMetadata) {
		key := strings.ToLower(mint)
		c.settle(key, owned[key], meta)
		resultsMu.Lock()
		results[key] = meta
		resultsMu.Unlock()
	}

	if c.primary == nil {
		missing = mints
	} else {
		batchSize := c.primary.BatchSize()
		if batchSize < 1 {
			batchSize = 1
		}

		var wg sync.WaitGroup
		for start := 0; start < len(mints); start += batchSize {
			end := start + batchSize
			if end > len(mints) {
				end = len(mints)
			}
			chunk := mints[start:end]

			wg.Add(1)
			go func() {
				defer wg.Done()

				resolved, err := c.primary.FetchBatch(ctx, chunk)
				if err != nil {
					observability.RecordOutboundCall("primary", "error")
					c.logger.Printf("primary batch of %d failed: %v", len(chunk), err)
					resolved = nil
				} else {
					observability.RecordOutboundCall("primary", "ok")
				}

				// Match by identity, never by position: the response may
				// carry unrelated entries.
				for _, mint := range chunk {
					if meta := resolved[strings.ToLower(mint)]; meta != nil {
						settleNow(mint, meta)
						continue
					}
					missingMu.Lock()
					missing = append(missing, mint)
					missingMu.Unlock()
				}
			}()
		}
		wg.Wait()
	}

	// Fallback path: bounded concurrency with a pause between chunks to
	// respect the source's rate limits.
	concurrency := c.fallbackConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for start := 0; start < len(missing); start += concurrency {
		if start > 0 && c.fallbackDelay > 0 {
			select {
			case <-time.After(c.fallbackDelay):
			case <-ctx.Done():
			}
		}
		end := start + concurrency
		if end > len(missing) {
			end = len(missing)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, mint := range missing[start:end] {
			g.Go(func() error {
				settleNow(mint, c.resolveFallback(gctx, mint))
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}
