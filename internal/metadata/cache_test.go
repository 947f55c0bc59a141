package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// fakeBatchSource is a scripted BatchSource recording every call.
type fakeBatchSource struct {
	mu        sync.Mutex
	calls     [][]string
	data      map[string]*domain.TokenMetadata // keyed by lowercase mint
	err       error
	block     chan struct{} // when non-nil, FetchBatch waits until closed
	batchSize int
}

func (f *fakeBatchSource) BatchSize() int {
	if f.batchSize > 0 {
		return f.batchSize
	}
	return 30
}

func (f *fakeBatchSource) FetchBatch(_ context.Context, mints []string) (map[string]*domain.TokenMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), mints...))
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string]*domain.TokenMetadata)
	for _, mint := range mints {
		key := strings.ToLower(mint)
		if meta, ok := f.data[key]; ok {
			out[key] = meta
		}
	}
	return out, nil
}

func (f *fakeBatchSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSource is a scripted single-item Source.
type fakeSource struct {
	mu    sync.Mutex
	calls []string
	data  map[string]*domain.TokenMetadata
	err   error
}

func (f *fakeSource) Fetch(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mint)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.data[strings.ToLower(mint)], nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func meta(mint string) *domain.TokenMetadata {
	return &domain.TokenMetadata{Mint: mint, Name: mint, Symbol: mint, Decimals: 9}
}

func TestGetTokenMetadata_CachesResult(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{"mint1": meta("mint1")}}
	cache := NewCache(primary, &fakeSource{})
	ctx := context.Background()

	first := cache.GetTokenMetadata(ctx, "mint1")
	second := cache.GetTokenMetadata(ctx, "mint1")

	if first == nil || second == nil {
		t.Fatal("expected metadata for mint1")
	}
	if primary.callCount() != 1 {
		t.Errorf("expected 1 outbound call, got %d", primary.callCount())
	}
}

func TestGetTokenMetadata_CoalescesConcurrentLookups(t *testing.T) {
	block := make(chan struct{})
	primary := &fakeBatchSource{
		data:  map[string]*domain.TokenMetadata{"mint1": meta("mint1")},
		block: block,
	}
	cache := NewCache(primary, &fakeSource{})
	ctx := context.Background()

	results := make([]*domain.TokenMetadata, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = cache.GetTokenMetadata(ctx, "mint1")
	}()

	// Wait until the first caller has the pending entry installed and is
	// blocked in the source call.
	deadline := time.Now().Add(time.Second)
	for primary.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first lookup never reached the source")
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = cache.GetTokenMetadata(ctx, "mint1")
	}()
	time.Sleep(10 * time.Millisecond)

	close(block)
	wg.Wait()

	if results[0] == nil || results[1] == nil {
		t.Fatal("both callers should receive metadata")
	}
	if primary.callCount() != 1 {
		t.Errorf("concurrent lookups must coalesce to 1 outbound call, got %d", primary.callCount())
	}
}

func TestGetTokenMetadata_TTLExpiry(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{"mint1": meta("mint1")}}
	cache := NewCache(primary, &fakeSource{}, WithTTL(10*time.Millisecond))
	ctx := context.Background()

	cache.GetTokenMetadata(ctx, "mint1")
	time.Sleep(20 * time.Millisecond)
	cache.GetTokenMetadata(ctx, "mint1")

	if primary.callCount() != 2 {
		t.Errorf("expired entry must trigger a new outbound call, got %d calls", primary.callCount())
	}
}

func TestGetTokenMetadata_FallbackOnPrimaryMiss(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{}}
	fallback := &fakeSource{data: map[string]*domain.TokenMetadata{"mint1": meta("mint1")}}
	cache := NewCache(primary, fallback)

	got := cache.GetTokenMetadata(context.Background(), "mint1")

	if got == nil {
		t.Fatal("expected metadata from fallback")
	}
	if primary.callCount() != 1 || fallback.callCount() != 1 {
		t.Errorf("expected primary then fallback, got %d/%d", primary.callCount(), fallback.callCount())
	}
}

func TestGetTokenMetadata_NegativeCaching(t *testing.T) {
	primary := &fakeBatchSource{err: errors.New("primary down")}
	fallback := &fakeSource{err: errors.New("fallback down")}
	cache := NewCache(primary, fallback)
	ctx := context.Background()

	if got := cache.GetTokenMetadata(ctx, "mint1"); got != nil {
		t.Fatal("expected nil when both sources fail")
	}
	if got := cache.GetTokenMetadata(ctx, "mint1"); got != nil {
		t.Fatal("second lookup should return cached nil")
	}

	if primary.callCount() != 1 || fallback.callCount() != 1 {
		t.Errorf("negative result must be cached: got %d primary / %d fallback calls",
			primary.callCount(), fallback.callCount())
	}
}

func TestGetMultipleTokenMetadata_BatchesBySourceLimit(t *testing.T) {
	data := make(map[string]*domain.TokenMetadata)
	var mints []string
	for i := 0; i < 35; i++ {
		mint := fmt.Sprintf("mint%02d", i)
		mints = append(mints, mint)
		data[mint] = meta(mint)
	}
	primary := &fakeBatchSource{data: data}
	fallback := &fakeSource{}
	cache := NewCache(primary, fallback)

	results := cache.GetMultipleTokenMetadata(context.Background(), mints)

	if len(results) != 35 {
		t.Fatalf("expected 35 resolutions, got %d", len(results))
	}
	if primary.callCount() != 2 {
		t.Fatalf("35 mints should issue exactly 2 batch calls, got %d", primary.callCount())
	}
	sizes := map[int]bool{len(primary.calls[0]): true, len(primary.calls[1]): true}
	if !sizes[30] || !sizes[5] {
		t.Errorf("expected batch sizes 30 and 5, got %d and %d", len(primary.calls[0]), len(primary.calls[1]))
	}
	if fallback.callCount() != 0 {
		t.Errorf("no fallback calls expected, got %d", fallback.callCount())
	}
}

func TestGetMultipleTokenMetadata_FallbackForUnresolved(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{"mint1": meta("mint1")}}
	fallback := &fakeSource{data: map[string]*domain.TokenMetadata{"mint2": meta("mint2")}}
	cache := NewCache(primary, fallback, WithFallbackDelay(0))

	results := cache.GetMultipleTokenMetadata(context.Background(), []string{"mint1", "mint2", "mint3"})

	if results["mint1"] == nil {
		t.Error("mint1 should resolve via primary batch")
	}
	if results["mint2"] == nil {
		t.Error("mint2 should resolve via fallback")
	}
	if _, present := results["mint3"]; present {
		t.Error("unresolved mint3 must be absent from results, not nil-valued")
	}
	if fallback.callCount() != 2 {
		t.Errorf("expected fallback calls for mint2 and mint3, got %d", fallback.callCount())
	}
}

func TestGetMultipleTokenMetadata_PrimaryFailureFallsThrough(t *testing.T) {
	primary := &fakeBatchSource{err: errors.New("rate limited")}
	fallback := &fakeSource{data: map[string]*domain.TokenMetadata{
		"mint1": meta("mint1"),
		"mint2": meta("mint2"),
	}}
	cache := NewCache(primary, fallback, WithFallbackDelay(0))

	results := cache.GetMultipleTokenMetadata(context.Background(), []string{"mint1", "mint2"})

	if len(results) != 2 {
		t.Fatalf("failed batch must not abort resolution, got %d results", len(results))
	}
	if fallback.callCount() != 2 {
		t.Errorf("expected 2 fallback calls, got %d", fallback.callCount())
	}
}

func TestGetMultipleTokenMetadata_DedupesCaseInsensitive(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{"abc": meta("AbC")}}
	cache := NewCache(primary, &fakeSource{})

	results := cache.GetMultipleTokenMetadata(context.Background(), []string{"AbC", "abc", "ABC"})

	if primary.callCount() != 1 || len(primary.calls[0]) != 1 {
		t.Fatalf("case variants must collapse to one outbound mint, got %v", primary.calls)
	}
	if results["AbC"] == nil {
		t.Error("result should be keyed by the first requested spelling")
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestGetMultipleTokenMetadata_PiggybacksOnPending(t *testing.T) {
	block := make(chan struct{})
	primary := &fakeBatchSource{
		data: map[string]*domain.TokenMetadata{
			"mint1": meta("mint1"),
			"mint2": meta("mint2"),
		},
		block: block,
	}
	cache := NewCache(primary, &fakeSource{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.GetTokenMetadata(ctx, "mint1")
	}()

	deadline := time.Now().Add(time.Second)
	for primary.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("single lookup never reached the source")
		}
		time.Sleep(time.Millisecond)
	}

	var results map[string]*domain.TokenMetadata
	wg.Add(1)
	go func() {
		defer wg.Done()
		results = cache.GetMultipleTokenMetadata(ctx, []string{"mint1", "mint2"})
	}()

	// Give the bulk call time to partition and issue its own batch.
	deadline = time.Now().Add(time.Second)
	for primary.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("bulk lookup never issued its batch")
		}
		time.Sleep(time.Millisecond)
	}

	close(block)
	wg.Wait()

	if results["mint1"] == nil || results["mint2"] == nil {
		t.Fatal("both mints should resolve")
	}
	// mint1 must only ever appear in the first (piggybacked) call.
	for i, call := range primary.calls[1:] {
		for _, mint := range call {
			if strings.EqualFold(mint, "mint1") {
				t.Errorf("call %d re-requested pending mint1", i+1)
			}
		}
	}
}

func TestClear_ForcesRefetch(t *testing.T) {
	primary := &fakeBatchSource{data: map[string]*domain.TokenMetadata{"mint1": meta("mint1")}}
	cache := NewCache(primary, &fakeSource{})
	ctx := context.Background()

	cache.GetTokenMetadata(ctx, "mint1")
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", cache.Len())
	}
	cache.GetTokenMetadata(ctx, "mint1")

	if primary.callCount() != 2 {
		t.Errorf("expected refetch after Clear, got %d calls", primary.callCount())
	}
}
