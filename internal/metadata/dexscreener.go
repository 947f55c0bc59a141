package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// DexScreener endpoint behavior.
const (
	DefaultDexScreenerBaseURL = "https://api.dexscreener.com/latest/dex/tokens"
	dexScreenerBatchSize      = 30
	dexScreenerTimeout        = 10 * time.Second
	defaultDecimals           = 9
)

// DexScreenerClient fetches token metadata from the DexScreener pairs API.
// One request carries up to 30 comma-joined mints; the response lists pairs
// for any of them, in no particular order.
type DexScreenerClient struct {
	baseURL    string
	httpClient *http.Client
}

// DexScreenerOption configures DexScreenerClient.
type DexScreenerOption func(*DexScreenerClient)

// WithDexScreenerBaseURL overrides the API base URL.
func WithDexScreenerBaseURL(u string) DexScreenerOption {
	return func(c *DexScreenerClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDexScreenerHTTPClient sets a custom http.Client.
func WithDexScreenerHTTPClient(client *http.Client) DexScreenerOption {
	return func(c *DexScreenerClient) {
		c.httpClient = client
	}
}

// NewDexScreenerClient creates a new DexScreener metadata client.
func NewDexScreenerClient(opts ...DexScreenerOption) *DexScreenerClient {
	c := &DexScreenerClient{
		baseURL:    DefaultDexScreenerBaseURL,
		httpClient: &http.Client{Timeout: dexScreenerTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ BatchSource = (*DexScreenerClient)(nil)

// BatchSize returns the maximum mints per request.
func (c *DexScreenerClient) BatchSize() int {
	return dexScreenerBatchSize
}

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Info      struct {
		ImageURL  string `json:"imageUrl"`
		OpenGraph string `json:"openGraph"`
		Header    string `json:"header"`
	} `json:"info"`
}

// FetchBatch resolves metadata for up to BatchSize mints in one request.
// Per requested mint, the highest-liquidity pair whose base token matches
// that mint is selected; pairs for other base tokens are ignored. The
// returned map is keyed by lowercase mint.
func (c *DexScreenerClient) FetchBatch(ctx context.Context, mints []string) (map[string]*domain.TokenMetadata, error) {
	if len(mints) == 0 {
		return map[string]*domain.TokenMetadata{}, nil
	}
	if len(mints) > dexScreenerBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(mints), dexScreenerBatchSize)
	}

	endpoint := c.baseURL + "/" + url.PathEscape(strings.Join(mints, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	requested := make(map[string]bool, len(mints))
	for _, mint := range mints {
		requested[strings.ToLower(mint)] = true
	}

	// Best pair per requested mint: base-token identity match required,
	// then highest liquidity wins.
	best := make(map[string]dexScreenerPair)
	for _, pair := range parsed.Pairs {
		key := strings.ToLower(pair.BaseToken.Address)
		if !requested[key] {
			continue
		}
		if current, ok := best[key]; !ok || pair.Liquidity.USD > current.Liquidity.USD {
			best[key] = pair
		}
	}

	now := time.Now().UnixMilli()
	out := make(map[string]*domain.TokenMetadata, len(best))
	for key, pair := range best {
		out[key] = pairToMetadata(pair, now)
	}
	return out, nil
}

func pairToMetadata(pair dexScreenerPair, fetchedAt int64) *domain.TokenMetadata {
	price, _ := strconv.ParseFloat(pair.PriceUSD, 64)
	marketCap := pair.MarketCap
	if marketCap == 0 {
		marketCap = pair.FDV
	}
	return &domain.TokenMetadata{
		Mint:         pair.BaseToken.Address,
		Name:         pair.BaseToken.Name,
		Symbol:       pair.BaseToken.Symbol,
		Image:        resolveImage(pair.Info.ImageURL, pair.Info.OpenGraph, pair.Info.Header),
		Decimals:     defaultDecimals,
		PriceUSD:     price,
		LiquidityUSD: pair.Liquidity.USD,
		MarketCap:    marketCap,
		PoolAddress:  pair.PairAddress,
		FetchedAt:    fetchedAt,
	}
}

// resolveImage returns the first non-empty candidate. The argument order is
// the precedence order: imageUrl, then openGraph, then header.
func resolveImage(candidates ...string) *string {
	for _, c := range candidates {
		if c != "" {
			return &c
		}
	}
	return nil
}
