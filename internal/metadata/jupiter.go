package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// DefaultJupiterBaseURL is the Jupiter token API endpoint.
const DefaultJupiterBaseURL = "https://lite-api.jup.ag/tokens/v2/search"

const jupiterTimeout = 10 * time.Second

// JupiterClient is the single-item fallback metadata source. Its field
// naming differs from the primary source (icon, usdPrice, mcap) and it
// omits pool data.
type JupiterClient struct {
	baseURL    string
	httpClient *http.Client
}

// JupiterOption configures JupiterClient.
type JupiterOption func(*JupiterClient)

// WithJupiterBaseURL overrides the API base URL.
func WithJupiterBaseURL(u string) JupiterOption {
	return func(c *JupiterClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithJupiterHTTPClient sets a custom http.Client.
func WithJupiterHTTPClient(client *http.Client) JupiterOption {
	return func(c *JupiterClient) {
		c.httpClient = client
	}
}

// NewJupiterClient creates a new Jupiter metadata client.
func NewJupiterClient(opts ...JupiterOption) *JupiterClient {
	c := &JupiterClient{
		baseURL:    DefaultJupiterBaseURL,
		httpClient: &http.Client{Timeout: jupiterTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Source = (*JupiterClient)(nil)

type jupiterToken struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Icon      string  `json:"icon"`
	Decimals  *int    `json:"decimals"`
	USDPrice  float64 `json:"usdPrice"`
	MCap      float64 `json:"mcap"`
	FDV       float64 `json:"fdv"`
	Liquidity float64 `json:"liquidity"`
}

// Fetch resolves metadata for a single mint. Returns (nil, nil) when the
// source has no record; decimals default to 9 when the source omits them.
func (c *JupiterClient) Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	endpoint := c.baseURL + "?query=" + url.QueryEscape(mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tokens []jupiterToken
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Identity match, same rule as the batch path: a search response may
	// contain lookalike tokens.
	for _, token := range tokens {
		if !strings.EqualFold(token.ID, mint) {
			continue
		}
		decimals := defaultDecimals
		if token.Decimals != nil {
			decimals = *token.Decimals
		}
		marketCap := token.MCap
		if marketCap == 0 {
			marketCap = token.FDV
		}
		return &domain.TokenMetadata{
			Mint:         token.ID,
			Name:         token.Name,
			Symbol:       token.Symbol,
			Image:        resolveImage(token.Icon),
			Decimals:     decimals,
			PriceUSD:     token.USDPrice,
			LiquidityUSD: token.Liquidity,
			MarketCap:    marketCap,
			FetchedAt:    time.Now().UnixMilli(),
		}, nil
	}
	return nil, nil
}
