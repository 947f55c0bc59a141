package domain

// TokenMetadata represents display metadata for a token mint, resolved from an
// external market-data source. Corresponds to token_metadata table in PostgreSQL.
type TokenMetadata struct {
	Mint         string  `json:"mint"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Image        *string `json:"image,omitempty"` // nullable, not every source carries one
	Decimals     int     `json:"decimals"`
	PriceUSD     float64 `json:"priceUsd"`
	LiquidityUSD float64 `json:"liquidityUsd"`
	MarketCap    float64 `json:"marketCap"`
	PoolAddress  string  `json:"poolAddress,omitempty"`
	FetchedAt    int64   `json:"fetchedAt"` // when metadata was fetched (ms)
}
