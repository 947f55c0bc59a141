package domain

// TradeType classifies the direction of a KOL trade.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// KOLConnection represents one KOL wallet's trading relationship to one token.
type KOLConnection struct {
	KOLWallet      string      `json:"kolWallet"`
	TradeCount     int         `json:"tradeCount"`
	TotalVolume    float64     `json:"totalVolume"`
	InfluenceScore float64     `json:"influenceScore"`
	LastTradeTime  int64       `json:"lastTradeTime"` // ms since epoch
	TradeTypes     []TradeType `json:"tradeTypes,omitempty"`
}

// NetworkMetrics holds aggregates derived from a token's connection map.
// TotalTrades must be recomputed after any filtering of connections.
type NetworkMetrics struct {
	TotalTrades int `json:"totalTrades"`
}

// TokenConnectionRecord is one token's full KOL connection map as delivered
// by the connection-update stream. Records are immutable once filtered:
// every filter pass produces a fresh record.
type TokenConnectionRecord struct {
	TokenMint      string                    `json:"tokenMint"`
	KOLConnections map[string]*KOLConnection `json:"kolConnections"`
	NetworkMetrics NetworkMetrics            `json:"networkMetrics"`
}

// ConnectionMap is a full snapshot keyed by token mint.
type ConnectionMap map[string]*TokenConnectionRecord
