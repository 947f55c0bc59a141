package domain

// NodeType distinguishes token vertices from KOL vertices.
type NodeType string

const (
	NodeTypeToken NodeType = "token"
	NodeTypeKOL   NodeType = "kol"
)

// UnifiedNode is a vertex of the mindmap graph, either a token or a KOL.
type UnifiedNode struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Label       string   `json:"label"`
	Value       float64  `json:"value"` // visual weight derived from trade count
	Connections int      `json:"connections"`
	TotalVolume float64  `json:"totalVolume"`
	TradeCount  int      `json:"tradeCount"`

	// Token-only fields.
	IsTrending bool `json:"isTrending,omitempty"`

	// KOL-only fields. RelatedTokens is an ordered sequence, not a set:
	// a token appears once per token record that references the KOL.
	InfluenceScore float64  `json:"influenceScore,omitempty"`
	RelatedTokens  []string `json:"relatedTokens,omitempty"`
}

// UnifiedLink is an edge between a token node and a KOL node.
type UnifiedLink struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	Volume           float64 `json:"volume"`
	TradeCount       int     `json:"tradeCount"`
	AverageTradeSize float64 `json:"averageTradeSize"`
}

// NetworkMetadata summarizes one filter/projection pass.
type NetworkMetadata struct {
	TokenCount     int   `json:"tokenCount"`
	KOLCount       int   `json:"kolCount"`
	FilteredTokens int   `json:"filteredTokens"`
	FilteredKOLs   int   `json:"filteredKols"`
	ComputedAt     int64 `json:"computedAt"` // ms since epoch
}

// UnifiedGraph is the size-bounded visualization graph.
// Every link's source and target are guaranteed present in Nodes.
type UnifiedGraph struct {
	Nodes    []*UnifiedNode  `json:"nodes"`
	Links    []*UnifiedLink  `json:"links"`
	Metadata NetworkMetadata `json:"metadata"`
}

// Default size limits by device tier. Narrow viewports get the smaller budget.
const (
	DesktopMaxNodes = 150
	DesktopMaxLinks = 300
	MobileMaxNodes  = 60
	MobileMaxLinks  = 120
)

// SizeLimits bounds the projected graph.
type SizeLimits struct {
	MaxNodes int `json:"maxNodes"`
	MaxLinks int `json:"maxLinks"`
}

// DesktopLimits returns the default desktop-tier limits.
func DesktopLimits() SizeLimits {
	return SizeLimits{MaxNodes: DesktopMaxNodes, MaxLinks: DesktopMaxLinks}
}

// MobileLimits returns the default mobile-tier limits.
func MobileLimits() SizeLimits {
	return SizeLimits{MaxNodes: MobileMaxNodes, MaxLinks: MobileMaxLinks}
}
