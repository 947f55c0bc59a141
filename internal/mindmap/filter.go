// Package mindmap filters raw KOL-connection snapshots and projects them
// into a size-bounded graph for visualization.
package mindmap

import (
	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/mints"
)

// Thresholds define the minimums a KOL connection must meet to count as valid.
type Thresholds struct {
	MinTradeCount int
	MinVolume     float64
	MinInfluence  float64
}

// DefaultThresholds returns the thresholds used by the live mindmap.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTradeCount: 1,
		MinVolume:     10,
		MinInfluence:  10,
	}
}

// Filter applies noise-reduction passes to connection snapshots.
// All methods are pure: input maps are never mutated, output maps are fresh.
type Filter struct {
	thresholds Thresholds
}

// NewFilter creates a Filter with the given thresholds.
func NewFilter(t Thresholds) *Filter {
	return &Filter{thresholds: t}
}

// HasValidConnections reports whether a connection clears all three thresholds.
func (f *Filter) HasValidConnections(c *domain.KOLConnection) bool {
	if c == nil {
		return false
	}
	return c.TradeCount >= f.thresholds.MinTradeCount &&
		c.TotalVolume >= f.thresholds.MinVolume &&
		c.InfluenceScore >= f.thresholds.MinInfluence
}

// FilterExcludedToken removes the base-token record and strips connections
// below the validity thresholds. Tokens left with zero connections are dropped
// and TotalTrades is recomputed for the survivors.
func (f *Filter) FilterExcludedToken(raw domain.ConnectionMap) domain.ConnectionMap {
	return filterConnections(raw, func(mint string) bool {
		return mints.IsValidToken(mint)
	}, f.HasValidConnections)
}

// FilterBySubscription keeps only connections from subscribed KOL wallets.
// Identity transform when onlyShowSubscribed is false.
func (f *Filter) FilterBySubscription(data domain.ConnectionMap, onlyShowSubscribed bool, isSubscribed func(wallet string) bool) domain.ConnectionMap {
	if !onlyShowSubscribed {
		return data
	}
	return filterConnections(data, func(string) bool { return true }, func(c *domain.KOLConnection) bool {
		return c != nil && isSubscribed(c.KOLWallet)
	})
}

// OptimizeNetworkData drops dead connections (zero trades or zero volume).
// It does not apply the base-token exclusion; passes compose in any order.
func (f *Filter) OptimizeNetworkData(data domain.ConnectionMap) domain.ConnectionMap {
	return filterConnections(data, func(string) bool { return true }, func(c *domain.KOLConnection) bool {
		return c != nil && c.TradeCount > 0 && c.TotalVolume > 0
	})
}

// Validate reports whether a snapshot is well-formed enough to filter.
// Filter passes never fail on missing optional fields; this predicate exists
// for callers to reject structurally broken deliveries up front.
func Validate(data domain.ConnectionMap) bool {
	if data == nil {
		return false
	}
	for mint, record := range data {
		if mint == "" || record == nil {
			return false
		}
		if record.TokenMint != "" && record.TokenMint != mint {
			return false
		}
	}
	return true
}

// filterConnections is the shared drop/recompute pass: keep records whose mint
// passes keepToken, keep connections passing keepConn, drop emptied tokens,
// recompute TotalTrades from the survivors.
func filterConnections(data domain.ConnectionMap, keepToken func(string) bool, keepConn func(*domain.KOLConnection) bool) domain.ConnectionMap {
	out := make(domain.ConnectionMap, len(data))
	for mint, record := range data {
		if record == nil || !keepToken(mint) {
			continue
		}

		kept := make(map[string]*domain.KOLConnection, len(record.KOLConnections))
		totalTrades := 0
		for wallet, conn := range record.KOLConnections {
			if !keepConn(conn) {
				continue
			}
			connCopy := *conn
			kept[wallet] = &connCopy
			totalTrades += conn.TradeCount
		}
		if len(kept) == 0 {
			continue
		}

		out[mint] = &domain.TokenConnectionRecord{
			TokenMint:      mint,
			KOLConnections: kept,
			NetworkMetrics: domain.NetworkMetrics{TotalTrades: totalTrades},
		}
	}
	return out
}
