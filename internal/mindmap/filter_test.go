package mindmap

import (
	"testing"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/mints"
)

func snapshot(records ...*domain.TokenConnectionRecord) domain.ConnectionMap {
	m := make(domain.ConnectionMap)
	for _, r := range records {
		m[r.TokenMint] = r
	}
	return m
}

func record(mint string, conns ...*domain.KOLConnection) *domain.TokenConnectionRecord {
	r := &domain.TokenConnectionRecord{
		TokenMint:      mint,
		KOLConnections: make(map[string]*domain.KOLConnection),
	}
	for _, c := range conns {
		r.KOLConnections[c.KOLWallet] = c
		r.NetworkMetrics.TotalTrades += c.TradeCount
	}
	return r
}

func TestHasValidConnections_AboveThresholds(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	if !f.HasValidConnections(&domain.KOLConnection{TradeCount: 5, TotalVolume: 100, InfluenceScore: 80}) {
		t.Error("connection clearing all thresholds should be valid")
	}
}

func TestHasValidConnections_ZeroConnection(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	if f.HasValidConnections(&domain.KOLConnection{TradeCount: 0, TotalVolume: 0, InfluenceScore: 0}) {
		t.Error("zero connection should be invalid")
	}
	if f.HasValidConnections(nil) {
		t.Error("nil connection should be invalid")
	}
}

func TestHasValidConnections_EachThresholdIndependently(t *testing.T) {
	f := NewFilter(Thresholds{MinTradeCount: 2, MinVolume: 50, MinInfluence: 10})

	cases := []struct {
		name string
		conn domain.KOLConnection
		want bool
	}{
		{"all pass", domain.KOLConnection{TradeCount: 2, TotalVolume: 50, InfluenceScore: 10}, true},
		{"trade count below", domain.KOLConnection{TradeCount: 1, TotalVolume: 50, InfluenceScore: 10}, false},
		{"volume below", domain.KOLConnection{TradeCount: 2, TotalVolume: 49, InfluenceScore: 10}, false},
		{"influence below", domain.KOLConnection{TradeCount: 2, TotalVolume: 50, InfluenceScore: 9}, false},
	}
	for _, tc := range cases {
		if got := f.HasValidConnections(&tc.conn); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterExcludedToken_DropsBaseToken(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(
		record(mints.ExcludedMint, &domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90}),
		record("TOKEN_A", &domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90}),
	)

	out := f.FilterExcludedToken(raw)

	if _, exists := out[mints.ExcludedMint]; exists {
		t.Error("excluded mint must never appear in filter output")
	}
	if _, exists := out["TOKEN_A"]; !exists {
		t.Error("TOKEN_A should survive")
	}
	if len(out) != 1 {
		t.Errorf("expected 1 token, got %d", len(out))
	}
}

func TestFilterExcludedToken_DropsWeakConnectionsAndRecomputes(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record("TOKEN_A",
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90},
		&domain.KOLConnection{KOLWallet: "kol2", TradeCount: 0, TotalVolume: 0, InfluenceScore: 0},
	))

	out := f.FilterExcludedToken(raw)

	tokenA := out["TOKEN_A"]
	if tokenA == nil {
		t.Fatal("TOKEN_A missing from output")
	}
	if len(tokenA.KOLConnections) != 1 {
		t.Fatalf("expected 1 surviving connection, got %d", len(tokenA.KOLConnections))
	}
	if tokenA.NetworkMetrics.TotalTrades != 10 {
		t.Errorf("TotalTrades should be recomputed to 10, got %d", tokenA.NetworkMetrics.TotalTrades)
	}
}

func TestFilterExcludedToken_DropsEmptiedTokens(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record("TOKEN_B",
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 0, TotalVolume: 0, InfluenceScore: 0},
	))

	out := f.FilterExcludedToken(raw)

	if len(out) != 0 {
		t.Errorf("token with no surviving connections must be dropped, got %d records", len(out))
	}
}

func TestFilterExcludedToken_DoesNotMutateInput(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record("TOKEN_A",
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90},
		&domain.KOLConnection{KOLWallet: "kol2", TradeCount: 0, TotalVolume: 0, InfluenceScore: 0},
	))

	out := f.FilterExcludedToken(raw)

	if len(raw["TOKEN_A"].KOLConnections) != 2 {
		t.Error("input snapshot was mutated")
	}
	out["TOKEN_A"].KOLConnections["kol1"].TradeCount = 999
	if raw["TOKEN_A"].KOLConnections["kol1"].TradeCount != 10 {
		t.Error("output shares connection structs with input")
	}
}

func TestFilterBySubscription_IdentityWhenOff(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record("TOKEN_A",
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90},
	))

	out := f.FilterBySubscription(raw, false, func(string) bool { return false })

	if len(out) != 1 || out["TOKEN_A"] == nil {
		t.Error("subscription pass should be identity when disabled")
	}
}

func TestFilterBySubscription_KeepsOnlySubscribed(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(
		record("TOKEN_A",
			&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 10, TotalVolume: 200, InfluenceScore: 90},
			&domain.KOLConnection{KOLWallet: "kol2", TradeCount: 4, TotalVolume: 80, InfluenceScore: 60},
		),
		record("TOKEN_B",
			&domain.KOLConnection{KOLWallet: "kol2", TradeCount: 3, TotalVolume: 50, InfluenceScore: 40},
		),
	)

	subscribed := map[string]bool{"kol1": true}
	out := f.FilterBySubscription(raw, true, func(w string) bool { return subscribed[w] })

	if _, exists := out["TOKEN_B"]; exists {
		t.Error("TOKEN_B has no subscribed KOLs and must be dropped")
	}
	tokenA := out["TOKEN_A"]
	if tokenA == nil {
		t.Fatal("TOKEN_A missing")
	}
	if len(tokenA.KOLConnections) != 1 || tokenA.KOLConnections["kol1"] == nil {
		t.Error("only kol1 should survive the subscription pass")
	}
	if tokenA.NetworkMetrics.TotalTrades != 10 {
		t.Errorf("TotalTrades should be recomputed to 10, got %d", tokenA.NetworkMetrics.TotalTrades)
	}
}

func TestOptimizeNetworkData_DropsDeadConnections(t *testing.T) {
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record("TOKEN_A",
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 2, TotalVolume: 5, InfluenceScore: 1},
		&domain.KOLConnection{KOLWallet: "kol2", TradeCount: 0, TotalVolume: 100, InfluenceScore: 50},
		&domain.KOLConnection{KOLWallet: "kol3", TradeCount: 7, TotalVolume: 0, InfluenceScore: 50},
	))

	out := f.OptimizeNetworkData(raw)

	tokenA := out["TOKEN_A"]
	if tokenA == nil {
		t.Fatal("TOKEN_A missing")
	}
	if len(tokenA.KOLConnections) != 1 || tokenA.KOLConnections["kol1"] == nil {
		t.Error("only kol1 has both trades and volume")
	}
	if tokenA.NetworkMetrics.TotalTrades != 2 {
		t.Errorf("TotalTrades should be 2, got %d", tokenA.NetworkMetrics.TotalTrades)
	}
}

func TestOptimizeNetworkData_KeepsBaseToken(t *testing.T) {
	// Exclusion is a separate composable pass.
	f := NewFilter(DefaultThresholds())

	raw := snapshot(record(mints.ExcludedMint,
		&domain.KOLConnection{KOLWallet: "kol1", TradeCount: 2, TotalVolume: 5, InfluenceScore: 1},
	))

	out := f.OptimizeNetworkData(raw)

	if _, exists := out[mints.ExcludedMint]; !exists {
		t.Error("optimize pass must not apply base-token exclusion")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		data domain.ConnectionMap
		want bool
	}{
		{"nil map", nil, false},
		{"empty map", domain.ConnectionMap{}, true},
		{"empty mint key", domain.ConnectionMap{"": record("")}, false},
		{"nil record", domain.ConnectionMap{"TOKEN_A": nil}, false},
		{"mint mismatch", domain.ConnectionMap{"TOKEN_A": record("TOKEN_B")}, false},
		{"well-formed", snapshot(record("TOKEN_A", &domain.KOLConnection{KOLWallet: "kol1", TradeCount: 1, TotalVolume: 1, InfluenceScore: 1})), true},
	}
	for _, tc := range cases {
		if got := Validate(tc.data); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
