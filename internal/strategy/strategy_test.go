package strategy

import (
	"testing"
	"time"

	"github.com/atlas-desktop/futures-core/pkg/clock"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fixedStrategy always returns the same target, edges, and ok flag, so tests
// can assert purity-adjacent properties (same input -> same output).
type fixedStrategy struct {
	id, version string
	target      types.TargetPortfolio
	edges       map[string]decimal.Decimal
	ok          bool
}

func (s fixedStrategy) ID() string      { return s.id }
func (s fixedStrategy) Version() string { return s.version }
func (s fixedStrategy) OnTick(types.MarketSnapshot, types.PortfolioSnapshot) (types.TargetPortfolio, map[string]decimal.Decimal, bool) {
	return s.target, s.edges, s.ok
}

func snapshot() types.MarketSnapshot {
	return types.MarketSnapshot{
		Timestamp: time.Unix(0, 0),
		Quotes: map[string]types.Quote{
			"rb2501": {Symbol: "rb2501", BidPrice: decimal.NewFromInt(3499), AskPrice: decimal.NewFromInt(3500)},
		},
	}
}

func portfolio() types.PortfolioSnapshot {
	return types.PortfolioSnapshot{
		Positions: map[string]types.Position{"rb2501": {Symbol: "rb2501", LongQty: 5}},
		Equity:    decimal.NewFromInt(100000),
	}
}

func TestHostOnTickNoChangeReturnsZeroDecision(t *testing.T) {
	strat := fixedStrategy{id: "s1", version: "v1", ok: false}
	h := NewHost(zap.NewNop(), clock.NewFake(time.Unix(0, 0)), strat)

	dec, err := h.OnTick(snapshot(), portfolio())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Has {
		t.Fatalf("expected Has=false when strategy declines to act")
	}
}

func TestHostOnTickCarriesStrategyIdentityAndHash(t *testing.T) {
	target := types.TargetPortfolio{"rb2501": 10}
	strat := fixedStrategy{id: "momentum", version: "2.1", target: target, ok: true}
	h := NewHost(zap.NewNop(), clock.NewFake(time.Unix(100, 0)), strat)

	dec, err := h.OnTick(snapshot(), portfolio())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Has {
		t.Fatalf("expected Has=true")
	}
	if dec.StrategyID != "momentum" || dec.StrategyVersion != "2.1" {
		t.Fatalf("got identity %s/%s, want momentum/2.1", dec.StrategyID, dec.StrategyVersion)
	}
	if len(dec.FeatureHash) != 16 {
		t.Fatalf("expected 16-hex feature hash, got %q", dec.FeatureHash)
	}
	if dec.Target["rb2501"] != 10 {
		t.Fatalf("expected target rb2501=10, got %d", dec.Target["rb2501"])
	}
}

func TestFeatureHashIsDeterministicAcrossCalls(t *testing.T) {
	target := types.TargetPortfolio{"rb2501": 10}
	strat := fixedStrategy{id: "s", version: "1", target: target, ok: true}
	h := NewHost(zap.NewNop(), clock.NewFake(time.Unix(0, 0)), strat)

	d1, err := h.OnTick(snapshot(), portfolio())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2, err := h.OnTick(snapshot(), portfolio())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d1.FeatureHash != d2.FeatureHash {
		t.Fatalf("expected identical feature hash for identical input, got %s vs %s", d1.FeatureHash, d2.FeatureHash)
	}
}
