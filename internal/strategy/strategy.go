// Package strategy defines the strategy interface and the StrategyHost that
// invokes strategies against market/portfolio snapshots and turns their
// output into a Decision ready for the audit trail (spec.md §2 StrategyHost,
// §6 "Strategy interface").
package strategy

import (
	"time"

	"github.com/atlas-desktop/futures-core/internal/audit"
	"github.com/atlas-desktop/futures-core/pkg/clock"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Strategy is the interface every strategy implements. Strategies must be
// pure functions of their input state per tick — no hidden I/O — so that
// two runs over the same input tape produce identical decisions (spec.md §6,
// §8 property 2).
//
// OnTick returns ok=false when the strategy has no change to propose for
// this tick; the orchestrator then carries the current portfolio forward
// unchanged. Edges carries the per-symbol expected signal edge for any
// symbol present in target, in money terms comparable to CostModel's
// estimate (spec.md §4.9); a symbol absent from Edges is treated as having
// no asserted edge and skips the edge gate for that symbol.
type Strategy interface {
	ID() string
	Version() string
	OnTick(snapshot types.MarketSnapshot, portfolio types.PortfolioSnapshot) (target types.TargetPortfolio, edges map[string]decimal.Decimal, ok bool)
}

// Decision is one strategy invocation's output, ready to become a
// DecisionEvent and feed the guardian mode filter (spec.md §3 Event
// "DecisionEvent additionally carries strategy_id, strategy_version,
// feature_hash, target_portfolio").
type Decision struct {
	Ts              time.Time
	StrategyID      string
	StrategyVersion string
	FeatureHash     string
	Target          types.TargetPortfolio
	Edges           map[string]decimal.Decimal
	Has             bool
}

// Host receives market snapshots, invokes the bound strategy, and computes
// the feature_hash over the tick's input state (spec.md §2 StrategyHost).
type Host struct {
	logger   *zap.Logger
	clock    clock.Clock
	strategy Strategy
}

// NewHost constructs a Host bound to one strategy for the lifetime of a run;
// spec.md §6 ties strategy identity to (strategy_id, strategy_version), so
// swapping strategies mid-run would require a new Host.
func NewHost(logger *zap.Logger, clk clock.Clock, strat Strategy) *Host {
	return &Host{
		logger:   logger.Named("strategy-host"),
		clock:    clk,
		strategy: strat,
	}
}

// OnTick invokes the bound strategy and, if it proposes a change, hashes the
// tick's feature inputs into feature_hash (spec.md §3).
func (h *Host) OnTick(snapshot types.MarketSnapshot, portfolio types.PortfolioSnapshot) (Decision, error) {
	target, edges, ok := h.strategy.OnTick(snapshot, portfolio)
	if !ok {
		return Decision{}, nil
	}

	hash, err := audit.FeatureHash(featureMap(snapshot, portfolio))
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Ts:              h.clock.Now(),
		StrategyID:      h.strategy.ID(),
		StrategyVersion: h.strategy.Version(),
		FeatureHash:     hash,
		Target:          target.Clone(),
		Edges:           edges,
		Has:             true,
	}, nil
}

// featureMap flattens the strategy's input state into the canonical mapping
// feature_hash is computed over (spec.md §3: "canonical JSON serialisation
// ... of the strategy input feature mapping for a single decision").
func featureMap(snapshot types.MarketSnapshot, portfolio types.PortfolioSnapshot) map[string]interface{} {
	quotes := make(map[string]interface{}, len(snapshot.Quotes))
	for symbol, q := range snapshot.Quotes {
		quotes[symbol] = map[string]interface{}{
			"bid":           q.BidPrice,
			"ask":           q.AskPrice,
			"bid_volume":    q.BidVolume,
			"ask_volume":    q.AskVolume,
			"settle":        q.SettlePrice,
			"at_price_band": q.AtPriceBand,
		}
	}
	positions := make(map[string]interface{}, len(portfolio.Positions))
	for symbol, p := range portfolio.Positions {
		positions[symbol] = map[string]interface{}{
			"long_qty":       p.LongQty,
			"short_qty":      p.ShortQty,
			"long_avg_cost":  p.LongAvgCost,
			"short_avg_cost": p.ShortAvgCost,
		}
	}
	return map[string]interface{}{
		"quotes":    quotes,
		"positions": positions,
		"equity":    portfolio.Equity,
	}
}
