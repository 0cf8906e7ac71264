package strategy

import (
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Noop is the default Strategy bound when no real strategy model is wired
// in: it never proposes a change. Strategy model internals are opaque
// producers of target portfolios injected from outside the core (spec.md
// §1 Non-goals); this exists only so the process has something to run
// against out of the box.
type Noop struct {
	id, version string
}

// NewNoop constructs a Noop strategy carrying the given identity, so its
// DecisionEvents (were it ever to fire, which it never does) would still
// resolve to a real (strategy_id, strategy_version) pair.
func NewNoop(id, version string) Noop {
	return Noop{id: id, version: version}
}

func (n Noop) ID() string      { return n.id }
func (n Noop) Version() string { return n.version }

func (n Noop) OnTick(types.MarketSnapshot, types.PortfolioSnapshot) (types.TargetPortfolio, map[string]decimal.Decimal, bool) {
	return nil, nil, false
}
