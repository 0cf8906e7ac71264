// Package position implements trade-driven position tracking and periodic
// reconciliation against broker-reported net positions (spec.md §4.10).
package position

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker owns the local Position for every symbol it has seen a trade or
// snapshot for.
type Tracker struct {
	logger     *zap.Logger
	positions  map[string]types.Position
	onMismatch func(errs.ReconcileMismatch)
}

// New constructs an empty Tracker.
func New(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:    logger.Named("position-tracker"),
		positions: make(map[string]types.Position),
	}
}

// SetMismatchHandler registers the callback invoked per-symbol on reconcile mismatch.
func (t *Tracker) SetMismatchHandler(fn func(errs.ReconcileMismatch)) {
	t.onMismatch = fn
}

// Get returns the current Position for symbol, zero-valued if unseen.
func (t *Tracker) Get(symbol string) types.Position {
	if p, ok := t.positions[symbol]; ok {
		return p
	}
	return types.Position{Symbol: symbol}
}

// ApplyTrade updates the tracked position for trade.Symbol. Opens increment
// the directional leg and recompute its weighted average cost. Closes
// decrement the opposite leg, consuming against its stored avg_cost;
// closing more than is held returns errs.ErrInsufficientPosition and leaves
// the position untouched.
func (t *Tracker) ApplyTrade(trade types.Trade) error {
	pos := t.Get(trade.Symbol)

	if trade.Offset == types.OffsetOpen {
		pos = applyOpen(pos, trade.Direction, trade.Qty, trade.Price)
		t.positions[trade.Symbol] = pos
		return nil
	}

	next, err := applyClose(pos, trade.Direction, trade.Qty)
	if err != nil {
		return fmt.Errorf("%s: %w", trade.Symbol, err)
	}
	t.positions[trade.Symbol] = next
	return nil
}

func applyOpen(pos types.Position, dir types.Direction, qty int, price decimal.Decimal) types.Position {
	q := decimal.NewFromInt(int64(qty))
	switch dir {
	case types.DirectionBuy:
		total := pos.LongQty + qty
		if total > 0 {
			weighted := pos.LongAvgCost.Mul(decimal.NewFromInt(int64(pos.LongQty))).Add(price.Mul(q))
			pos.LongAvgCost = weighted.Div(decimal.NewFromInt(int64(total)))
		}
		pos.LongQty = total
	case types.DirectionSell:
		total := pos.ShortQty + qty
		if total > 0 {
			weighted := pos.ShortAvgCost.Mul(decimal.NewFromInt(int64(pos.ShortQty))).Add(price.Mul(q))
			pos.ShortAvgCost = weighted.Div(decimal.NewFromInt(int64(total)))
		}
		pos.ShortQty = total
	}
	return pos
}

// applyClose consumes qty against the opposite leg: selling closes a long,
// buying closes a short.
func applyClose(pos types.Position, dir types.Direction, qty int) (types.Position, error) {
	switch dir {
	case types.DirectionSell:
		if qty > pos.LongQty {
			return pos, fmt.Errorf("%w: close qty %d exceeds long %d", errs.ErrInsufficientPosition, qty, pos.LongQty)
		}
		pos.LongQty -= qty
		if pos.LongQty == 0 {
			pos.LongAvgCost = decimal.Zero
		}
	case types.DirectionBuy:
		if qty > pos.ShortQty {
			return pos, fmt.Errorf("%w: close qty %d exceeds short %d", errs.ErrInsufficientPosition, qty, pos.ShortQty)
		}
		pos.ShortQty -= qty
		if pos.ShortQty == 0 {
			pos.ShortAvgCost = decimal.Zero
		}
	}
	return pos, nil
}

// Reconcile compares local net positions against brokerPositions
// (symbol -> net_qty), invoking the mismatch handler and returning every
// disagreement found (spec.md §4.10).
func (t *Tracker) Reconcile(brokerPositions map[string]int) []errs.ReconcileMismatch {
	symbols := make(map[string]struct{}, len(t.positions)+len(brokerPositions))
	for s := range t.positions {
		symbols[s] = struct{}{}
	}
	for s := range brokerPositions {
		symbols[s] = struct{}{}
	}

	var mismatches []errs.ReconcileMismatch
	for symbol := range symbols {
		local := t.Get(symbol).NetQty()
		broker := brokerPositions[symbol]
		if local != broker {
			mismatch := errs.ReconcileMismatch{Symbol: symbol, Local: local, Broker: broker}
			mismatches = append(mismatches, mismatch)
			t.logger.Warn("position mismatch",
				zap.String("symbol", symbol), zap.Int("local", local), zap.Int("broker", broker))
			if t.onMismatch != nil {
				t.onMismatch(mismatch)
			}
		}
	}
	return mismatches
}

// SyncFromBroker overwrites local positions with broker-reported net
// quantities, discarding any tracked average cost. Used after a gateway
// disconnect/resync (spec.md §4.10, §7 GatewayDisconnected).
func (t *Tracker) SyncFromBroker(brokerPositions map[string]int) {
	next := make(map[string]types.Position, len(brokerPositions))
	for symbol, net := range brokerPositions {
		p := types.Position{Symbol: symbol}
		if net >= 0 {
			p.LongQty = net
		} else {
			p.ShortQty = -net
		}
		next[symbol] = p
	}
	t.positions = next
	t.logger.Info("positions synced from broker", zap.Int("symbols", len(next)))
}
