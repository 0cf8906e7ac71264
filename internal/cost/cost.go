// Package cost implements the fee/slippage/impact estimator and the edge
// gate that rejects signals whose expected edge does not cover the
// estimated cost of executing them (spec.md §4.9).
package cost

import (
	"math"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

// SlippageBaseTicks is the SLIPPAGE_BASE_TICKS constant from spec.md §4.9.
const SlippageBaseTicks = 0.5

// ImpactCoefficient is the market-impact scale factor from spec.md §4.9.
const ImpactCoefficient = 0.1

// Model estimates transaction costs for a prospective order.
type Model struct{}

// NewModel constructs a cost Model. Stateless: kept as a type so call sites
// read the same way as the other components that do carry state.
func NewModel() *Model { return &Model{} }

// FeeEstimate computes the exchange/broker commission for one order.
// notional = qty * price * multiplier for rate-based instruments; per_lot
// instruments charge fee_value per lot regardless of price. The result is
// multiplied by the instrument's close_today_fee_multiplier when the order
// closes a position opened the same trading day.
func (m *Model) FeeEstimate(inst types.Instrument, qty int, price decimal.Decimal, isCloseToday bool) decimal.Decimal {
	var fee decimal.Decimal
	switch inst.FeeKind {
	case types.FeeKindPerLot:
		fee = inst.FeeValue.Mul(decimal.NewFromInt(int64(qty)))
	default: // FeeKindRate
		notional := price.Mul(decimal.NewFromInt(int64(qty))).Mul(decimal.NewFromInt(int64(inst.Multiplier)))
		fee = notional.Mul(inst.FeeValue)
	}
	if isCloseToday && !inst.CloseTodayFeeMultiplier.IsZero() {
		fee = fee.Mul(inst.CloseTodayFeeMultiplier)
	}
	return fee
}

// SlippageEstimate approximates the price impact of consuming book depth:
// SLIPPAGE_BASE_TICKS * (1 + qty/max(depth,1)) * tick * multiplier * qty.
func (m *Model) SlippageEstimate(inst types.Instrument, qty int, depth int) decimal.Decimal {
	d := depth
	if d < 1 {
		d = 1
	}
	factor := decimal.NewFromFloat(SlippageBaseTicks).
		Mul(decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(qty)).Div(decimal.NewFromInt(int64(d)))))
	return factor.Mul(inst.TickSize).Mul(decimal.NewFromInt(int64(inst.Multiplier))).Mul(decimal.NewFromInt(int64(qty)))
}

// ImpactEstimate approximates permanent market impact against average daily
// volume: 0.1 * sqrt(max(qty,0)/max(adv,1)) * tick * multiplier * qty.
func (m *Model) ImpactEstimate(inst types.Instrument, qty int, adv int) decimal.Decimal {
	q := qty
	if q < 0 {
		q = 0
	}
	a := adv
	if a < 1 {
		a = 1
	}
	ratio := float64(q) / float64(a)
	sqrtTerm := decimal.NewFromFloat(math.Sqrt(ratio))
	factor := decimal.NewFromFloat(ImpactCoefficient).Mul(sqrtTerm)
	return factor.Mul(inst.TickSize).Mul(decimal.NewFromInt(int64(inst.Multiplier))).Mul(decimal.NewFromInt(int64(qty)))
}

// TotalCost sums fee, slippage, and impact for one prospective order.
func (m *Model) TotalCost(inst types.Instrument, qty int, price decimal.Decimal, isCloseToday bool, depth, adv int) decimal.Decimal {
	fee := m.FeeEstimate(inst, qty, price, isCloseToday)
	slippage := m.SlippageEstimate(inst, qty, depth)
	impact := m.ImpactEstimate(inst, qty, adv)
	return fee.Add(slippage).Add(impact)
}

// EdgeGate passes iff signalEdge strictly exceeds totalCost.
func EdgeGate(signalEdge, totalCost decimal.Decimal) bool {
	return signalEdge.GreaterThan(totalCost)
}
