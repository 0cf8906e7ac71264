package protection

import (
	"github.com/atlas-desktop/futures-core/pkg/utils"
	"github.com/shopspring/decimal"
)

// LimitPriceGate rejects orders outside the daily price band computed from
// settle price, instrument pct, and tick size (spec.md §4.7, §8 property 6).
type LimitPriceGate struct {
	RejectAtBand bool
}

func (g *LimitPriceGate) Name() string { return "limit_price" }

func (g *LimitPriceGate) Check(ctx Context) Result {
	settle := ctx.Settle
	pct := ctx.Instrument.PriceBandPct
	tick := ctx.Instrument.TickSize

	one := decimal.NewFromInt(1)
	up := utils.RoundDownToTick(settle.Mul(one.Add(pct)), tick)
	down := utils.RoundUpToTick(settle.Mul(one.Sub(pct)), tick)

	price := ctx.Intent.Price
	if price.GreaterThan(up) {
		return fail("BEYOND_UP_LIMIT")
	}
	if price.LessThan(down) {
		return fail("BEYOND_DOWN_LIMIT")
	}
	if g.RejectAtBand && (price.Equal(up) || price.Equal(down)) {
		return fail("AT_LIMIT")
	}
	return pass()
}
