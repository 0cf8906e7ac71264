package protection

import "github.com/shopspring/decimal"

func decimalFromInt(v int) decimal.Decimal { return decimal.NewFromInt(int64(v)) }

// FatFingerGate rejects implausible order sizes/prices (spec.md §4.7).
type FatFingerGate struct {
	MaxQty         int
	MaxNotional    decimal.Decimal
	MaxDeviation   decimal.Decimal // fraction, e.g. 0.05 for 5%
}

func (g *FatFingerGate) Name() string { return "fat_finger" }

func (g *FatFingerGate) Check(ctx Context) Result {
	if ctx.Intent.Qty > g.MaxQty {
		return fail("QTY_EXCEEDS_MAX")
	}

	notional := ctx.Intent.Price.
		Mul(decimalFromInt(ctx.Intent.Qty)).
		Mul(decimalFromInt(ctx.Instrument.Multiplier))
	if notional.GreaterThan(g.MaxNotional) {
		return fail("NOTIONAL_EXCEEDS_MAX")
	}

	if ctx.RefPrice.IsZero() {
		return pass()
	}
	deviation := ctx.Intent.Price.Div(ctx.RefPrice).Sub(decimal.NewFromInt(1)).Abs()
	if deviation.GreaterThan(g.MaxDeviation) {
		return fail("PRICE_DEVIATION_EXCEEDS_MAX")
	}
	return pass()
}
