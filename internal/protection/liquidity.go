package protection

// LiquidityGate rejects orders against a thin or absent book (spec.md §4.7).
type LiquidityGate struct {
	MaxSpreadTicks int
	MinVolume      int
	MinDepth       int
}

func (g *LiquidityGate) Name() string { return "liquidity" }

func (g *LiquidityGate) Check(ctx Context) Result {
	if !ctx.HasQuote {
		return fail("NO_QUOTE")
	}
	q := ctx.Quote
	if ctx.Instrument.TickSize.IsZero() {
		return fail("NO_TICK_SIZE")
	}
	spread := q.AskPrice.Sub(q.BidPrice)
	spreadTicks := spread.Div(ctx.Instrument.TickSize)
	maxSpread := decimalFromInt(g.MaxSpreadTicks)
	if spreadTicks.GreaterThan(maxSpread) {
		return fail("SPREAD_TOO_WIDE")
	}
	if q.BidVolume < g.MinVolume || q.AskVolume < g.MinVolume {
		return fail("INSUFFICIENT_VOLUME")
	}
	if q.BidVolume+q.AskVolume < g.MinDepth {
		return fail("INSUFFICIENT_DEPTH")
	}
	return pass()
}
