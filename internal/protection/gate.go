// Package protection implements the pre-trade gate pipeline: liquidity,
// fat-finger, throttle, limit-price, margin, and compliance checks composed
// in order, with the first failing gate short-circuiting the rest
// (spec.md §4.7).
package protection

import (
	"time"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Intent is the candidate order a gate evaluates.
type Intent struct {
	Symbol    string
	Direction types.Direction
	Offset    types.Offset
	Qty       int
	Price     decimal.Decimal
}

// Context carries everything a gate may need to evaluate Intent.
type Context struct {
	Intent     Intent
	Instrument types.Instrument
	Quote      types.Quote
	HasQuote   bool
	RefPrice   decimal.Decimal
	Settle     decimal.Decimal
	Now        time.Time
}

// Result is a gate's verdict.
type Result struct {
	Pass          bool
	Reason        string
	AdjustedPrice decimal.Decimal
	HasAdjusted   bool
	WaitMs        int64
}

func pass() Result { return Result{Pass: true} }

func fail(reason string) Result { return Result{Pass: false, Reason: reason} }

// Gate is one pre-trade check.
type Gate interface {
	Name() string
	Check(ctx Context) Result
}
