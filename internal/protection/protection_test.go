package protection

import (
	"testing"
	"time"

	"github.com/atlas-desktop/futures-core/internal/margin"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

func rb2501() types.Instrument {
	return types.Instrument{
		Symbol:       "rb2501",
		TickSize:     decimal.NewFromInt(1),
		Multiplier:   10,
		PriceBandPct: decimal.NewFromFloat(0.05),
		FeeKind:      types.FeeKindRate,
		FeeValue:     decimal.NewFromFloat(0.0001),
	}
}

func TestLiquidityGateNoQuote(t *testing.T) {
	g := &LiquidityGate{MaxSpreadTicks: 5, MinVolume: 1, MinDepth: 1}
	result := g.Check(Context{HasQuote: false, Instrument: rb2501()})
	if result.Pass || result.Reason != "NO_QUOTE" {
		t.Fatalf("got %+v, want NO_QUOTE", result)
	}
}

func TestLiquidityGatePassesWithGoodBook(t *testing.T) {
	g := &LiquidityGate{MaxSpreadTicks: 5, MinVolume: 1, MinDepth: 2}
	ctx := Context{
		HasQuote:   true,
		Instrument: rb2501(),
		Quote:      types.Quote{BidPrice: decimal.NewFromInt(3499), AskPrice: decimal.NewFromInt(3500), BidVolume: 10, AskVolume: 10},
	}
	if result := g.Check(ctx); !result.Pass {
		t.Fatalf("expected pass, got %+v", result)
	}
}

func TestFatFingerGateRejectsOversizedQty(t *testing.T) {
	g := &FatFingerGate{MaxQty: 5, MaxNotional: decimal.NewFromInt(1000000), MaxDeviation: decimal.NewFromFloat(0.1)}
	ctx := Context{Intent: Intent{Qty: 10, Price: decimal.NewFromInt(3500)}, Instrument: rb2501()}
	if result := g.Check(ctx); result.Pass || result.Reason != "QTY_EXCEEDS_MAX" {
		t.Fatalf("got %+v, want QTY_EXCEEDS_MAX", result)
	}
}

func TestFatFingerGateRejectsDeviation(t *testing.T) {
	g := &FatFingerGate{MaxQty: 100, MaxNotional: decimal.NewFromInt(10000000), MaxDeviation: decimal.NewFromFloat(0.01)}
	ctx := Context{
		Intent:     Intent{Qty: 1, Price: decimal.NewFromInt(4000)},
		Instrument: rb2501(),
		RefPrice:   decimal.NewFromInt(3500),
	}
	if result := g.Check(ctx); result.Pass || result.Reason != "PRICE_DEVIATION_EXCEEDS_MAX" {
		t.Fatalf("got %+v, want PRICE_DEVIATION_EXCEEDS_MAX", result)
	}
}

// TestS2PriceBandReject mirrors spec scenario S2: settle 3450, pct 0.05,
// tick 1 -> up=3622, down=3278; price=3700 rejected BEYOND_UP_LIMIT.
func TestS2PriceBandReject(t *testing.T) {
	g := &LimitPriceGate{}
	inst := rb2501()
	ctx := Context{
		Intent:     Intent{Price: decimal.NewFromInt(3700)},
		Instrument: inst,
		Settle:     decimal.NewFromInt(3450),
	}
	result := g.Check(ctx)
	if result.Pass || result.Reason != "BEYOND_UP_LIMIT" {
		t.Fatalf("got %+v, want BEYOND_UP_LIMIT", result)
	}
}

func TestLimitPriceGateComputesExactBand(t *testing.T) {
	g := &LimitPriceGate{}
	inst := rb2501()
	settle := decimal.NewFromInt(3450)

	within := Context{Intent: Intent{Price: decimal.NewFromInt(3622)}, Instrument: inst, Settle: settle}
	if result := g.Check(within); !result.Pass {
		t.Fatalf("expected price at up-limit 3622 to pass, got %+v", result)
	}

	beyondDown := Context{Intent: Intent{Price: decimal.NewFromInt(3277)}, Instrument: inst, Settle: settle}
	if result := g.Check(beyondDown); result.Pass || result.Reason != "BEYOND_DOWN_LIMIT" {
		t.Fatalf("got %+v, want BEYOND_DOWN_LIMIT", result)
	}
}

func TestThrottleGateMinInterval(t *testing.T) {
	g := NewThrottleGate(1000, time.Second)
	now := time.Unix(0, 0)
	if result := g.Check(Context{Now: now}); !result.Pass {
		t.Fatalf("expected first order to pass, got %+v", result)
	}
	if result := g.Check(Context{Now: now.Add(500 * time.Millisecond)}); result.Pass {
		t.Fatalf("expected rejection within min interval, got %+v", result)
	}
}

func TestComplianceGateEnforcesCap(t *testing.T) {
	throttle := NewComplianceThrottle(5*time.Second, 3, decimal.NewFromFloat(0.6), decimal.NewFromFloat(0.9))
	g := &ComplianceGate{Throttle: throttle}
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		if result := g.Check(Context{Now: now}); !result.Pass {
			t.Fatalf("op %d: expected pass, got %+v", i, result)
		}
	}
	if result := g.Check(Context{Now: now}); result.Pass || result.Reason != "EXCEEDED" {
		t.Fatalf("got %+v, want EXCEEDED on 4th op", result)
	}
}

func TestComplianceGateWindowExpires(t *testing.T) {
	throttle := NewComplianceThrottle(5*time.Second, 1, decimal.NewFromFloat(0.6), decimal.NewFromFloat(0.9))
	g := &ComplianceGate{Throttle: throttle}
	base := time.Unix(0, 0)

	g.Check(Context{Now: base})
	if result := g.Check(Context{Now: base.Add(6 * time.Second)}); !result.Pass {
		t.Fatalf("expected pass once window has rolled past, got %+v", result)
	}
}

type fakeMarginChecker struct{ check margin.OpenCheck }

func (f fakeMarginChecker) CanOpenPosition(decimal.Decimal) margin.OpenCheck { return f.check }

func TestMarginGateDelegates(t *testing.T) {
	g := &MarginGate{
		Checker:        fakeMarginChecker{check: margin.OpenCheck{Allowed: false, Reason: "projected level CRITICAL"}},
		RequiredMargin: func(ctx Context) decimal.Decimal { return decimal.NewFromInt(100) },
	}
	result := g.Check(Context{})
	if result.Pass || result.Reason != "projected level CRITICAL" {
		t.Fatalf("got %+v", result)
	}
}

func TestPipelineShortCircuitsOnFirstFailure(t *testing.T) {
	calledSecond := false
	firstFails := gateFunc{name: "first", fn: func(Context) Result { return fail("NOPE") }}
	second := gateFunc{name: "second", fn: func(Context) Result { calledSecond = true; return pass() }}

	p := NewPipeline(firstFails, second)
	outcome := p.Run(Context{})
	if outcome.Pass || outcome.Gate != "first" {
		t.Fatalf("got %+v, want first gate to reject", outcome)
	}
	if calledSecond {
		t.Fatalf("expected pipeline to short-circuit before second gate")
	}
}

type gateFunc struct {
	name string
	fn   func(Context) Result
}

func (g gateFunc) Name() string             { return g.name }
func (g gateFunc) Check(ctx Context) Result { return g.fn(ctx) }
