package protection

import (
	"github.com/atlas-desktop/futures-core/internal/margin"
	"github.com/shopspring/decimal"
)

// MarginChecker is the subset of margin.Monitor this gate depends on.
type MarginChecker interface {
	CanOpenPosition(requiredMargin decimal.Decimal) margin.OpenCheck
}

// MarginGate delegates to MarginMonitor.can_open_position (spec.md §4.7).
type MarginGate struct {
	Checker        MarginChecker
	RequiredMargin func(ctx Context) decimal.Decimal
}

func (g *MarginGate) Name() string { return "margin" }

func (g *MarginGate) Check(ctx Context) Result {
	required := g.RequiredMargin(ctx)
	check := g.Checker.CanOpenPosition(required)
	if !check.Allowed {
		return fail(check.Reason)
	}
	return pass()
}
