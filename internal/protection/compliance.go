package protection

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComplianceThrottle counts report-or-cancel operations (order submits and
// cancels) in a trailing window, enforcing the regulatory frequency cap
// (spec.md §4.7, §8 property 7).
type ComplianceThrottle struct {
	window        time.Duration
	maxOperations int
	warningPct    decimal.Decimal
	criticalPct   decimal.Decimal

	timestamps []time.Time
}

// NewComplianceThrottle constructs a ComplianceThrottle.
func NewComplianceThrottle(window time.Duration, maxOperations int, warningPct, criticalPct decimal.Decimal) *ComplianceThrottle {
	return &ComplianceThrottle{
		window:        window,
		maxOperations: maxOperations,
		warningPct:    warningPct,
		criticalPct:   criticalPct,
	}
}

// trim discards timestamps older than window relative to now.
func (c *ComplianceThrottle) trim(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.timestamps) && c.timestamps[i].Before(cutoff) {
		i++
	}
	c.timestamps = c.timestamps[i:]
}

// ComplianceCheck is the outcome of evaluating one candidate operation.
type ComplianceCheck struct {
	Allowed  bool
	Reason   string
	Count    int
	Ratio    decimal.Decimal
	Warning  bool
	Critical bool
}

// Evaluate checks whether one more operation at now would exceed the cap
// and, if allowed, records it atomically — mirroring x/time/rate's
// check-and-consume AllowN so a rejected operation never consumes quota.
func (c *ComplianceThrottle) Evaluate(now time.Time) ComplianceCheck {
	c.trim(now)
	count := len(c.timestamps)
	ratio := decimal.NewFromInt(int64(count)).Div(decimal.NewFromInt(int64(c.maxOperations)))

	if count+1 > c.maxOperations {
		return ComplianceCheck{Allowed: false, Reason: "EXCEEDED", Count: count, Ratio: ratio, Critical: true}
	}

	c.timestamps = append(c.timestamps, now)
	return ComplianceCheck{
		Allowed:  true,
		Count:    count + 1,
		Ratio:    ratio,
		Warning:  ratio.GreaterThanOrEqual(c.warningPct),
		Critical: ratio.GreaterThanOrEqual(c.criticalPct),
	}
}

// ComplianceGate delegates to a ComplianceThrottle (spec.md §4.7).
type ComplianceGate struct {
	Throttle *ComplianceThrottle
}

func (g *ComplianceGate) Name() string { return "compliance" }

func (g *ComplianceGate) Check(ctx Context) Result {
	check := g.Throttle.Evaluate(ctx.Now)
	if !check.Allowed {
		return fail(check.Reason)
	}
	return pass()
}
