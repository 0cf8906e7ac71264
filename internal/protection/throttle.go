package protection

import (
	"time"

	"golang.org/x/time/rate"
)

// ThrottleGate enforces a max-orders-per-minute rate (via
// golang.org/x/time/rate, the same token-bucket limiter the broader
// quant-trading example pack reaches for) plus a minimum inter-order
// interval (spec.md §4.7). The rate is a token bucket with a burst of
// maxPerMinute refilling at maxPerMinute per minute, not a sliding 60-second
// window: after an idle period, up to about twice maxPerMinute orders can
// pass within one 60-second span.
type ThrottleGate struct {
	limiter     *rate.Limiter
	minInterval time.Duration

	hasLast bool
	lastAt  time.Time
}

// NewThrottleGate builds a ThrottleGate allowing up to maxPerMinute orders
// per rolling minute, with minInterval between consecutive orders.
func NewThrottleGate(maxPerMinute int, minInterval time.Duration) *ThrottleGate {
	limit := rate.Limit(float64(maxPerMinute) / 60.0)
	return &ThrottleGate{
		limiter:     rate.NewLimiter(limit, maxPerMinute),
		minInterval: minInterval,
	}
}

func (g *ThrottleGate) Name() string { return "throttle" }

func (g *ThrottleGate) Check(ctx Context) Result {
	if g.hasLast {
		elapsed := ctx.Now.Sub(g.lastAt)
		if elapsed < g.minInterval {
			wait := g.minInterval - elapsed
			return Result{Pass: false, Reason: "MIN_INTERVAL_NOT_ELAPSED", WaitMs: wait.Milliseconds()}
		}
	}

	if !g.limiter.AllowN(ctx.Now, 1) {
		reservation := g.limiter.ReserveN(ctx.Now, 1)
		wait := reservation.DelayFrom(ctx.Now)
		reservation.Cancel()
		return Result{Pass: false, Reason: "RATE_LIMIT_EXCEEDED", WaitMs: wait.Milliseconds()}
	}

	g.hasLast = true
	g.lastAt = ctx.Now
	return pass()
}
