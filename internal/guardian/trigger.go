package guardian

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/atlas-desktop/futures-core/pkg/utils"
)

// State is the observed system state a tick's triggers evaluate against
// (spec.md §4.2). The caller of Loop.RunGuardianTick supplies it each tick;
// the loop itself only fills in ConsecutiveLimitPriceCount.
type State struct {
	Now time.Time

	WatchedSymbols []string
	LastQuoteAt    map[string]time.Time

	ActiveOrderLastUpdate map[string]time.Time

	PositionDrift map[string]int // symbol -> local - broker

	PairImbalance map[string]int // pair_id -> near.filled - far.filled

	MarginLevel types.MarginLevel

	ConsecutiveLimitPriceCount int

	DaysToDelivery  map[string]int
	PositionNonZero map[string]bool
}

// Firing is a trigger's verdict that an event should be offered to the FSM.
type Firing struct {
	Event   Event
	Details string
}

// Trigger evaluates State and optionally fires an Event (spec.md §4.2).
type Trigger interface {
	Evaluate(state State) (Firing, bool)
}

// QuoteStaleTrigger fires quote_stale if any watched symbol's quote is
// stale or absent.
type QuoteStaleTrigger struct {
	HardStaleMs int64
}

func (t QuoteStaleTrigger) Evaluate(state State) (Firing, bool) {
	for _, symbol := range state.WatchedSymbols {
		ts, ok := state.LastQuoteAt[symbol]
		if !ok {
			return Firing{Event: EventQuoteStale, Details: fmt.Sprintf("%s: no quote", symbol)}, true
		}
		if state.Now.Sub(ts).Milliseconds() > t.HardStaleMs {
			return Firing{Event: EventQuoteStale, Details: fmt.Sprintf("%s: stale", symbol)}, true
		}
	}
	return Firing{}, false
}

// OrderStuckTrigger fires order_stuck if any active order hasn't updated
// within StuckTimeout.
type OrderStuckTrigger struct {
	StuckTimeout time.Duration
}

func (t OrderStuckTrigger) Evaluate(state State) (Firing, bool) {
	for localID, lastUpdate := range state.ActiveOrderLastUpdate {
		if state.Now.Sub(lastUpdate) > t.StuckTimeout {
			return Firing{Event: EventOrderStuck, Details: fmt.Sprintf("order %s stuck", localID)}, true
		}
	}
	return Firing{}, false
}

// PositionDriftTrigger fires position_drift if any symbol's local/broker
// disagreement exceeds Tolerance.
type PositionDriftTrigger struct {
	Tolerance int
}

func (t PositionDriftTrigger) Evaluate(state State) (Firing, bool) {
	for symbol, drift := range state.PositionDrift {
		if utils.AbsInt(drift) > t.Tolerance {
			return Firing{Event: EventPositionDrift, Details: fmt.Sprintf("%s drift=%d", symbol, drift)}, true
		}
	}
	return Firing{}, false
}

// LegImbalanceTrigger fires leg_imbalance if any pair's imbalance magnitude
// exceeds Threshold.
type LegImbalanceTrigger struct {
	Threshold int
}

func (t LegImbalanceTrigger) Evaluate(state State) (Firing, bool) {
	for pairID, imbalance := range state.PairImbalance {
		if utils.AbsInt(imbalance) > t.Threshold {
			return Firing{Event: EventLegImbalance, Details: fmt.Sprintf("%s imbalance=%d", pairID, imbalance)}, true
		}
	}
	return Firing{}, false
}

// MarginTrigger maps MarginMonitor's current level to margin_warning or
// margin_critical.
type MarginTrigger struct{}

func (t MarginTrigger) Evaluate(state State) (Firing, bool) {
	switch state.MarginLevel {
	case types.MarginLevelWarning, types.MarginLevelDanger:
		return Firing{Event: EventMarginWarning, Details: string(state.MarginLevel)}, true
	case types.MarginLevelCritical:
		return Firing{Event: EventMarginCritical, Details: string(state.MarginLevel)}, true
	default:
		return Firing{}, false
	}
}

// LimitPriceTrigger fires limit_consecutive after N consecutive observations
// at the daily price band.
type LimitPriceTrigger struct {
	N int
}

func (t LimitPriceTrigger) Evaluate(state State) (Firing, bool) {
	if state.ConsecutiveLimitPriceCount >= t.N {
		return Firing{Event: EventLimitConsecutive, Details: fmt.Sprintf("count=%d", state.ConsecutiveLimitPriceCount)}, true
	}
	return Firing{}, false
}

// DeliveryApproachingTrigger fires delivery_near / delivery_critical for
// symbols with open position as expiry nears.
type DeliveryApproachingTrigger struct {
	ReduceDays int
	HaltDays   int
}

func (t DeliveryApproachingTrigger) Evaluate(state State) (Firing, bool) {
	for symbol, days := range state.DaysToDelivery {
		if !state.PositionNonZero[symbol] {
			continue
		}
		if days <= t.HaltDays {
			return Firing{Event: EventDeliveryCritical, Details: fmt.Sprintf("%s days=%d", symbol, days)}, true
		}
		if days <= t.ReduceDays {
			return Firing{Event: EventDeliveryNear, Details: fmt.Sprintf("%s days=%d", symbol, days)}, true
		}
	}
	return Firing{}, false
}

// Registry holds ordered triggers and evaluates them all on a tick
// (spec.md §4.2). Evaluation order is configuration-defined and pure.
type Registry struct {
	triggers []Trigger
}

// NewRegistry constructs a Registry from triggers, in evaluation order.
func NewRegistry(triggers ...Trigger) *Registry {
	return &Registry{triggers: triggers}
}

// EvaluateAll runs every trigger against state and collects all firings in order.
func (r *Registry) EvaluateAll(state State) []Firing {
	var firings []Firing
	for _, t := range r.triggers {
		if f, ok := t.Evaluate(state); ok {
			firings = append(firings, f)
		}
	}
	return firings
}
