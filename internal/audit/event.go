// Package audit implements the deterministic event log and replay verifier
// (spec.md §4.11, §4.12): an append-only JSONL writer, a restartable reader,
// and canonical hashing used to prove bit-exact replay across two runs.
package audit

import (
	"time"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Kind is the event-type tag; every value here is one of the six prefixes
// spec.md §6 requires on disk (decision*, order_state*, trade*, exec*,
// guardian*, pnl*).
type Kind string

const (
	KindDecision             Kind = "decision"
	KindOrderState           Kind = "order_state"
	KindTrade                Kind = "trade"
	KindExecSubmit           Kind = "exec_submit"
	KindExecCancel           Kind = "exec_cancel"
	KindExecProtectionReject Kind = "exec_protection_reject"
	KindGuardian             Kind = "guardian"
	KindPnL                  Kind = "pnl"
)

// Event is the common envelope every audit record carries (spec.md §3:
// "every event has a non-empty run_id and exec_id").
type Event struct {
	Ts        time.Time              `json:"ts"`
	EventType Kind                   `json:"event_type"`
	RunID     string                 `json:"run_id"`
	ExecID    string                 `json:"exec_id"`
	Fields    map[string]interface{} `json:"-"`
}

// DecisionEvent records one strategy decision.
func DecisionEvent(ts time.Time, runID, execID, strategyID, strategyVersion, featureHash string, target types.TargetPortfolio) Event {
	return Event{
		Ts:        ts,
		EventType: KindDecision,
		RunID:     runID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"strategy_id":      strategyID,
			"strategy_version": strategyVersion,
			"feature_hash":     featureHash,
			"target_portfolio": target,
		},
	}
}

// OrderStateEvent records one OrderFSM transition.
func OrderStateEvent(ts time.Time, runID, execID, localID string, oldState, newState types.OrderState) Event {
	return Event{
		Ts:        ts,
		EventType: KindOrderState,
		RunID:     runID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"local_id": localID,
			"old":      oldState,
			"new":      newState,
		},
	}
}

// TradeEvent records one execution report applied to a position.
func TradeEvent(ts time.Time, runID, execID string, trade types.Trade) Event {
	return Event{
		Ts:        ts,
		EventType: KindTrade,
		RunID:     runID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"trade_id":    trade.TradeID,
			"order_local": trade.OrderLocal,
			"symbol":      trade.Symbol,
			"direction":   trade.Direction,
			"offset":      trade.Offset,
			"qty":         trade.Qty,
			"price":       trade.Price,
		},
	}
}

// ExecEvent records an outbound order intent, or a pipeline rejection of one.
func ExecEvent(ts time.Time, runID, execID string, kind Kind, localID string, extra map[string]interface{}) Event {
	fields := map[string]interface{}{"local_id": localID}
	for k, v := range extra {
		fields[k] = v
	}
	return Event{
		Ts:        ts,
		EventType: kind,
		RunID:     runID,
		ExecID:    execID,
		Fields:    fields,
	}
}

// GuardianEvent records a mode transition or action outcome.
func GuardianEvent(ts time.Time, runID, execID string, oldMode, newMode types.GuardianMode, trigger, reason string) Event {
	return Event{
		Ts:        ts,
		EventType: KindGuardian,
		RunID:     runID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"old":     oldMode,
			"new":     newMode,
			"trigger": trigger,
			"reason":  reason,
		},
	}
}

// PnLEvent records a realized/unrealized P&L snapshot for one symbol.
func PnLEvent(ts time.Time, runID, execID, symbol string, realized, unrealized decimal.Decimal) Event {
	return Event{
		Ts:        ts,
		EventType: KindPnL,
		RunID:     runID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"symbol":     symbol,
			"realized":   realized,
			"unrealized": unrealized,
		},
	}
}
