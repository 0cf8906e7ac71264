// Package guardian implements the process-wide operational-mode state
// machine, its pluggable triggers, and the monitor that composes them with
// cancel/flatten/alert actions (spec.md §4.1, §4.2, §4.3).
package guardian

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/atlas-desktop/futures-core/pkg/utils"
)

// Event is one of the symbolic trigger names the FSM accepts (spec.md §4.1).
type Event string

const (
	EventInitSuccess       Event = "init_success"
	EventInitFailed        Event = "init_failed"
	EventQuoteStale        Event = "quote_stale"
	EventOrderStuck        Event = "order_stuck"
	EventPositionDrift     Event = "position_drift"
	EventLegImbalance      Event = "leg_imbalance"
	EventMarginWarning     Event = "margin_warning"
	EventLimitConsecutive  Event = "limit_consecutive"
	EventDeliveryNear      Event = "delivery_near"
	EventManualHalt        Event = "manual_halt"
	EventMarginCritical    Event = "margin_critical"
	EventComplianceExceeded Event = "compliance_exceeded"
	EventDeliveryCritical  Event = "delivery_critical"
	EventRecoverOK         Event = "recover_ok"
	EventManualTakeover    Event = "manual_takeover"
	EventManualRelease     Event = "manual_release"
)

var transitions = map[types.GuardianMode]map[Event]types.GuardianMode{
	types.GuardianModeInit: {
		EventInitSuccess: types.GuardianModeRunning,
		EventInitFailed:  types.GuardianModeHalted,
	},
	types.GuardianModeRunning: {
		EventQuoteStale:         types.GuardianModeReduceOnly,
		EventOrderStuck:         types.GuardianModeReduceOnly,
		EventPositionDrift:      types.GuardianModeReduceOnly,
		EventLegImbalance:       types.GuardianModeReduceOnly,
		EventMarginWarning:      types.GuardianModeReduceOnly,
		EventLimitConsecutive:   types.GuardianModeReduceOnly,
		EventDeliveryNear:       types.GuardianModeReduceOnly,
		EventManualHalt:         types.GuardianModeHalted,
		EventMarginCritical:     types.GuardianModeHalted,
		EventComplianceExceeded: types.GuardianModeHalted,
		EventDeliveryCritical:   types.GuardianModeHalted,
	},
	types.GuardianModeReduceOnly: {
		EventRecoverOK:      types.GuardianModeRunning,
		EventManualHalt:     types.GuardianModeHalted,
		EventMarginCritical: types.GuardianModeHalted,
	},
	types.GuardianModeHalted: {
		EventManualTakeover: types.GuardianModeManual,
	},
	types.GuardianModeManual: {
		EventManualRelease: types.GuardianModeRunning,
	},
}

// FSM is the Guardian operational-mode state machine.
type FSM struct {
	mode types.GuardianMode
}

// NewFSM constructs an FSM starting in INIT.
func NewFSM() *FSM {
	return &FSM{mode: types.GuardianModeInit}
}

// CurrentMode returns the current mode.
func (f *FSM) CurrentMode() types.GuardianMode { return f.mode }

// CanTransition reports whether event is accepted from the current mode.
func (f *FSM) CanTransition(event Event) bool {
	row, ok := transitions[f.mode]
	if !ok {
		return false
	}
	_, ok = row[event]
	return ok
}

// Transition applies event, returning the new mode or errs.ErrInvalidTransition.
func (f *FSM) Transition(event Event) (types.GuardianMode, error) {
	row, ok := transitions[f.mode]
	if !ok {
		return f.mode, fmt.Errorf("%w: no transitions from %s", errs.ErrInvalidTransition, f.mode)
	}
	next, ok := row[event]
	if !ok {
		return f.mode, fmt.Errorf("%w: %s does not accept %s", errs.ErrInvalidTransition, f.mode, event)
	}
	f.mode = next
	return f.mode, nil
}

// ForceMode bypasses the transition table for an operator override. Callers
// must emit a GuardianEvent carrying reason (spec.md §4.1).
func (f *FSM) ForceMode(mode types.GuardianMode, reason string) types.GuardianMode {
	f.mode = mode
	return f.mode
}

// IsOpenAllowed reports whether new exposure may be opened in the current mode.
func (f *FSM) IsOpenAllowed() bool {
	return f.mode == types.GuardianModeRunning
}

// FilterTargetPortfolio applies the mode-dependent filter from spec.md §4.1.
func (f *FSM) FilterTargetPortfolio(target, current types.TargetPortfolio) types.TargetPortfolio {
	switch f.mode {
	case types.GuardianModeRunning:
		return target.Clone()
	case types.GuardianModeReduceOnly:
		return filterReduceOnly(target, current)
	default: // INIT, HALTED, MANUAL
		return current.Clone()
	}
}

func filterReduceOnly(target, current types.TargetPortfolio) types.TargetPortfolio {
	out := make(types.TargetPortfolio)
	symbols := make(map[string]struct{}, len(target)+len(current))
	for s := range target {
		symbols[s] = struct{}{}
	}
	for s := range current {
		symbols[s] = struct{}{}
	}
	for symbol := range symbols {
		t := target[symbol]
		c := current[symbol]
		switch {
		case c == 0:
			out[symbol] = 0
		case c > 0:
			out[symbol] = utils.ClampInt(t, 0, c)
		default: // c < 0
			out[symbol] = utils.ClampInt(t, c, 0)
		}
	}
	return out
}
