package guardian

import (
	"github.com/atlas-desktop/futures-core/pkg/types"
	"go.uber.org/zap"
)

// CancelFunc cancels one active order by local_id.
type CancelFunc func(localID string) error

// FlattenFunc issues a close for symbol's current net position.
type FlattenFunc func(symbol string) error

// ActiveOrdersFunc returns the local_ids of all currently active orders.
type ActiveOrdersFunc func() []string

// AlertFunc delivers an operator-facing alert message.
type AlertFunc func(message string)

// ActionOutcome records the result of one action a mode transition triggered.
type ActionOutcome struct {
	Action  string
	Target  string
	Success bool
	Err     error
}

// TransitionRecord is one FSM transition the monitor applied on a tick.
type TransitionRecord struct {
	Old      types.GuardianMode
	New      types.GuardianMode
	Trigger  Event
	Reason   string
	Operator string // set only for operator-driven force_mode overrides
}

// CheckResult is on_tick's return value (spec.md §4.3).
type CheckResult struct {
	CurrentMode  types.GuardianMode
	Firings      []Firing
	Transitions  []TransitionRecord
	ActionsTaken []ActionOutcome
}

// Monitor composes the FSM, the trigger registry, and the action closures
// that break the Guardian/order-layer cycle (spec.md §4.3, §9).
type Monitor struct {
	logger   *zap.Logger
	fsm      *FSM
	registry *Registry

	cancelFn       CancelFunc
	flattenFn      FlattenFunc
	activeOrdersFn ActiveOrdersFunc
	alertFn        AlertFunc
}

// NewMonitor constructs a Monitor. Any of the *Func arguments may be nil;
// actions that need them become no-ops logged at warn level.
func NewMonitor(logger *zap.Logger, fsm *FSM, registry *Registry, cancelFn CancelFunc, flattenFn FlattenFunc, activeOrdersFn ActiveOrdersFunc, alertFn AlertFunc) *Monitor {
	return &Monitor{
		logger:         logger.Named("guardian-monitor"),
		fsm:            fsm,
		registry:       registry,
		cancelFn:       cancelFn,
		flattenFn:      flattenFn,
		activeOrdersFn: activeOrdersFn,
		alertFn:        alertFn,
	}
}

// Mode returns the FSM's current mode.
func (m *Monitor) Mode() types.GuardianMode { return m.fsm.CurrentMode() }

// FilterTargetPortfolio delegates to the FSM's mode filter.
func (m *Monitor) FilterTargetPortfolio(target, current types.TargetPortfolio) types.TargetPortfolio {
	return m.fsm.FilterTargetPortfolio(target, current)
}

// OnTick evaluates all triggers, applies every accepted transition in order,
// and runs the entry actions for any mode newly entered (spec.md §4.3).
func (m *Monitor) OnTick(state State) CheckResult {
	firings := m.registry.EvaluateAll(state)

	var transitions []TransitionRecord
	var actions []ActionOutcome

	for _, f := range firings {
		if !m.fsm.CanTransition(f.Event) {
			continue
		}
		old := m.fsm.CurrentMode()
		next, err := m.fsm.Transition(f.Event)
		if err != nil {
			continue
		}
		transitions = append(transitions, TransitionRecord{Old: old, New: next, Trigger: f.Event, Reason: f.Details})
		actions = append(actions, m.entryActions(next)...)
	}

	return CheckResult{
		CurrentMode:  m.fsm.CurrentMode(),
		Firings:      firings,
		Transitions:  transitions,
		ActionsTaken: actions,
	}
}

func (m *Monitor) entryActions(mode types.GuardianMode) []ActionOutcome {
	switch mode {
	case types.GuardianModeHalted:
		return m.CancelAll()
	default:
		return nil
	}
}

// CancelAll iterates every active order and cancels it, recording a
// per-order outcome (spec.md §4.3).
func (m *Monitor) CancelAll() []ActionOutcome {
	if m.activeOrdersFn == nil || m.cancelFn == nil {
		m.logger.Warn("cancel_all requested but no active-orders or cancel function wired")
		return nil
	}
	var outcomes []ActionOutcome
	for _, localID := range m.activeOrdersFn() {
		err := m.cancelFn(localID)
		outcomes = append(outcomes, ActionOutcome{Action: "cancel_all", Target: localID, Success: err == nil, Err: err})
	}
	return outcomes
}

// FlattenAll issues a close for every symbol in symbols.
func (m *Monitor) FlattenAll(symbols []string) []ActionOutcome {
	if m.flattenFn == nil {
		m.logger.Warn("flatten_all requested but no flatten function wired")
		return nil
	}
	var outcomes []ActionOutcome
	for _, symbol := range symbols {
		err := m.flattenFn(symbol)
		outcomes = append(outcomes, ActionOutcome{Action: "flatten_all", Target: symbol, Success: err == nil, Err: err})
	}
	return outcomes
}

// SendAlert delivers message through the registered alert channel.
func (m *Monitor) SendAlert(message string) ActionOutcome {
	if m.alertFn == nil {
		m.logger.Warn("send_alert requested but no alert function wired", zap.String("message", message))
		return ActionOutcome{Action: "send_alert", Target: message, Success: false}
	}
	m.alertFn(message)
	return ActionOutcome{Action: "send_alert", Target: message, Success: true}
}

// ForceMode bypasses the transition table for an operator override, recording
// both the operator identity and reason on the resulting GuardianEvent
// (SPEC_FULL.md §D.1).
func (m *Monitor) ForceMode(mode types.GuardianMode, operator, reason string) TransitionRecord {
	old := m.fsm.CurrentMode()
	next := m.fsm.ForceMode(mode, reason)
	m.logger.Warn("guardian mode forced",
		zap.String("old", string(old)), zap.String("new", string(next)),
		zap.String("operator", operator), zap.String("reason", reason))
	return TransitionRecord{Old: old, New: next, Trigger: "force_mode", Reason: reason, Operator: operator}
}
