// Package orchestrator implements the single-threaded cooperative event
// loop that glues market input, strategy decisions, the guardian mode
// filter, pre-trade protection, order execution, and the audit trail
// together (spec.md §2 OrchestratorLoop, §5 Concurrency & Resource Model).
package orchestrator

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/futures-core/internal/audit"
	"github.com/atlas-desktop/futures-core/internal/cost"
	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/internal/guardian"
	"github.com/atlas-desktop/futures-core/internal/ids"
	"github.com/atlas-desktop/futures-core/internal/instrument"
	"github.com/atlas-desktop/futures-core/internal/margin"
	"github.com/atlas-desktop/futures-core/internal/orders"
	"github.com/atlas-desktop/futures-core/internal/pair"
	"github.com/atlas-desktop/futures-core/internal/position"
	"github.com/atlas-desktop/futures-core/internal/protection"
	"github.com/atlas-desktop/futures-core/internal/strategy"
	"github.com/atlas-desktop/futures-core/pkg/clock"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewaySubmit is one outbound order intent, correlated by LocalID over
// OrderOutQ (spec.md §6 "Gateway (out)").
type GatewaySubmit struct {
	LocalID   string
	Symbol    string
	Direction types.Direction
	Offset    types.Offset
	Qty       int
	Price     decimal.Decimal
}

// Gateway is the external order-submission collaborator the core drives;
// its binary wire format is out of scope (spec.md §6) — this interface is
// the request/reply contract correlated by local_id.
type Gateway interface {
	Submit(intent GatewaySubmit) (orderRef string, err error)
	Cancel(target orders.CancelTarget) error
}

// MetricsSink receives counts of loop activity for an external metrics
// exporter (SPEC_FULL.md §D.4); it has no effect on control flow. New
// leaves it as a noopMetricsSink when the caller doesn't supply one, so the
// Loop never has to nil-check it.
type MetricsSink interface {
	OrderSubmitted()
	OrderRejected(gate string)
	TradeFilled()
	AuditEvent()
}

type noopMetricsSink struct{}

func (noopMetricsSink) OrderSubmitted()      {}
func (noopMetricsSink) OrderRejected(string) {}
func (noopMetricsSink) TradeFilled()         {}
func (noopMetricsSink) AuditEvent()          {}

// Broadcaster pushes live events to the read-only monitoring surface
// (SPEC_FULL.md §A, §D.3) as they happen, alongside the durable audit trail.
// Method names match internal/api's Hub directly so Hub satisfies this
// interface with no adapter.
type Broadcaster interface {
	BroadcastOrderState(localID, symbol string, old, new types.OrderState)
	BroadcastTrade(trade types.Trade)
	BroadcastRejection(r RejectionRecord)
	BroadcastPnL(symbol string, realized, unrealized interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastOrderState(string, string, types.OrderState, types.OrderState) {}
func (noopBroadcaster) BroadcastTrade(types.Trade)                                             {}
func (noopBroadcaster) BroadcastRejection(RejectionRecord)                                     {}
func (noopBroadcaster) BroadcastPnL(string, interface{}, interface{})                          {}

// GatewayEventKind tags one inbound gateway callback (spec.md §6 "Gateway (in)").
type GatewayEventKind string

const (
	GatewayEventAck              GatewayEventKind = "ack"
	GatewayEventReject           GatewayEventKind = "reject"
	GatewayEventTrade            GatewayEventKind = "trade"
	GatewayEventCancelled        GatewayEventKind = "cancelled"
	GatewayEventPositionSnapshot GatewayEventKind = "position_snapshot"
)

// GatewayEvent is one item drained from GatewayEventQ.
type GatewayEvent struct {
	Kind GatewayEventKind

	OrderRef   string
	ExchangeID string
	FrontID    int
	SessionID  int

	Trade types.Trade

	PositionSnapshot map[string]int
}

// HaltCause records why the Guardian last entered HALTED, for exit-code
// derivation at process shutdown (spec.md §6, §7).
type HaltCause struct {
	Trigger guardian.Event
	Reason  string
}

// ExitCode maps a HaltCause to the process exit code taxonomy of spec.md §6.
// Causes with no specific named code fall back to 1 (generic); the taxonomy
// only names a handful of domain-specific codes.
func (c HaltCause) ExitCode() int {
	switch c.Trigger {
	case guardian.EventComplianceExceeded:
		return 20 // report_cancel_exceed
	case guardian.EventMarginCritical:
		return 15 // margin_insufficient
	case guardian.EventDeliveryCritical:
		return 19 // night_session_error (closest named delivery/session code)
	default:
		return 1 // generic
	}
}

// ADVLookup resolves a symbol's average daily volume for impact estimation
// (spec.md §4.9). The orchestrator is agnostic to how ADV is sourced —
// market-data plumbing is out of scope (spec.md §1).
type ADVLookup func(symbol string) int

// Config configures one Loop instance.
type Config struct {
	RunID          string
	WatchedSymbols []string
	Timeouts       types.TimeoutConfig
	ADV            ADVLookup
}

// Loop is the single-threaded core event loop: one instance owns every
// piece of mutable trading state and is never accessed concurrently
// (spec.md §5 "no locks are required in the core; the design is lock-free
// by partitioning").
type Loop struct {
	logger *zap.Logger
	clock  clock.Clock
	cfg    Config

	instruments *instrument.Registry
	auditLog    *audit.Writer
	costModel   *cost.Model
	pipeline    *protection.Pipeline
	marginMon   *margin.Monitor
	orderReg    *orders.Registry
	timeouts    *orders.Manager
	positions   *position.Tracker
	legs        *pair.Manager
	pairExec    *pair.Executor
	guardianMon *guardian.Monitor
	strategy    *strategy.Host
	gateway     Gateway

	equity                decimal.Decimal
	consecutiveLimitPrice int
	lastHalt              *HaltCause
	rejections            []RejectionRecord
	lastQuotes            map[string]types.Quote
	metrics               MetricsSink
	broadcaster           Broadcaster
}

// RejectionRecord is one protection-pipeline or edge-gate rejection, kept
// for the read-only monitoring surface (SPEC_FULL.md §A, §D.3).
type RejectionRecord struct {
	Ts     time.Time
	Symbol string
	Gate   string
	Reason string
}

// maxRejectionHistory bounds the in-memory rejection ring buffer; the audit
// log remains the durable record (spec.md §4.11).
const maxRejectionHistory = 200

// New constructs a Loop from its fully-wired dependencies. Every dependency
// is injected at the top per spec.md §9 "Global state" — no singletons.
func New(
	logger *zap.Logger,
	clk clock.Clock,
	cfg Config,
	instruments *instrument.Registry,
	auditLog *audit.Writer,
	costModel *cost.Model,
	pipeline *protection.Pipeline,
	marginMon *margin.Monitor,
	orderReg *orders.Registry,
	timeouts *orders.Manager,
	positions *position.Tracker,
	legs *pair.Manager,
	pairExec *pair.Executor,
	guardianMon *guardian.Monitor,
	strategyHost *strategy.Host,
	gateway Gateway,
) *Loop {
	l := &Loop{
		logger:      logger.Named("orchestrator"),
		clock:       clk,
		cfg:         cfg,
		instruments: instruments,
		auditLog:    auditLog,
		costModel:   costModel,
		pipeline:    pipeline,
		marginMon:   marginMon,
		orderReg:    orderReg,
		timeouts:    timeouts,
		positions:   positions,
		legs:        legs,
		pairExec:    pairExec,
		guardianMon: guardianMon,
		strategy:    strategyHost,
		gateway:     gateway,
		lastQuotes:  make(map[string]types.Quote),
		metrics:     noopMetricsSink{},
		broadcaster: noopBroadcaster{},
	}
	orderReg.SetOrphanHandler(l.onOrphanOrder)
	positions.SetMismatchHandler(l.onReconcileMismatch)
	return l
}

// SetMetricsSink binds the loop's activity counters to an exporter. Call it
// once after New; it is not safe to change while ticks are in flight.
func (l *Loop) SetMetricsSink(sink MetricsSink) { l.metrics = sink }

// SetBroadcaster binds the loop's live event push to a monitoring surface.
// Call it once after New; it is not safe to change while ticks are in flight.
func (l *Loop) SetBroadcaster(b Broadcaster) { l.broadcaster = b }

// LastHalt returns the cause of the most recent HALTED transition, or nil
// if the Guardian has never halted.
func (l *Loop) LastHalt() *HaltCause { return l.lastHalt }

// UpdateMargin feeds the latest equity/margin_used snapshot to the margin
// monitor and records equity for the strategy-facing portfolio view
// (spec.md §4.8). Callers invoke this whenever the accounting source
// reports a new snapshot — cadence is outside the core's concern.
func (l *Loop) UpdateMargin(equity, marginUsed decimal.Decimal) types.MarginLevel {
	l.equity = equity
	return l.marginMon.Update(equity, marginUsed)
}

// GuardianMode returns the Guardian's current mode, for the read-only
// monitoring surface (SPEC_FULL.md §A).
func (l *Loop) GuardianMode() types.GuardianMode { return l.guardianMon.Mode() }

// MarginLevel returns the last-computed margin usage band.
func (l *Loop) MarginLevel() types.MarginLevel { return l.marginMon.CurrentLevel() }

// MarginUsage returns the last-computed margin_used / equity ratio.
func (l *Loop) MarginUsage() decimal.Decimal { return l.marginMon.CurrentUsage() }

// Portfolio returns the current strategy-facing portfolio snapshot.
func (l *Loop) Portfolio() types.PortfolioSnapshot { return l.portfolioSnapshot() }

// RecentRejections returns up to maxRejectionHistory of the most recent
// protection/edge-gate rejections, oldest first.
func (l *Loop) RecentRejections() []RejectionRecord {
	out := make([]RejectionRecord, len(l.rejections))
	copy(out, l.rejections)
	return out
}

func (l *Loop) recordRejection(symbol, gate, reason string) {
	l.rejections = append(l.rejections, RejectionRecord{Ts: l.clock.Now(), Symbol: symbol, Gate: gate, Reason: reason})
	if len(l.rejections) > maxRejectionHistory {
		l.rejections = l.rejections[len(l.rejections)-maxRejectionHistory:]
	}
}

// portfolioSnapshot builds the current PortfolioSnapshot view strategies see.
func (l *Loop) portfolioSnapshot() types.PortfolioSnapshot {
	positions := make(map[string]types.Position, len(l.cfg.WatchedSymbols))
	for _, symbol := range l.cfg.WatchedSymbols {
		positions[symbol] = l.positions.Get(symbol)
	}
	return types.PortfolioSnapshot{Positions: positions, Equity: l.equity}
}

func (l *Loop) currentTargetPortfolio() types.TargetPortfolio {
	out := make(types.TargetPortfolio, len(l.cfg.WatchedSymbols))
	for _, symbol := range l.cfg.WatchedSymbols {
		out[symbol] = l.positions.Get(symbol).NetQty()
	}
	return out
}

// ProcessTick runs one full decision cycle: strategy invocation, guardian
// mode filter, cost/protection gating, and order submission, emitting the
// audit events spec.md §8 property 1 requires in order (spec.md §2, §5).
func (l *Loop) ProcessTick(snapshot types.MarketSnapshot) error {
	execID := ids.NewExecID()
	now := l.clock.Now()

	for symbol, quote := range snapshot.Quotes {
		l.lastQuotes[symbol] = quote
	}

	portfolio := l.portfolioSnapshot()
	decision, err := l.strategy.OnTick(snapshot, portfolio)
	if err != nil {
		return fmt.Errorf("strategy tick: %w", err)
	}
	if !decision.Has {
		return nil
	}

	if err := l.appendAudit(audit.DecisionEvent(now, l.cfg.RunID, execID, decision.StrategyID, decision.StrategyVersion, decision.FeatureHash, decision.Target)); err != nil {
		return err
	}

	current := l.currentTargetPortfolio()
	filtered := l.guardianMon.FilterTargetPortfolio(decision.Target, current)

	for _, symbol := range orderedSymbols(filtered, current) {
		delta := filtered[symbol] - current[symbol]
		if delta == 0 {
			continue
		}
		if err := l.submitForDelta(execID, symbol, delta, snapshot, decision.Edges[symbol]); err != nil {
			l.logger.Warn("order submission failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

// orderedSymbols returns the union of both maps' keys sorted, so audit
// output never depends on Go's randomised map iteration order (spec.md §9
// determinism hazards).
func orderedSymbols(a, b types.TargetPortfolio) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// submitForDelta converts a signed position delta into a buy/sell + open/close
// order intent, runs the cost edge gate and protection pipeline, and — if
// both pass — submits it through the gateway (spec.md data flow, §2).
func (l *Loop) submitForDelta(execID, symbol string, delta int, snapshot types.MarketSnapshot, edge decimal.Decimal) error {
	inst, ok := l.instruments.Get(symbol)
	if !ok {
		return fmt.Errorf("unknown instrument %s", symbol)
	}
	quote, hasQuote := snapshot.Quotes[symbol]

	dir := types.DirectionBuy
	if delta < 0 {
		dir = types.DirectionSell
	}
	qty := delta
	if qty < 0 {
		qty = -qty
	}

	current := l.positions.Get(symbol)
	offset := offsetFor(current, dir)

	price := quote.AskPrice
	if dir == types.DirectionSell {
		price = quote.BidPrice
	}

	totalCost := l.costModel.TotalCost(inst, qty, price, offset == types.OffsetCloseToday, depthOf(quote), l.advFor(symbol))
	if !edge.IsZero() && !cost.EdgeGate(edge, totalCost) {
		return l.rejectExec(execID, symbol, "edge_gate", "signal edge does not cover estimated cost")
	}

	ctx := protection.Context{
		Intent:     protection.Intent{Symbol: symbol, Direction: dir, Offset: offset, Qty: qty, Price: price},
		Instrument: inst,
		Quote:      quote,
		HasQuote:   hasQuote,
		RefPrice:   midPrice(quote),
		Settle:     quote.SettlePrice,
		Now:        l.clock.Now(),
	}
	outcome := l.pipeline.Run(ctx)
	if quote.AtPriceBand {
		l.consecutiveLimitPrice++
	} else {
		l.consecutiveLimitPrice = 0
	}
	if !outcome.Pass {
		return l.rejectExec(execID, symbol, outcome.Gate, outcome.Result.Reason)
	}

	_, err := l.submit(execID, symbol, dir, offset, qty, price)
	return err
}

// midPrice approximates a reference price from the current top of book;
// the protection gates only use RefPrice for the fat-finger deviation
// check, which tolerates the bid/ask spread itself as noise.
func midPrice(q types.Quote) decimal.Decimal {
	if q.BidPrice.IsZero() && q.AskPrice.IsZero() {
		return q.SettlePrice
	}
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
}

func (l *Loop) advFor(symbol string) int {
	if l.cfg.ADV == nil {
		return 1
	}
	return l.cfg.ADV(symbol)
}

func depthOf(q types.Quote) int { return q.BidVolume + q.AskVolume }

// offsetFor decides open/close for a prospective fill against the
// currently-tracked position (spec.md §3 Offset). close_today is a
// broker/exchange-specific refinement the gateway resolves on submission;
// the core only distinguishes open from close.
func offsetFor(current types.Position, dir types.Direction) types.Offset {
	switch dir {
	case types.DirectionBuy:
		if current.ShortQty > 0 {
			return types.OffsetClose
		}
	case types.DirectionSell:
		if current.LongQty > 0 {
			return types.OffsetClose
		}
	}
	return types.OffsetOpen
}

func (l *Loop) rejectExec(execID, symbol, gate, reason string) error {
	l.recordRejection(symbol, gate, reason)
	l.metrics.OrderRejected(gate)
	l.broadcaster.BroadcastRejection(RejectionRecord{Ts: l.clock.Now(), Symbol: symbol, Gate: gate, Reason: reason})
	return l.appendAudit(audit.ExecEvent(l.clock.Now(), l.cfg.RunID, execID, audit.KindExecProtectionReject, "", map[string]interface{}{
		"symbol": symbol,
		"gate":   gate,
		"reason": reason,
	}))
}

// submit creates the OrderFSM machine, arms the ACK timeout, and hands the
// intent to the gateway, emitting the resulting OrderStateEvent (spec.md
// §4.4, §4.5, §8 property 1). It returns the local_id assigned to the order
// regardless of whether the gateway accepted it.
func (l *Loop) submit(execID, symbol string, dir types.Direction, offset types.Offset, qty int, price decimal.Decimal) (string, error) {
	localID := ids.NewLocalID()
	ctx := types.OrderContext{
		LocalID:   localID,
		Symbol:    symbol,
		Direction: dir,
		Offset:    offset,
		Qty:       qty,
		Price:     price,
		CreatedAt: l.clock.Now(),
	}
	machine := orders.NewMachine(ctx)
	if err := l.orderReg.Register(machine); err != nil {
		return "", err
	}

	orderRef, err := l.gateway.Submit(GatewaySubmit{LocalID: localID, Symbol: symbol, Direction: dir, Offset: offset, Qty: qty, Price: price})
	if err != nil {
		// submission never reached the gateway; resolve straight to REJECTED
		// without an InputSubmit/InputReject round trip through the FSM.
		old := machine.State
		machine.State = types.OrderStateRejected
		return localID, l.emitOrderState(execID, localID, old, machine.State)
	}
	l.metrics.OrderSubmitted()

	if err := l.orderReg.BindOrderRef(orderRef, localID); err != nil {
		return localID, err
	}
	old := machine.State
	if _, err := machine.Apply(orders.InputSubmit, 0, decimal.Zero); err != nil {
		return localID, err
	}
	l.timeouts.RegisterAck(localID, l.cfg.Timeouts.Ack)
	return localID, l.emitOrderState(execID, localID, old, machine.State)
}

// RequestCancel submits a cancel for localID, arming the CANCEL timeout
// (spec.md §4.4, §4.5).
func (l *Loop) RequestCancel(localID string) error {
	execID := ids.NewExecID()
	machine, ok := l.orderReg.Get(localID)
	if !ok {
		return fmt.Errorf("%w: local_id %s", errs.ErrUnknownID, localID)
	}
	target, err := l.orderReg.CancelTargetFor(localID)
	if err != nil {
		return err
	}
	if err := l.gateway.Cancel(target); err != nil {
		return err
	}
	old := machine.State
	if _, err := machine.Apply(orders.InputCancelRequest, 0, decimal.Zero); err != nil {
		return err
	}
	l.timeouts.RegisterCancel(localID, l.cfg.Timeouts.Cancel)
	return l.emitOrderState(execID, localID, old, machine.State)
}

func (l *Loop) emitOrderState(execID, localID string, old, new types.OrderState) error {
	symbol := ""
	if machine, ok := l.orderReg.Get(localID); ok {
		symbol = machine.Context.Symbol
	}
	l.broadcaster.BroadcastOrderState(localID, symbol, old, new)
	return l.appendAudit(audit.OrderStateEvent(l.clock.Now(), l.cfg.RunID, execID, localID, old, new))
}

// ProcessTimeouts drains every expired ACK/FILL/CANCEL deadline and drives
// the corresponding OrderFSM transition (spec.md §4.5). A FILL timeout is
// signalled but drives no transition by itself — spec.md §4.4 treats a slow
// fill as a Guardian trigger concern (order_stuck), not an FSM input.
func (l *Loop) ProcessTimeouts() error {
	execID := ids.NewExecID()
	now := l.clock.Now()
	for _, fired := range l.timeouts.Tick(now) {
		machine, ok := l.orderReg.Get(fired.LocalID)
		if !ok {
			continue
		}
		var input orders.Input
		switch fired.Kind {
		case errs.TimeoutKindAck:
			input = orders.InputAckTimeout
		case errs.TimeoutKindCancel:
			input = orders.InputFillTimeout
		default:
			l.logger.Warn("fill timeout signalled", zap.String("local_id", fired.LocalID))
			continue
		}
		old := machine.State
		if _, err := machine.Apply(input, 0, decimal.Zero); err != nil {
			continue
		}
		if err := l.emitOrderState(execID, fired.LocalID, old, machine.State); err != nil {
			return err
		}
	}
	return nil
}

// HandleGatewayEvent routes one inbound callback to the order registry,
// position tracker, and pair executor, emitting TradeEvent/OrderStateEvent
// as appropriate (spec.md §6 "Gateway (in)", §4.4, §4.10).
func (l *Loop) HandleGatewayEvent(ev GatewayEvent) error {
	execID := ids.NewExecID()
	now := l.clock.Now()

	switch ev.Kind {
	case GatewayEventAck:
		machine, ok := l.orderReg.ResolveByOrderRef(ev.OrderRef)
		if !ok {
			return nil // buffered for late-binding; see ReapOrphans
		}
		if err := l.orderReg.BindExchangeID(ev.ExchangeID, machine.Context.LocalID); err != nil {
			return err
		}
		machine.Context.FrontID = ev.FrontID
		machine.Context.SessionID = ev.SessionID
		old := machine.State
		if _, err := machine.Apply(orders.InputAck, 0, decimal.Zero); err != nil {
			return err
		}
		l.timeouts.Cancel(machine.Context.LocalID, errs.TimeoutKindAck)
		l.timeouts.RegisterFill(machine.Context.LocalID, l.cfg.Timeouts.Fill)
		return l.emitOrderState(execID, machine.Context.LocalID, old, machine.State)

	case GatewayEventReject:
		machine, ok := l.orderReg.ResolveByOrderRef(ev.OrderRef)
		if !ok {
			return nil
		}
		old := machine.State
		if _, err := machine.Apply(orders.InputReject, 0, decimal.Zero); err != nil {
			return err
		}
		l.timeouts.CancelAllForOrder(machine.Context.LocalID)
		return l.emitOrderState(execID, machine.Context.LocalID, old, machine.State)

	case GatewayEventTrade:
		machine, ok := l.resolveMachine(ev.OrderRef, ev.ExchangeID)
		if !ok {
			return nil
		}
		old := machine.State
		input := orders.InputPartialFill
		if machine.FilledQty+ev.Trade.Qty >= machine.Context.Qty {
			input = orders.InputFullFill
		}
		if _, err := machine.Apply(input, ev.Trade.Qty, ev.Trade.Price); err != nil {
			return err
		}
		if err := l.positions.ApplyTrade(ev.Trade); err != nil {
			return err
		}
		if _, _, err := l.pairExec.OnTrade(machine.Context.LocalID, ev.Trade, l.GuardianMode()); err != nil {
			return err
		}
		l.metrics.TradeFilled()
		l.broadcaster.BroadcastTrade(ev.Trade)
		if err := l.appendAudit(audit.TradeEvent(now, l.cfg.RunID, execID, ev.Trade)); err != nil {
			return err
		}
		if machine.State == types.OrderStateFilled {
			l.timeouts.CancelAllForOrder(machine.Context.LocalID)
		}
		return l.emitOrderState(execID, machine.Context.LocalID, old, machine.State)

	case GatewayEventCancelled:
		machine, ok := l.resolveMachine(ev.OrderRef, ev.ExchangeID)
		if !ok {
			return nil
		}
		old := machine.State
		if _, err := machine.Apply(orders.InputCancelled, 0, decimal.Zero); err != nil {
			return err
		}
		l.timeouts.CancelAllForOrder(machine.Context.LocalID)
		return l.emitOrderState(execID, machine.Context.LocalID, old, machine.State)

	case GatewayEventPositionSnapshot:
		l.positions.Reconcile(ev.PositionSnapshot)
		return nil
	}
	return nil
}

func (l *Loop) resolveMachine(orderRef, exchangeID string) (*orders.Machine, bool) {
	if exchangeID != "" {
		if m, ok := l.orderReg.ResolveByExchangeID(exchangeID); ok {
			return m, true
		}
	}
	return l.orderReg.ResolveByOrderRef(orderRef)
}

// RunGuardianTick evaluates guardian triggers against state and applies any
// accepted transitions, recording a GuardianEvent per transition and
// per action outcome (spec.md §4.3).
func (l *Loop) RunGuardianTick(state guardian.State) (guardian.CheckResult, error) {
	execID := ids.NewExecID()
	now := l.clock.Now()

	state.ConsecutiveLimitPriceCount = l.consecutiveLimitPrice
	result := l.guardianMon.OnTick(state)
	for _, t := range result.Transitions {
		if t.New == types.GuardianModeHalted {
			l.lastHalt = &HaltCause{Trigger: t.Trigger, Reason: t.Reason}
		}
		if err := l.appendAudit(audit.GuardianEvent(now, l.cfg.RunID, execID, t.Old, t.New, string(t.Trigger), t.Reason)); err != nil {
			return result, err
		}
	}
	for _, a := range result.ActionsTaken {
		reason := a.Action
		if a.Err != nil {
			reason = fmt.Sprintf("%s: %v", a.Action, a.Err)
		}
		if err := l.appendAudit(audit.Event{
			Ts:        now,
			EventType: audit.KindGuardian,
			RunID:     l.cfg.RunID,
			ExecID:    execID,
			Fields: map[string]interface{}{
				"local_id": a.Target,
				"action":   a.Action,
				"success":  a.Success,
				"reason":   reason,
			},
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ForceGuardianMode applies an operator override, recording both the
// operator identity and the reason on the resulting GuardianEvent
// (SPEC_FULL.md §D.1).
func (l *Loop) ForceGuardianMode(mode types.GuardianMode, operator, reason string) error {
	execID := ids.NewExecID()
	record := l.guardianMon.ForceMode(mode, operator, reason)
	if mode == types.GuardianModeHalted {
		l.lastHalt = &HaltCause{Trigger: record.Trigger, Reason: record.Reason}
	}
	return l.appendAudit(audit.Event{
		Ts:        l.clock.Now(),
		EventType: audit.KindGuardian,
		RunID:     l.cfg.RunID,
		ExecID:    execID,
		Fields: map[string]interface{}{
			"old":      record.Old,
			"new":      record.New,
			"trigger":  record.Trigger,
			"reason":   record.Reason,
			"operator": record.Operator,
		},
	})
}

// EmitPnL records a realized/unrealized P&L snapshot to the audit trail
// (spec.md §4.11 PnLEvent). PnL computation itself lives with the
// accounting source; the core only has a place to record it.
func (l *Loop) EmitPnL(symbol string, realized, unrealized decimal.Decimal) error {
	execID := ids.NewExecID()
	l.broadcaster.BroadcastPnL(symbol, realized, unrealized)
	return l.appendAudit(audit.PnLEvent(l.clock.Now(), l.cfg.RunID, execID, symbol, realized, unrealized))
}

// OpenPair submits both legs of a calendar-spread pair through the pair
// executor (spec.md §4.6).
func (l *Loop) OpenPair(pairID, nearSymbol, farSymbol string, nearDir, farDir types.Direction, qty int) error {
	return l.pairExec.Open(pairID, nearSymbol, farSymbol, nearDir, farDir, qty)
}

// LastQuote returns the most recent quote seen for symbol across any
// ProcessTick call, for callers that need a reference price outside the
// normal decision path (the pair executor's hedge leg, Guardian's flatten).
func (l *Loop) LastQuote(symbol string) (types.Quote, bool) {
	q, ok := l.lastQuotes[symbol]
	return q, ok
}

// SubmitManual submits a single order outside the protection pipeline and
// cost/edge gate, for callers that already own the decision to trade: the
// pair executor's opening and hedge legs and Guardian's FlattenAll close-out (spec.md
// §4.3, §4.6). It mints its own exec_id for audit correlation and returns
// the order's local_id.
func (l *Loop) SubmitManual(symbol string, dir types.Direction, offset types.Offset, qty int, price decimal.Decimal) (string, error) {
	execID := ids.NewExecID()
	return l.submit(execID, symbol, dir, offset, qty, price)
}

// ReapOrphans walks the order registry's pending bindings and emits an
// orphan report for any that have aged past the reconciliation window
// (spec.md §4.4, §7 UnknownId).
func (l *Loop) ReapOrphans() { l.orderReg.ReapExpired() }

func (l *Loop) onOrphanOrder(report orders.OrphanOrderReport) {
	l.logger.Warn("orphan order report",
		zap.String("kind", report.Kind), zap.String("key", report.Key),
		zap.Duration("age", report.ExpiredAt.Sub(report.ArrivedAt)))
}

func (l *Loop) onReconcileMismatch(mismatch errs.ReconcileMismatch) {
	l.logger.Warn("position reconcile mismatch",
		zap.String("symbol", mismatch.Symbol), zap.Int("local", mismatch.Local), zap.Int("broker", mismatch.Broker))
}

func (l *Loop) appendAudit(e audit.Event) error {
	if err := l.auditLog.Append(e); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSerialization, err)
	}
	l.metrics.AuditEvent()
	return nil
}
