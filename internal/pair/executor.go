package pair

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/internal/ids"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/atlas-desktop/futures-core/pkg/utils"
	"go.uber.org/zap"
)

// SubmitFunc is injected by the orchestrator to place one leg's order; it
// returns the local_id assigned to the submitted order (spec.md §9 "break
// the cycle by passing action closures").
type SubmitFunc func(symbol string, dir types.Direction, qty int) (localID string, err error)

// PositionLookup returns the current net position for symbol, used to judge
// whether a hedge order would grow or shrink exposure under REDUCE_ONLY.
type PositionLookup func(symbol string) int

// Executor drives submission of both legs of a pair and reacts to their
// trade callbacks through the Manager (spec.md §4.6).
type Executor struct {
	logger   *zap.Logger
	manager  *Manager
	submit   SubmitFunc
	position PositionLookup

	legToLocalID map[string]string // leg_id -> local_id of its active order
}

// NewExecutor constructs an Executor bound to manager and submitFn.
func NewExecutor(logger *zap.Logger, manager *Manager, submitFn SubmitFunc) *Executor {
	return &Executor{
		logger:       logger.Named("pair-executor"),
		manager:      manager,
		submit:       submitFn,
		legToLocalID: make(map[string]string),
	}
}

// SetPositionLookup registers the callback Executor uses to judge a hedge's
// effect on net exposure (spec.md §4.6, §8 property 4). Without one, a hedge
// is treated as exposure-increasing and suppressed under REDUCE_ONLY.
func (e *Executor) SetPositionLookup(fn PositionLookup) {
	e.position = fn
}

// Open creates the pair and submits both legs.
func (e *Executor) Open(pairID, nearSymbol, farSymbol string, nearDir, farDir types.Direction, qty int) error {
	near, far, err := e.manager.CreatePair(pairID, nearSymbol, farSymbol, nearDir, farDir, qty)
	if err != nil {
		return err
	}

	for _, leg := range []*types.Leg{near, far} {
		localID, err := e.submit(leg.Symbol, leg.Direction, leg.TargetQty)
		if err != nil {
			e.manager.MarkFailed(leg.LegID)
			e.logger.Warn("leg submit failed", zap.String("leg_id", leg.LegID), zap.Error(err))
			continue
		}
		e.legToLocalID[leg.LegID] = localID
		e.manager.MarkSubmitted(leg.LegID)
	}
	return nil
}

// OnTrade routes a fill on localID to the leg it belongs to, if any, and then
// tries to hedge away any imbalance the fill left behind (spec.md §4.6).
func (e *Executor) OnTrade(localID string, trade types.Trade, mode types.GuardianMode) (legID string, updated bool, err error) {
	for lid, local := range e.legToLocalID {
		if local != localID {
			continue
		}
		if err := e.manager.UpdateLeg(lid, trade.Qty, trade.Price); err != nil {
			return lid, false, err
		}
		if leg, ok := e.manager.Leg(lid); ok {
			e.tryHedge(leg.PairID, mode)
		}
		return lid, true, nil
	}
	return "", false, nil
}

// tryHedge submits a corrective order for pairID's lagging leg if one is due
// and mode permits it, logging rather than failing the trade callback on a
// submit error.
func (e *Executor) tryHedge(pairID string, mode types.GuardianMode) {
	order, ok, err := e.MaybeHedge(pairID, mode)
	if err != nil {
		e.logger.Debug("hedge not sent", zap.String("pair_id", pairID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	newLocalID, err := e.submit(order.Symbol, order.Direction, order.Qty)
	if err != nil {
		e.manager.MarkFailed(order.LegID)
		e.logger.Warn("hedge submit failed", zap.String("pair_id", pairID), zap.String("leg_id", order.LegID), zap.Error(err))
		return
	}
	e.legToLocalID[order.LegID] = newLocalID
	e.manager.MarkSubmitted(order.LegID)
}

// NextHedgeID returns a fresh random (uuid-based) local_id for a synthesised
// hedge order.
func NextHedgeID() string { return ids.NewLocalID() }

// MaybeHedge returns the hedge order for pairID if imbalanced and mode
// permits it. Under REDUCE_ONLY, a hedge is only allowed if it would not
// grow |net position| on its symbol (spec.md §4.6, §8 property 4).
func (e *Executor) MaybeHedge(pairID string, mode types.GuardianMode) (HedgeOrder, bool, error) {
	order, ok, err := e.manager.GetHedgeOrder(pairID)
	if err != nil || !ok {
		return HedgeOrder{}, false, err
	}

	switch mode {
	case types.GuardianModeRunning:
		return order, true, nil
	case types.GuardianModeReduceOnly:
		if e.increasesExposure(order) {
			return HedgeOrder{}, false, nil
		}
		return order, true, nil
	default:
		return HedgeOrder{}, false, fmt.Errorf("hedge suppressed: guardian mode %s does not permit order submission", mode)
	}
}

// increasesExposure reports whether filling order would grow |net position|
// on order.Symbol. With no PositionLookup registered, a hedge is assumed to
// increase exposure so REDUCE_ONLY defaults to the safer rejection.
func (e *Executor) increasesExposure(order HedgeOrder) bool {
	if e.position == nil {
		return true
	}
	current := e.position(order.Symbol)
	delta := order.Qty
	if order.Direction == types.DirectionSell {
		delta = -delta
	}
	next := current + delta
	return utils.AbsInt(next) > utils.AbsInt(current)
}
