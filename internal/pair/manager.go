// Package pair implements two-leg calendar-spread execution: leg tracking,
// imbalance detection, and hedge-order synthesis (spec.md §4.6).
package pair

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Position groups the two legs that make up one calendar spread.
type Position struct {
	PairID    string
	NearLegID string
	FarLegID  string
}

// HedgeOrder is the corrective order LegManager suggests to restore balance.
type HedgeOrder struct {
	PairID    string
	LegID     string
	Symbol    string
	Direction types.Direction
	Qty       int
}

// Manager tracks legs and pairs and detects imbalance (spec.md §3 Leg, §4.6).
type Manager struct {
	logger    *zap.Logger
	threshold int

	legs  map[string]*types.Leg
	pairs map[string]Position
}

// New constructs a Manager. threshold is the imbalance magnitude above which
// a pair is considered imbalanced.
func New(logger *zap.Logger, threshold int) *Manager {
	return &Manager{
		logger:    logger.Named("pair-manager"),
		threshold: threshold,
		legs:      make(map[string]*types.Leg),
		pairs:     make(map[string]Position),
	}
}

// CreatePair creates the near/far legs with deterministic ids
// {pair_id}_near and {pair_id}_far (spec.md §4.6).
func (m *Manager) CreatePair(pairID, nearSymbol, farSymbol string, nearDir, farDir types.Direction, qty int) (near, far *types.Leg, err error) {
	if _, exists := m.pairs[pairID]; exists {
		return nil, nil, fmt.Errorf("%w: pair_id %s", errs.ErrDuplicateID, pairID)
	}

	nearID := pairID + "_near"
	farID := pairID + "_far"

	near = &types.Leg{LegID: nearID, PairID: pairID, Symbol: nearSymbol, Direction: nearDir, TargetQty: qty, Status: types.LegStatusPending}
	far = &types.Leg{LegID: farID, PairID: pairID, Symbol: farSymbol, Direction: farDir, TargetQty: qty, Status: types.LegStatusPending}

	m.legs[nearID] = near
	m.legs[farID] = far
	m.pairs[pairID] = Position{PairID: pairID, NearLegID: nearID, FarLegID: farID}

	return near, far, nil
}

// Leg returns the current state of legID.
func (m *Manager) Leg(legID string) (*types.Leg, bool) {
	l, ok := m.legs[legID]
	return l, ok
}

// Pair returns the pair grouping for pairID.
func (m *Manager) Pair(pairID string) (Position, bool) {
	p, ok := m.pairs[pairID]
	return p, ok
}

// MarkSubmitted transitions legID from PENDING to SUBMITTED.
func (m *Manager) MarkSubmitted(legID string) error {
	leg, ok := m.legs[legID]
	if !ok {
		return fmt.Errorf("%w: leg_id %s", errs.ErrUnknownID, legID)
	}
	leg.Status = types.LegStatusSubmitted
	return nil
}

// MarkFailed transitions legID to FAILED (submit rejected, or unrecoverable error).
func (m *Manager) MarkFailed(legID string) error {
	leg, ok := m.legs[legID]
	if !ok {
		return fmt.Errorf("%w: leg_id %s", errs.ErrUnknownID, legID)
	}
	leg.Status = types.LegStatusFailed
	return nil
}

// MarkCancelled transitions legID to CANCELLED.
func (m *Manager) MarkCancelled(legID string) error {
	leg, ok := m.legs[legID]
	if !ok {
		return fmt.Errorf("%w: leg_id %s", errs.ErrUnknownID, legID)
	}
	leg.Status = types.LegStatusCancelled
	return nil
}

// UpdateLeg applies a fill to legID, recomputing its weighted avg_price and
// advancing status to PARTIAL or FILLED (spec.md §4.6).
func (m *Manager) UpdateLeg(legID string, qty int, price decimal.Decimal) error {
	leg, ok := m.legs[legID]
	if !ok {
		return fmt.Errorf("%w: leg_id %s", errs.ErrUnknownID, legID)
	}
	if qty <= 0 {
		return nil
	}

	prevQty := decimal.NewFromInt(int64(leg.FilledQty))
	newQty := decimal.NewFromInt(int64(qty))
	total := prevQty.Add(newQty)
	if !total.IsZero() {
		weighted := leg.AvgPrice.Mul(prevQty).Add(price.Mul(newQty))
		leg.AvgPrice = weighted.Div(total)
	}
	leg.FilledQty += qty

	if leg.FilledQty >= leg.TargetQty {
		leg.Status = types.LegStatusFilled
	} else {
		leg.Status = types.LegStatusPartial
	}
	return nil
}

// CheckImbalance returns near.filled - far.filled and whether its magnitude
// exceeds the configured threshold (spec.md §3 PairPosition).
func (m *Manager) CheckImbalance(pairID string) (imbalance int, isImbalanced bool, err error) {
	p, ok := m.pairs[pairID]
	if !ok {
		return 0, false, fmt.Errorf("%w: pair_id %s", errs.ErrUnknownID, pairID)
	}
	near := m.legs[p.NearLegID]
	far := m.legs[p.FarLegID]
	imbalance = near.FilledQty - far.FilledQty
	magnitude := imbalance
	if magnitude < 0 {
		magnitude = -magnitude
	}
	return imbalance, magnitude > m.threshold, nil
}

// GetHedgeOrder synthesises a corrective order on whichever leg is behind.
// ok is false when the pair is not imbalanced and no hedge is needed.
func (m *Manager) GetHedgeOrder(pairID string) (order HedgeOrder, ok bool, err error) {
	imbalance, isImbalanced, err := m.CheckImbalance(pairID)
	if err != nil {
		return HedgeOrder{}, false, err
	}
	if !isImbalanced {
		return HedgeOrder{}, false, nil
	}

	p := m.pairs[pairID]
	near := m.legs[p.NearLegID]
	far := m.legs[p.FarLegID]

	if imbalance > 0 {
		// near is ahead; far needs to catch up by `imbalance` in far's own direction.
		return HedgeOrder{PairID: pairID, LegID: far.LegID, Symbol: far.Symbol, Direction: far.Direction, Qty: imbalance}, true, nil
	}
	return HedgeOrder{PairID: pairID, LegID: near.LegID, Symbol: near.Symbol, Direction: near.Direction, Qty: -imbalance}, true, nil
}
