// Package orders implements the per-order state machine, the identifier
// registry across local/broker/exchange namespaces, and ACK/FILL/CANCEL
// timeout tracking (spec.md §4.4, §4.5).
package orders

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Input is one of the symbolic events OrderFSM accepts (spec.md §4.4).
type Input string

const (
	InputSubmit        Input = "submit"
	InputAck           Input = "ack"
	InputReject        Input = "reject"
	InputPartialFill   Input = "partial_fill"
	InputFullFill      Input = "full_fill"
	InputCancelRequest Input = "cancel_request"
	InputCancelled     Input = "cancelled"
	InputAckTimeout    Input = "ack_timeout"
	InputFillTimeout   Input = "fill_timeout"
)

// transitions maps (state, input) -> next state. fill_timeout from PARTIAL
// has no entry: it is "signalled, no transition" per spec.md §4.4.
var transitions = map[types.OrderState]map[Input]types.OrderState{
	types.OrderStatePendingNew: {
		InputSubmit: types.OrderStateSubmitted,
	},
	types.OrderStateSubmitted: {
		InputAck:        types.OrderStateAcked,
		InputReject:     types.OrderStateRejected,
		InputAckTimeout: types.OrderStateError,
	},
	types.OrderStateAcked: {
		InputPartialFill:   types.OrderStatePartial,
		InputFullFill:      types.OrderStateFilled,
		InputCancelRequest: types.OrderStatePendingCancel,
	},
	types.OrderStatePartial: {
		InputPartialFill:   types.OrderStatePartial,
		InputFullFill:      types.OrderStateFilled,
		InputCancelRequest: types.OrderStatePendingCancel,
	},
	types.OrderStatePendingCancel: {
		InputCancelled:   types.OrderStateCancelled,
		InputFillTimeout: types.OrderStatePartial,
		InputPartialFill: types.OrderStatePartial,
		InputFullFill:    types.OrderStateFilled,
	},
}

// Machine is one order's state machine plus the context it owns exclusively
// (spec.md §9 "Ownership of order state").
type Machine struct {
	Context   types.OrderContext
	State     types.OrderState
	FilledQty int
	AvgPrice  decimal.Decimal
}

// NewMachine creates a Machine in PENDING_NEW for ctx.
func NewMachine(ctx types.OrderContext) *Machine {
	return &Machine{Context: ctx, State: types.OrderStatePendingNew}
}

// Apply drives the input through the transition table, returning the new
// state. filled_qty and avg_price are updated for fill inputs. Unmatched
// (state, input) pairs return errs.ErrInvalidTransition and leave state unchanged.
func (m *Machine) Apply(input Input, fillQty int, fillPrice decimal.Decimal) (types.OrderState, error) {
	if m.State.IsTerminal() {
		return m.State, fmt.Errorf("%w: order %s is terminal at %s", errs.ErrInvalidTransition, m.Context.LocalID, m.State)
	}

	row, ok := transitions[m.State]
	if !ok {
		return m.State, fmt.Errorf("%w: no transitions defined from %s", errs.ErrInvalidTransition, m.State)
	}
	next, ok := row[input]
	if !ok {
		return m.State, fmt.Errorf("%w: %s does not accept %s", errs.ErrInvalidTransition, m.State, input)
	}

	if input == InputPartialFill || input == InputFullFill {
		m.applyFill(fillQty, fillPrice)
	}

	m.State = next
	return m.State, nil
}

func (m *Machine) applyFill(qty int, price decimal.Decimal) {
	if qty <= 0 {
		return
	}
	prevQty := decimal.NewFromInt(int64(m.FilledQty))
	newQty := decimal.NewFromInt(int64(qty))
	total := prevQty.Add(newQty)
	if total.IsZero() {
		return
	}
	weighted := m.AvgPrice.Mul(prevQty).Add(price.Mul(newQty))
	m.AvgPrice = weighted.Div(total)
	m.FilledQty += qty
}
