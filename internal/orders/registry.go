package orders

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/clock"
	"go.uber.org/zap"
)

// OrphanOrderReport is logged when a gateway callback cannot be matched to a
// known order after its reconciliation window expires (spec.md §4.4, §7).
type OrphanOrderReport struct {
	Kind       string // "order_ref" or "exchange_id"
	Key        string
	ArrivedAt  time.Time
	ExpiredAt  time.Time
}

type pendingBinding struct {
	kind      string
	key       string
	arrivedAt time.Time
}

// Registry maintains the bidirectional local_id <-> order_ref <-> exchange_id
// mapping (spec.md §4.4). It is not safe for concurrent use; callers run it
// from the single core event loop (spec.md §5).
type Registry struct {
	logger *zap.Logger
	clock  clock.Clock
	window time.Duration

	machines     map[string]*Machine // local_id -> machine
	byOrderRef   map[string]string   // order_ref -> local_id
	byExchangeID map[string]string   // exchange_id -> local_id

	pending     []pendingBinding
	orphanFn    func(OrphanOrderReport)
}

// New constructs a Registry. window is the reconciliation grace period
// before an unmatched binding becomes an OrphanOrderReport.
func New(logger *zap.Logger, clk clock.Clock, window time.Duration) *Registry {
	return &Registry{
		logger:       logger.Named("order-registry"),
		clock:        clk,
		window:       window,
		machines:     make(map[string]*Machine),
		byOrderRef:   make(map[string]string),
		byExchangeID: make(map[string]string),
	}
}

// SetOrphanHandler registers a callback invoked once a pending binding
// expires without being matched.
func (r *Registry) SetOrphanHandler(fn func(OrphanOrderReport)) {
	r.orphanFn = fn
}

// Register adds machine m under its local_id, erroring with errs.ErrDuplicateID
// if local_id is already known.
func (r *Registry) Register(m *Machine) error {
	if _, exists := r.machines[m.Context.LocalID]; exists {
		return fmt.Errorf("%w: local_id %s", errs.ErrDuplicateID, m.Context.LocalID)
	}
	r.machines[m.Context.LocalID] = m
	return nil
}

// Get returns the Machine for localID.
func (r *Registry) Get(localID string) (*Machine, bool) {
	m, ok := r.machines[localID]
	return m, ok
}

// ActiveLocalIDs returns every local_id whose order is not in a terminal
// state, for Guardian's CancelAll sweep on entering HALTED (spec.md §4.3).
func (r *Registry) ActiveLocalIDs() []string {
	out := make([]string, 0, len(r.machines))
	for id, m := range r.machines {
		if !m.State.IsTerminal() {
			out = append(out, id)
		}
	}
	return out
}

// BindOrderRef records order_ref -> local_id, as assigned at submit time.
func (r *Registry) BindOrderRef(orderRef, localID string) error {
	if _, exists := r.machines[localID]; !exists {
		return fmt.Errorf("%w: local_id %s", errs.ErrUnknownID, localID)
	}
	r.byOrderRef[orderRef] = localID
	r.machines[localID].Context.OrderRef = orderRef
	return nil
}

// BindExchangeID records exchange_id -> local_id, as assigned on gateway ACK.
func (r *Registry) BindExchangeID(exchangeID, localID string) error {
	if _, exists := r.machines[localID]; !exists {
		return fmt.Errorf("%w: local_id %s", errs.ErrUnknownID, localID)
	}
	r.byExchangeID[exchangeID] = localID
	r.machines[localID].Context.ExchangeID = exchangeID
	return nil
}

// ResolveByOrderRef looks up a Machine by order_ref, buffering the lookup
// for late-binding if the mapping is not yet known (spec.md §4.4).
func (r *Registry) ResolveByOrderRef(orderRef string) (*Machine, bool) {
	localID, ok := r.byOrderRef[orderRef]
	if !ok {
		r.bufferPending("order_ref", orderRef)
		return nil, false
	}
	return r.machines[localID], true
}

// ResolveByExchangeID looks up a Machine by exchange_id, buffering the
// lookup for late-binding if the mapping is not yet known (spec.md §4.4).
func (r *Registry) ResolveByExchangeID(exchangeID string) (*Machine, bool) {
	localID, ok := r.byExchangeID[exchangeID]
	if !ok {
		r.bufferPending("exchange_id", exchangeID)
		return nil, false
	}
	return r.machines[localID], true
}

func (r *Registry) bufferPending(kind, key string) {
	r.pending = append(r.pending, pendingBinding{kind: kind, key: key, arrivedAt: r.clock.Now()})
}

// ReapExpired walks buffered unresolved bindings and emits an
// OrphanOrderReport for any older than the reconciliation window. Call this
// once per tick from the orchestrator loop.
func (r *Registry) ReapExpired() {
	if len(r.pending) == 0 {
		return
	}
	now := r.clock.Now()
	remaining := r.pending[:0]
	for _, p := range r.pending {
		resolved := false
		switch p.kind {
		case "order_ref":
			_, resolved = r.byOrderRef[p.key]
		case "exchange_id":
			_, resolved = r.byExchangeID[p.key]
		}
		if resolved {
			continue
		}
		if now.Sub(p.arrivedAt) >= r.window {
			report := OrphanOrderReport{Kind: p.kind, Key: p.key, ArrivedAt: p.arrivedAt, ExpiredAt: now}
			r.logger.Warn("orphan order report", zap.String("kind", p.kind), zap.String("key", p.key))
			if r.orphanFn != nil {
				r.orphanFn(report)
			}
			continue
		}
		remaining = append(remaining, p)
	}
	r.pending = remaining
}

// CancelTarget resolves the preferred cancel correlation for a local order:
// by exchange_id if present, else by (front_id, order_ref) per spec.md §4.4.
type CancelTarget struct {
	ByExchangeID bool
	ExchangeID   string
	FrontID      int
	OrderRef     string
}

// CancelTargetFor computes the cancel correlation for localID.
func (r *Registry) CancelTargetFor(localID string) (CancelTarget, error) {
	m, ok := r.machines[localID]
	if !ok {
		return CancelTarget{}, fmt.Errorf("%w: local_id %s", errs.ErrUnknownID, localID)
	}
	if m.Context.ExchangeID != "" {
		return CancelTarget{ByExchangeID: true, ExchangeID: m.Context.ExchangeID}, nil
	}
	return CancelTarget{FrontID: m.Context.FrontID, OrderRef: m.Context.OrderRef}, nil
}
