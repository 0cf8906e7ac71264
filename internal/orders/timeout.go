package orders

import (
	"time"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/clock"
)

type timeoutKey struct {
	localID string
	kind    errs.TimeoutKind
}

// Fired is one expired deadline, delivered to the OrderFSM by the orchestrator loop.
type Fired struct {
	LocalID string
	Kind    errs.TimeoutKind
}

// Manager tracks ACK/FILL/CANCEL deadlines per order (spec.md §4.5).
type Manager struct {
	clock     clock.Clock
	deadlines map[timeoutKey]time.Time
}

// NewManager constructs an empty Manager.
func NewManager(clk clock.Clock) *Manager {
	return &Manager{clock: clk, deadlines: make(map[timeoutKey]time.Time)}
}

// RegisterAck arms the ACK deadline for localID.
func (m *Manager) RegisterAck(localID string, timeout time.Duration) {
	m.register(localID, errs.TimeoutKindAck, timeout)
}

// RegisterFill arms the FILL deadline for localID.
func (m *Manager) RegisterFill(localID string, timeout time.Duration) {
	m.register(localID, errs.TimeoutKindFill, timeout)
}

// RegisterCancel arms the CANCEL deadline for localID.
func (m *Manager) RegisterCancel(localID string, timeout time.Duration) {
	m.register(localID, errs.TimeoutKindCancel, timeout)
}

func (m *Manager) register(localID string, kind errs.TimeoutKind, timeout time.Duration) {
	m.deadlines[timeoutKey{localID, kind}] = m.clock.Now().Add(timeout)
}

// Cancel disarms one specific deadline, if present.
func (m *Manager) Cancel(localID string, kind errs.TimeoutKind) {
	delete(m.deadlines, timeoutKey{localID, kind})
}

// CancelAllForOrder disarms every deadline kind for localID.
func (m *Manager) CancelAllForOrder(localID string) {
	for _, k := range []errs.TimeoutKind{errs.TimeoutKindAck, errs.TimeoutKindFill, errs.TimeoutKindCancel} {
		delete(m.deadlines, timeoutKey{localID, k})
	}
}

// Tick removes and returns every deadline that has expired as of now,
// atomically with respect to subsequent Tick calls (spec.md §4.5).
func (m *Manager) Tick(now time.Time) []Fired {
	var fired []Fired
	for k, deadline := range m.deadlines {
		if !now.Before(deadline) {
			fired = append(fired, Fired{LocalID: k.localID, Kind: k.kind})
			delete(m.deadlines, k)
		}
	}
	return fired
}
