package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/clock"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func ctx(localID string) types.OrderContext {
	return types.OrderContext{
		LocalID:   localID,
		Symbol:    "rb2501",
		Direction: types.DirectionBuy,
		Offset:    types.OffsetOpen,
		Qty:       10,
		Price:     decimal.NewFromInt(3500),
	}
}

func TestFSMHappyPathFill(t *testing.T) {
	m := NewMachine(ctx("U1"))
	steps := []struct {
		input Input
		qty   int
		price decimal.Decimal
		want  types.OrderState
	}{
		{InputSubmit, 0, decimal.Zero, types.OrderStateSubmitted},
		{InputAck, 0, decimal.Zero, types.OrderStateAcked},
		{InputPartialFill, 4, decimal.NewFromInt(3500), types.OrderStatePartial},
		{InputFullFill, 6, decimal.NewFromInt(3501), types.OrderStateFilled},
	}
	for _, s := range steps {
		got, err := m.Apply(s.input, s.qty, s.price)
		if err != nil {
			t.Fatalf("Apply(%s): %v", s.input, err)
		}
		if got != s.want {
			t.Fatalf("Apply(%s) = %s, want %s", s.input, got, s.want)
		}
	}
	if m.FilledQty != 10 {
		t.Fatalf("got filled qty %d, want 10", m.FilledQty)
	}
}

func TestFSMAckTimeoutToError(t *testing.T) {
	m := NewMachine(ctx("U1"))
	if _, err := m.Apply(InputSubmit, 0, decimal.Zero); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := m.Apply(InputAckTimeout, 0, decimal.Zero)
	if err != nil {
		t.Fatalf("ack_timeout: %v", err)
	}
	if got != types.OrderStateError {
		t.Fatalf("got %s, want ERROR", got)
	}
	if !m.State.IsTerminal() {
		t.Fatalf("expected ERROR to be terminal")
	}
}

func TestFSMRejectsInvalidTransition(t *testing.T) {
	m := NewMachine(ctx("U1"))
	_, err := m.Apply(InputAck, 0, decimal.Zero)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("got err %v, want ErrInvalidTransition", err)
	}
}

func TestFSMTerminalStateRejectsFurtherInput(t *testing.T) {
	m := NewMachine(ctx("U1"))
	m.Apply(InputSubmit, 0, decimal.Zero)
	m.Apply(InputReject, 0, decimal.Zero)
	if m.State != types.OrderStateRejected {
		t.Fatalf("got %s, want REJECTED", m.State)
	}
	_, err := m.Apply(InputAck, 0, decimal.Zero)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from terminal state, got %v", err)
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	r := New(zap.NewNop(), clock.New(), time.Second)
	if err := r.Register(NewMachine(ctx("U1"))); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(NewMachine(ctx("U1")))
	if !errors.Is(err, errs.ErrDuplicateID) {
		t.Fatalf("got %v, want ErrDuplicateID", err)
	}
}

func TestRegistryBindAndResolve(t *testing.T) {
	r := New(zap.NewNop(), clock.New(), time.Second)
	r.Register(NewMachine(ctx("U1")))
	if err := r.BindOrderRef("OR1", "U1"); err != nil {
		t.Fatalf("BindOrderRef: %v", err)
	}
	m, ok := r.ResolveByOrderRef("OR1")
	if !ok || m.Context.LocalID != "U1" {
		t.Fatalf("expected resolve to U1, got %v ok=%v", m, ok)
	}
}

func TestRegistryActiveLocalIDsExcludesTerminal(t *testing.T) {
	r := New(zap.NewNop(), clock.New(), time.Second)

	active := NewMachine(ctx("U1"))
	r.Register(active)
	active.Apply(InputSubmit, 0, decimal.Zero)
	active.Apply(InputAck, 0, decimal.Zero)

	done := NewMachine(ctx("U2"))
	r.Register(done)
	done.Apply(InputSubmit, 0, decimal.Zero)
	done.Apply(InputAck, 0, decimal.Zero)
	done.Apply(InputFullFill, 10, decimal.NewFromInt(3500))

	ids := r.ActiveLocalIDs()
	if len(ids) != 1 || ids[0] != "U1" {
		t.Fatalf("ActiveLocalIDs = %v, want [U1]", ids)
	}
}

func TestRegistryOrphanAfterWindow(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := New(zap.NewNop(), fc, 2*time.Second)
	var orphans []OrphanOrderReport
	r.SetOrphanHandler(func(o OrphanOrderReport) { orphans = append(orphans, o) })

	_, ok := r.ResolveByExchangeID("EX1")
	if ok {
		t.Fatalf("expected unresolved lookup")
	}
	fc.Advance(3 * time.Second)
	r.ReapExpired()

	if len(orphans) != 1 {
		t.Fatalf("got %d orphans, want 1", len(orphans))
	}
	if orphans[0].Key != "EX1" {
		t.Fatalf("got key %s, want EX1", orphans[0].Key)
	}
}

func TestRegistryCancelTargetPrefersExchangeID(t *testing.T) {
	r := New(zap.NewNop(), clock.New(), time.Second)
	r.Register(NewMachine(ctx("U1")))
	r.BindExchangeID("EX1", "U1")

	target, err := r.CancelTargetFor("U1")
	if err != nil {
		t.Fatalf("CancelTargetFor: %v", err)
	}
	if !target.ByExchangeID || target.ExchangeID != "EX1" {
		t.Fatalf("expected cancel by exchange_id, got %+v", target)
	}
}

func TestTimeoutManagerFiresOnDeadline(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	tm := NewManager(fc)
	tm.RegisterAck("U1", 5*time.Second)

	if fired := tm.Tick(fc.Now()); len(fired) != 0 {
		t.Fatalf("expected no fired deadlines yet, got %v", fired)
	}

	fc.Advance(5001 * time.Millisecond)
	fired := tm.Tick(fc.Now())
	if len(fired) != 1 || fired[0].Kind != errs.TimeoutKindAck {
		t.Fatalf("got %v, want one ACK timeout", fired)
	}

	// Firing removes the deadline; a second tick must not refire it.
	if fired := tm.Tick(fc.Now()); len(fired) != 0 {
		t.Fatalf("expected deadline consumed, got %v", fired)
	}
}

func TestTimeoutManagerCancelAllForOrder(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	tm := NewManager(fc)
	tm.RegisterAck("U1", time.Second)
	tm.RegisterFill("U1", time.Second)
	tm.CancelAllForOrder("U1")

	fc.Advance(2 * time.Second)
	if fired := tm.Tick(fc.Now()); len(fired) != 0 {
		t.Fatalf("expected no deadlines after cancel, got %v", fired)
	}
}
