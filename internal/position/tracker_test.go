package position

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/futures-core/internal/errs"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func trade(dir types.Direction, offset types.Offset, qty int, price int64) types.Trade {
	return types.Trade{
		Symbol:    "rb2501",
		Direction: dir,
		Offset:    offset,
		Qty:       qty,
		Price:     decimal.NewFromInt(price),
	}
}

func TestApplyTradeOpenBuildsWeightedAvgCost(t *testing.T) {
	tr := New(zap.NewNop())
	if err := tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500)); err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	if err := tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3510)); err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	pos := tr.Get("rb2501")
	if pos.LongQty != 20 {
		t.Fatalf("got long qty %d, want 20", pos.LongQty)
	}
	want := decimal.NewFromInt(3505)
	if !pos.LongAvgCost.Equal(want) {
		t.Fatalf("got avg cost %s, want %s", pos.LongAvgCost, want)
	}
}

func TestApplyTradeCloseReducesPosition(t *testing.T) {
	tr := New(zap.NewNop())
	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500))
	if err := tr.ApplyTrade(trade(types.DirectionSell, types.OffsetClose, 4, 3550)); err != nil {
		t.Fatalf("ApplyTrade close: %v", err)
	}
	pos := tr.Get("rb2501")
	if pos.LongQty != 6 {
		t.Fatalf("got long qty %d, want 6", pos.LongQty)
	}
}

func TestApplyTradeCloseExceedingPositionRejected(t *testing.T) {
	tr := New(zap.NewNop())
	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 5, 3500))
	err := tr.ApplyTrade(trade(types.DirectionSell, types.OffsetClose, 10, 3550))
	if !errors.Is(err, errs.ErrInsufficientPosition) {
		t.Fatalf("got %v, want ErrInsufficientPosition", err)
	}
	// Rejected close must leave position untouched.
	if pos := tr.Get("rb2501"); pos.LongQty != 5 {
		t.Fatalf("position mutated on rejected close: %+v", pos)
	}
}

// TestInverseIdempotence is spec property 8: applying a trade stream then
// its reverse returns Position to its initial state.
func TestInverseIdempotence(t *testing.T) {
	tr := New(zap.NewNop())
	initial := tr.Get("rb2501")

	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500))
	tr.ApplyTrade(trade(types.DirectionSell, types.OffsetClose, 10, 3600))

	final := tr.Get("rb2501")
	if final.NetQty() != initial.NetQty() {
		t.Fatalf("got net qty %d, want %d", final.NetQty(), initial.NetQty())
	}
	if !final.LongAvgCost.Equal(initial.LongAvgCost) {
		t.Fatalf("got avg cost %s, want %s", final.LongAvgCost, initial.LongAvgCost)
	}
}

func TestReconcileReportsMismatch(t *testing.T) {
	tr := New(zap.NewNop())
	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500))

	var got []errs.ReconcileMismatch
	tr.SetMismatchHandler(func(m errs.ReconcileMismatch) { got = append(got, m) })

	mismatches := tr.Reconcile(map[string]int{"rb2501": 8})
	if len(mismatches) != 1 {
		t.Fatalf("got %d mismatches, want 1", len(mismatches))
	}
	if mismatches[0].Local != 10 || mismatches[0].Broker != 8 {
		t.Fatalf("got %+v", mismatches[0])
	}
	if len(got) != 1 {
		t.Fatalf("expected handler invoked once, got %d", len(got))
	}
}

func TestReconcileNoMismatchWhenEqual(t *testing.T) {
	tr := New(zap.NewNop())
	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500))
	if mismatches := tr.Reconcile(map[string]int{"rb2501": 10}); len(mismatches) != 0 {
		t.Fatalf("expected no mismatches, got %v", mismatches)
	}
}

func TestSyncFromBrokerOverwritesLocal(t *testing.T) {
	tr := New(zap.NewNop())
	tr.ApplyTrade(trade(types.DirectionBuy, types.OffsetOpen, 10, 3500))
	tr.SyncFromBroker(map[string]int{"rb2501": -5, "IF2501": 3})

	if pos := tr.Get("rb2501"); pos.NetQty() != -5 {
		t.Fatalf("got net qty %d, want -5", pos.NetQty())
	}
	if pos := tr.Get("IF2501"); pos.NetQty() != 3 {
		t.Fatalf("got net qty %d, want 3", pos.NetQty())
	}
}
