package gateway

import (
	"testing"

	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestSubmitReturnsUniqueRefs(t *testing.T) {
	g := New(zap.NewNop())

	ref1, err := g.Submit(orchestrator.GatewaySubmit{LocalID: "L1", Symbol: "rb2410", Qty: 1, Price: decimal.NewFromInt(3500)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref2, err := g.Submit(orchestrator.GatewaySubmit{LocalID: "L2", Symbol: "rb2410", Qty: 1, Price: decimal.NewFromInt(3500)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref1 == ref2 {
		t.Fatalf("expected distinct order refs, got %s twice", ref1)
	}
}

func TestCancelNeverErrors(t *testing.T) {
	g := New(zap.NewNop())
	if err := g.Cancel(orders.CancelTarget{OrderRef: "LOCAL-REF-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
