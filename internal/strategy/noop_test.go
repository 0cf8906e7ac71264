package strategy

import (
	"testing"

	"github.com/atlas-desktop/futures-core/pkg/types"
)

func TestNoopNeverProposesAChange(t *testing.T) {
	n := NewNoop("noop", "1")
	if n.ID() != "noop" || n.Version() != "1" {
		t.Fatalf("got id=%s version=%s, want noop/1", n.ID(), n.Version())
	}

	target, edges, ok := n.OnTick(types.MarketSnapshot{}, types.PortfolioSnapshot{})
	if ok {
		t.Fatalf("Noop.OnTick returned ok=true, want false")
	}
	if target != nil {
		t.Fatalf("Noop.OnTick returned non-nil target %v", target)
	}
	if edges != nil {
		t.Fatalf("Noop.OnTick returned non-nil edges %v", edges)
	}
}
