package margin

import (
	"testing"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newMonitor() *Monitor {
	return New(zap.NewNop(), types.DefaultMarginThresholds(), decimal.Zero)
}

func TestUpdateLevelBands(t *testing.T) {
	m := newMonitor()
	cases := []struct {
		equity, used decimal.Decimal
		want         types.MarginLevel
	}{
		{decimal.NewFromInt(1000), decimal.NewFromInt(400), types.MarginLevelSafe},
		{decimal.NewFromInt(1000), decimal.NewFromInt(500), types.MarginLevelNormal},
		{decimal.NewFromInt(1000), decimal.NewFromInt(700), types.MarginLevelWarning},
		{decimal.NewFromInt(1000), decimal.NewFromInt(850), types.MarginLevelDanger},
		{decimal.NewFromInt(1000), decimal.NewFromInt(1000), types.MarginLevelCritical},
	}
	for _, c := range cases {
		got := m.Update(c.equity, c.used)
		if got != c.want {
			t.Fatalf("usage=%s/%s got %s want %s", c.used, c.equity, got, c.want)
		}
	}
}

func TestUpdateFiresAlertOnLevelChange(t *testing.T) {
	m := newMonitor()
	var alerts []Alert
	m.SetAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(400)) // SAFE, no prior level change (SAFE is default)
	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(900)) // -> DANGER

	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1: %+v", len(alerts), alerts)
	}
	if alerts[0].NewLevel != types.MarginLevelDanger {
		t.Fatalf("got new level %s, want DANGER", alerts[0].NewLevel)
	}
}

func TestMonotonicitySameUsageSameLevel(t *testing.T) {
	m1 := newMonitor()
	m2 := newMonitor()
	l1 := m1.Update(decimal.NewFromInt(2000), decimal.NewFromInt(1500))
	l2 := m2.Update(decimal.NewFromInt(1000), decimal.NewFromInt(750)) // same usage ratio 0.75
	if l1 != l2 {
		t.Fatalf("expected same usage to yield same level, got %s vs %s", l1, l2)
	}
}

func TestCanOpenPositionRejectsWhenExceedsAvailable(t *testing.T) {
	m := newMonitor()
	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(900))
	check := m.CanOpenPosition(decimal.NewFromInt(200))
	if check.Allowed {
		t.Fatalf("expected rejection, required margin exceeds available")
	}
}

func TestCanOpenPositionRejectsAtCriticalProjection(t *testing.T) {
	m := newMonitor()
	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(500))
	check := m.CanOpenPosition(decimal.NewFromInt(500))
	if check.Allowed {
		t.Fatalf("expected rejection, projected usage reaches CRITICAL: %+v", check)
	}
}

func TestCurrentUsageMatchesLastUpdate(t *testing.T) {
	m := newMonitor()
	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(250))
	if got := m.CurrentUsage(); !got.Equal(decimal.NewFromFloat(0.25)) {
		t.Fatalf("CurrentUsage = %s, want 0.25", got)
	}
}

func TestCanOpenPositionAllowsWithinLimits(t *testing.T) {
	m := newMonitor()
	m.Update(decimal.NewFromInt(1000), decimal.NewFromInt(300))
	check := m.CanOpenPosition(decimal.NewFromInt(50))
	if !check.Allowed {
		t.Fatalf("expected allow, got reject: %+v", check)
	}
}
