package api

import (
	"testing"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsDoesNotCollideAcrossInstances(t *testing.T) {
	// Two Metrics in the same process, each with its own registry: this
	// would panic on a duplicate collector name if they shared the default
	// registerer.
	m1 := NewMetrics()
	m2 := NewMetrics()
	m1.OrdersSubmitted.Inc()
	m2.OrdersSubmitted.Inc()
	m2.OrdersSubmitted.Inc()

	if got := testutil.ToFloat64(m1.OrdersSubmitted); got != 1 {
		t.Fatalf("m1.OrdersSubmitted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m2.OrdersSubmitted); got != 2 {
		t.Fatalf("m2.OrdersSubmitted = %v, want 2", got)
	}
}

func TestSetGuardianModeExclusive(t *testing.T) {
	m := NewMetrics()
	m.SetGuardianMode(types.GuardianModeRunning)

	if got := testutil.ToFloat64(m.GuardianMode.WithLabelValues(string(types.GuardianModeRunning))); got != 1 {
		t.Fatalf("RUNNING gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GuardianMode.WithLabelValues(string(types.GuardianModeHalted))); got != 0 {
		t.Fatalf("HALTED gauge = %v, want 0", got)
	}

	m.SetGuardianMode(types.GuardianModeHalted)
	if got := testutil.ToFloat64(m.GuardianMode.WithLabelValues(string(types.GuardianModeRunning))); got != 0 {
		t.Fatalf("RUNNING gauge after switch = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.GuardianMode.WithLabelValues(string(types.GuardianModeHalted))); got != 1 {
		t.Fatalf("HALTED gauge after switch = %v, want 1", got)
	}
}

func TestOrderRejectedLabelsByGate(t *testing.T) {
	m := NewMetrics()
	m.OrderRejected("fat_finger")
	m.OrderRejected("fat_finger")
	m.OrderRejected("throttle")

	if got := testutil.ToFloat64(m.OrdersRejected.WithLabelValues("fat_finger")); got != 2 {
		t.Fatalf("fat_finger rejections = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OrdersRejected.WithLabelValues("throttle")); got != 1 {
		t.Fatalf("throttle rejections = %v, want 1", got)
	}
}
