package pair

import (
	"testing"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestCreatePairDeterministicLegIDs(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, far, err := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	if near.LegID != "P1_near" || far.LegID != "P1_far" {
		t.Fatalf("got leg ids %s/%s", near.LegID, far.LegID)
	}
}

func TestCreatePairDuplicateRejected(t *testing.T) {
	m := New(zap.NewNop(), 1)
	m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	_, _, err := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	if err == nil {
		t.Fatalf("expected duplicate pair_id to be rejected")
	}
}

func TestUpdateLegTracksFillAndStatus(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, _, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)

	if err := m.UpdateLeg(near.LegID, 4, decimal.NewFromInt(3500)); err != nil {
		t.Fatalf("UpdateLeg: %v", err)
	}
	leg, _ := m.Leg(near.LegID)
	if leg.Status != types.LegStatusPartial {
		t.Fatalf("got status %s, want PARTIAL", leg.Status)
	}

	if err := m.UpdateLeg(near.LegID, 6, decimal.NewFromInt(3510)); err != nil {
		t.Fatalf("UpdateLeg: %v", err)
	}
	leg, _ = m.Leg(near.LegID)
	if leg.Status != types.LegStatusFilled {
		t.Fatalf("got status %s, want FILLED", leg.Status)
	}
	if leg.FilledQty != 10 {
		t.Fatalf("got filled qty %d, want 10", leg.FilledQty)
	}
}

func TestCheckImbalanceDetectsOverThreshold(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, far, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	m.UpdateLeg(near.LegID, 5, decimal.NewFromInt(3500))
	m.UpdateLeg(far.LegID, 2, decimal.NewFromInt(3500))

	imbalance, isImbalanced, err := m.CheckImbalance("P1")
	if err != nil {
		t.Fatalf("CheckImbalance: %v", err)
	}
	if imbalance != 3 || !isImbalanced {
		t.Fatalf("got imbalance=%d isImbalanced=%v, want 3/true", imbalance, isImbalanced)
	}
}

func TestCheckImbalanceWithinThreshold(t *testing.T) {
	m := New(zap.NewNop(), 2)
	near, far, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	m.UpdateLeg(near.LegID, 5, decimal.NewFromInt(3500))
	m.UpdateLeg(far.LegID, 4, decimal.NewFromInt(3500))

	_, isImbalanced, err := m.CheckImbalance("P1")
	if err != nil {
		t.Fatalf("CheckImbalance: %v", err)
	}
	if isImbalanced {
		t.Fatalf("expected within threshold, not imbalanced")
	}
}

func TestGetHedgeOrderTargetsLaggingLeg(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, far, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	m.UpdateLeg(near.LegID, 8, decimal.NewFromInt(3500))
	m.UpdateLeg(far.LegID, 3, decimal.NewFromInt(3500))

	order, ok, err := m.GetHedgeOrder("P1")
	if err != nil {
		t.Fatalf("GetHedgeOrder: %v", err)
	}
	if !ok {
		t.Fatalf("expected a hedge to be needed")
	}
	if order.LegID != far.LegID || order.Qty != 5 {
		t.Fatalf("got hedge %+v, want far leg qty 5", order)
	}
}

func TestGetHedgeOrderNoneWhenBalanced(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, far, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	m.UpdateLeg(near.LegID, 5, decimal.NewFromInt(3500))
	m.UpdateLeg(far.LegID, 5, decimal.NewFromInt(3500))

	_, ok, err := m.GetHedgeOrder("P1")
	if err != nil {
		t.Fatalf("GetHedgeOrder: %v", err)
	}
	if ok {
		t.Fatalf("expected no hedge needed when balanced")
	}
}

func TestExecutorOpenSubmitsBothLegs(t *testing.T) {
	m := New(zap.NewNop(), 1)
	submitted := make(map[string]int)
	exec := NewExecutor(zap.NewNop(), m, func(symbol string, dir types.Direction, qty int) (string, error) {
		submitted[symbol] = qty
		return "local-" + symbol, nil
	})

	if err := exec.Open("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if submitted["rb2501"] != 10 || submitted["rb2505"] != 10 {
		t.Fatalf("got submitted %+v", submitted)
	}

	near, _ := m.Leg("P1_near")
	if near.Status != types.LegStatusSubmitted {
		t.Fatalf("got near status %s, want SUBMITTED", near.Status)
	}
}

func TestExecutorMaybeHedgeSuppressedWhenHalted(t *testing.T) {
	m := New(zap.NewNop(), 1)
	near, far, _ := m.CreatePair("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10)
	m.UpdateLeg(near.LegID, 8, decimal.NewFromInt(3500))
	m.UpdateLeg(far.LegID, 3, decimal.NewFromInt(3500))

	exec := NewExecutor(zap.NewNop(), m, func(symbol string, dir types.Direction, qty int) (string, error) {
		return "x", nil
	})

	_, ok, err := exec.MaybeHedge("P1", types.GuardianModeHalted)
	if ok || err == nil {
		t.Fatalf("expected hedge suppressed under HALTED, got ok=%v err=%v", ok, err)
	}
}

func TestExecutorOnTradeAutoSubmitsHedgeWhenImbalanced(t *testing.T) {
	m := New(zap.NewNop(), 1)
	var submitted []string
	exec := NewExecutor(zap.NewNop(), m, func(symbol string, dir types.Direction, qty int) (string, error) {
		submitted = append(submitted, symbol)
		return "hedge-" + symbol, nil
	})

	if err := exec.Open("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10); err != nil {
		t.Fatalf("Open: %v", err)
	}
	submitted = nil // ignore the two opening submissions

	trade := types.Trade{Symbol: "rb2501", Qty: 8, Price: decimal.NewFromInt(3500)}
	legID, updated, err := exec.OnTrade("hedge-rb2501", trade, types.GuardianModeRunning)
	if err != nil {
		t.Fatalf("OnTrade: %v", err)
	}
	if !updated || legID != "P1_near" {
		t.Fatalf("got legID=%s updated=%v, want P1_near/true", legID, updated)
	}
	if len(submitted) != 1 || submitted[0] != "rb2505" {
		t.Fatalf("expected a hedge order on the far leg, got %v", submitted)
	}

	far, _ := m.Leg("P1_far")
	if far.Status != types.LegStatusSubmitted {
		t.Fatalf("expected far leg re-marked SUBMITTED after hedge, got %s", far.Status)
	}
}

func TestExecutorOnTradeSuppressesExposureIncreasingHedgeUnderReduceOnly(t *testing.T) {
	m := New(zap.NewNop(), 1)
	var submitted []string
	exec := NewExecutor(zap.NewNop(), m, func(symbol string, dir types.Direction, qty int) (string, error) {
		submitted = append(submitted, symbol)
		return "hedge-" + symbol, nil
	})
	// far leg (rb2505) starts flat: a catch-up sell order would push its net
	// position further negative, i.e. grow exposure, so it must be suppressed.
	exec.SetPositionLookup(func(symbol string) int { return 0 })

	if err := exec.Open("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10); err != nil {
		t.Fatalf("Open: %v", err)
	}
	submitted = nil

	trade := types.Trade{Symbol: "rb2501", Qty: 8, Price: decimal.NewFromInt(3500)}
	if _, _, err := exec.OnTrade("hedge-rb2501", trade, types.GuardianModeReduceOnly); err != nil {
		t.Fatalf("OnTrade: %v", err)
	}
	if len(submitted) != 0 {
		t.Fatalf("expected no hedge submitted under REDUCE_ONLY when it would grow exposure, got %v", submitted)
	}
}

func TestExecutorOnTradeAllowsExposureReducingHedgeUnderReduceOnly(t *testing.T) {
	m := New(zap.NewNop(), 1)
	var submitted []string
	exec := NewExecutor(zap.NewNop(), m, func(symbol string, dir types.Direction, qty int) (string, error) {
		submitted = append(submitted, symbol)
		return "hedge-" + symbol, nil
	})
	// far leg starts long 20; the 8-lot sell catch-up moves it to 12, so the
	// hedge shrinks exposure.
	exec.SetPositionLookup(func(symbol string) int { return 20 })

	if err := exec.Open("P1", "rb2501", "rb2505", types.DirectionBuy, types.DirectionSell, 10); err != nil {
		t.Fatalf("Open: %v", err)
	}
	submitted = nil

	trade := types.Trade{Symbol: "rb2501", Qty: 8, Price: decimal.NewFromInt(3500)}
	if _, _, err := exec.OnTrade("hedge-rb2501", trade, types.GuardianModeReduceOnly); err != nil {
		t.Fatalf("OnTrade: %v", err)
	}
	if len(submitted) != 1 || submitted[0] != "rb2505" {
		t.Fatalf("expected the exposure-reducing hedge to be submitted, got %v", submitted)
	}
}
