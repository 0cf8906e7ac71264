// Package gateway provides the default Gateway implementation the core
// binds to when no exchange-specific adapter is configured. The wire
// protocol to a real CTP/FIX/exchange gateway is an external collaborator
// out of scope for the core (spec.md §1, §6 "Gateway"); this logs every
// request and synthesizes a deterministic order_ref so the rest of the
// system can be exercised end to end without a live market connection.
package gateway

import (
	"fmt"
	"sync/atomic"

	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/internal/orders"
	"github.com/atlas-desktop/futures-core/pkg/utils"
	"go.uber.org/zap"
)

// Logging is a Gateway that accepts every submission and cancel, logging
// each at info level. It never produces an ack, trade, or cancel callback
// on its own — wiring those requires a real exchange session. Both calls go
// through utils.Retry so a transient transport error (the case a real
// CTP/FIX session would raise) is resubmitted a few times before it is
// surfaced to the caller.
type Logging struct {
	logger  *zap.Logger
	counter uint64
	retry   utils.RetryConfig
}

// New constructs a Logging gateway.
func New(logger *zap.Logger) *Logging {
	return &Logging{logger: logger.Named("gateway"), retry: utils.DefaultRetryConfig()}
}

// Submit logs the intent and returns a synthesized order_ref.
func (g *Logging) Submit(intent orchestrator.GatewaySubmit) (string, error) {
	return utils.Retry(g.retry, func() (string, error) {
		seq := atomic.AddUint64(&g.counter, 1)
		ref := fmt.Sprintf("LOCAL-REF-%d", seq)
		g.logger.Info("order submit",
			zap.String("local_id", intent.LocalID), zap.String("symbol", intent.Symbol),
			zap.String("direction", string(intent.Direction)), zap.String("offset", string(intent.Offset)),
			zap.Int("qty", intent.Qty), zap.String("price", intent.Price.String()), zap.String("order_ref", ref))
		return ref, nil
	})
}

// Cancel logs the cancel target.
func (g *Logging) Cancel(target orders.CancelTarget) error {
	_, err := utils.Retry(g.retry, func() (struct{}, error) {
		g.logger.Info("order cancel",
			zap.Bool("by_exchange_id", target.ByExchangeID), zap.String("exchange_id", target.ExchangeID),
			zap.Int("front_id", target.FrontID), zap.String("order_ref", target.OrderRef))
		return struct{}{}, nil
	})
	return err
}
