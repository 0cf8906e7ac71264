// Package main provides the entry point for the futures trading core
// engine: Guardian state machine, order lifecycle FSM, pair execution,
// pre-trade protection, cost/edge gating, and the deterministic audit
// trail, fronted by a read-only monitoring HTTP/WS surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/futures-core/internal/api"
	"github.com/atlas-desktop/futures-core/internal/audit"
	"github.com/atlas-desktop/futures-core/internal/config"
	"github.com/atlas-desktop/futures-core/internal/cost"
	"github.com/atlas-desktop/futures-core/internal/gateway"
	"github.com/atlas-desktop/futures-core/internal/guardian"
	"github.com/atlas-desktop/futures-core/internal/ids"
	"github.com/atlas-desktop/futures-core/internal/instrument"
	"github.com/atlas-desktop/futures-core/internal/margin"
	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/internal/orders"
	"github.com/atlas-desktop/futures-core/internal/pair"
	"github.com/atlas-desktop/futures-core/internal/position"
	"github.com/atlas-desktop/futures-core/internal/protection"
	"github.com/atlas-desktop/futures-core/internal/strategy"
	"github.com/atlas-desktop/futures-core/pkg/clock"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML/JSON config file")
	instrumentsFile := flag.String("instruments", "", "Path to instrument seed YAML file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	runID := flag.String("run-id", "", "Run identifier; generated if empty")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	id := *runID
	if id == "" {
		id = ids.NewRunID()
	}

	insts, err := loadInstruments(*instrumentsFile)
	if err != nil {
		logger.Fatal("failed to load instruments", zap.Error(err))
	}

	instrumentReg := instrument.New(logger)
	if err := instrumentReg.Load(insts); err != nil {
		logger.Fatal("failed to populate instrument registry", zap.Error(err))
	}

	watchedSymbols := make([]string, 0, len(insts))
	for _, inst := range insts {
		watchedSymbols = append(watchedSymbols, inst.Symbol)
	}

	auditLog, err := audit.NewWriter(logger, cfg.Audit.Dir, id, cfg.Audit.MaxBytesPerFile)
	if err != nil {
		logger.Fatal("failed to open audit log", zap.Error(err))
	}
	defer auditLog.Close()

	clk := clock.New()
	costModel := cost.NewModel()

	marginMon := margin.New(logger, cfg.Margin, decimal.Zero)

	pipeline := protection.NewPipeline(
		&protection.LiquidityGate{MaxSpreadTicks: 10, MinVolume: 1, MinDepth: 1},
		&protection.FatFingerGate{MaxQty: 1000, MaxNotional: decimal.NewFromFloat(1e8), MaxDeviation: decimal.NewFromFloat(0.05)},
		protection.NewThrottleGate(cfg.Throttle.MaxOrdersPerMinute, secondsToDuration(cfg.Throttle.MinIntervalSeconds)),
		&protection.LimitPriceGate{RejectAtBand: true},
		&protection.MarginGate{Checker: marginMon, RequiredMargin: requiredMarginFor()},
		&protection.ComplianceGate{Throttle: protection.NewComplianceThrottle(cfg.Compliance.Window, cfg.Compliance.MaxOperations, cfg.Compliance.WarningPct, cfg.Compliance.CriticalPct)},
	)

	orderReg := orders.New(logger, clk, 2*time.Minute)
	timeouts := orders.NewManager(clk)
	positions := position.New(logger)
	legs := pair.New(logger, cfg.Guardian.LegImbalanceThreshold)

	fsm := guardian.NewFSM()
	if _, err := fsm.Transition(guardian.EventInitSuccess); err != nil {
		logger.Fatal("failed to initialize guardian FSM", zap.Error(err))
	}
	triggerRegistry := guardian.NewRegistry(
		guardian.QuoteStaleTrigger{HardStaleMs: cfg.Guardian.QuoteStaleMs},
		guardian.OrderStuckTrigger{StuckTimeout: cfg.Guardian.OrderStuckTimeout},
		guardian.PositionDriftTrigger{Tolerance: cfg.Guardian.PositionDriftTolerance},
		guardian.LegImbalanceTrigger{Threshold: cfg.Guardian.LegImbalanceThreshold},
		guardian.MarginTrigger{},
		guardian.LimitPriceTrigger{N: cfg.Guardian.ConsecutiveLimitPriceN},
		guardian.DeliveryApproachingTrigger{ReduceDays: cfg.Guardian.DeliveryReduceDays, HaltDays: cfg.Guardian.DeliveryHaltDays},
	)

	gw := gateway.New(logger)

	var loop *orchestrator.Loop
	guardianMon := guardian.NewMonitor(
		logger, fsm, triggerRegistry,
		func(localID string) error { return loop.RequestCancel(localID) },
		func(symbol string) error { return flattenSymbol(loop, positions, symbol) },
		orderReg.ActiveLocalIDs,
		func(message string) { logger.Warn("guardian alert", zap.String("message", message)) },
	)

	pairExec := pair.NewExecutor(logger, legs, func(symbol string, dir types.Direction, qty int) (string, error) {
		return submitAtMarket(loop, symbol, dir, types.OffsetOpen, qty)
	})
	pairExec.SetPositionLookup(func(symbol string) int { return positions.Get(symbol).NetQty() })

	strategyHost := strategy.NewHost(logger, clk, strategy.NewNoop("noop", "1"))

	orchCfg := orchestrator.Config{
		RunID:          id,
		WatchedSymbols: watchedSymbols,
		Timeouts:       cfg.Timeouts,
	}
	loop = orchestrator.New(
		logger, clk, orchCfg,
		instrumentReg, auditLog, costModel, pipeline, marginMon,
		orderReg, timeouts, positions, legs, pairExec, guardianMon, strategyHost, gw,
	)

	server := api.NewServer(logger, cfg.Server, loop)
	loop.SetMetricsSink(server.Metrics())
	loop.SetBroadcaster(server.Hub())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Run(); err != nil {
			logger.Error("monitoring server error", zap.Error(err))
		}
	}()

	go runHousekeeping(ctx, logger, loop, server, watchedSymbols)

	logger.Info("core engine started",
		zap.String("run_id", id), zap.Int("instruments", len(insts)),
		zap.String("http", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during monitoring server shutdown", zap.Error(err))
	}

	exitCode := 0
	if halt := loop.LastHalt(); halt != nil {
		exitCode = halt.ExitCode()
	}
	logger.Info("core engine stopped", zap.Int("exit_code", exitCode))
	os.Exit(exitCode)
}

// runHousekeeping ticks the timeout manager, orphan reaper, and guardian
// evaluation on a fixed cadence, and mirrors state into the monitoring
// surface. Market snapshot ingestion that drives ProcessTick is an external
// collaborator (spec.md §1) wired by whatever feeds ticks in a given
// deployment; this loop only runs the tick-independent housekeeping.
func runHousekeeping(ctx context.Context, logger *zap.Logger, loop *orchestrator.Loop, server *api.Server, watchedSymbols []string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loop.ProcessTimeouts(); err != nil {
				logger.Warn("process timeouts failed", zap.Error(err))
			}
			loop.ReapOrphans()

			result, err := loop.RunGuardianTick(guardian.State{Now: time.Now(), WatchedSymbols: watchedSymbols})
			if err != nil {
				logger.Warn("guardian tick failed", zap.Error(err))
				continue
			}
			server.Metrics().SetGuardianMode(result.CurrentMode)
			for _, t := range result.Transitions {
				server.Hub().BroadcastGuardianMode(t.New, string(t.Trigger), t.Reason)
				if t.New == types.GuardianModeHalted {
					server.Metrics().GuardianHalts.WithLabelValues(string(t.Trigger)).Inc()
				}
			}
			marginUsage, _ := loop.MarginUsage().Float64()
			server.Metrics().MarginUsageRatio.Set(marginUsage)
			server.Hub().BroadcastMarginLevel(loop.MarginLevel())
		}
	}
}

// submitAtMarket prices an order off the last quote seen for symbol and
// submits it directly through the orchestrator, bypassing the protection
// pipeline: used for both opening legs of a pair, for pair hedge legs (which
// are corrective orders the pair manager has already decided are necessary,
// spec.md §4.6), and for Guardian's per-symbol flatten.
func submitAtMarket(loop *orchestrator.Loop, symbol string, dir types.Direction, offset types.Offset, qty int) (string, error) {
	quote, ok := loop.LastQuote(symbol)
	if !ok {
		return "", fmt.Errorf("no quote available for %s", symbol)
	}
	price := quote.AskPrice
	if dir == types.DirectionSell {
		price = quote.BidPrice
	}
	return loop.SubmitManual(symbol, dir, offset, qty, price)
}

// flattenSymbol closes the full net position in symbol, for Guardian's
// FlattenAll on entering HALTED (spec.md §4.3).
func flattenSymbol(loop *orchestrator.Loop, positions *position.Tracker, symbol string) error {
	pos := positions.Get(symbol)
	net := pos.NetQty()
	if net == 0 {
		return nil
	}
	dir := types.DirectionSell
	qty := net
	if net < 0 {
		dir = types.DirectionBuy
		qty = -net
	}
	_, err := submitAtMarket(loop, symbol, dir, types.OffsetCloseToday, qty)
	return err
}

// loadInstruments reads the instrument seed file, or returns an empty set
// if none was configured — a deployment that only replays an audit log
// against already-decided orders has no need for live instrument metadata.
func loadInstruments(path string) ([]types.Instrument, error) {
	if path == "" {
		return nil, nil
	}
	return config.LoadInstruments(path)
}

// secondsToDuration converts a fractional-seconds config value (as used by
// ThrottleConfig.MinIntervalSeconds) into a time.Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// requiredMarginFor computes the margin MarginGate must reserve for one
// intent, using the instrument's margin rate on the order's notional
// (spec.md §4.8, §3 Instrument margin_rate_long/short). The orchestrator
// populates ctx.Instrument before the pipeline runs, so no registry lookup
// is needed here.
func requiredMarginFor() func(ctx protection.Context) decimal.Decimal {
	return func(ctx protection.Context) decimal.Decimal {
		rate := ctx.Instrument.MarginRateLong
		if ctx.Intent.Direction == types.DirectionSell {
			rate = ctx.Instrument.MarginRateShort
		}
		notional := ctx.Intent.Price.Mul(decimal.NewFromInt(int64(ctx.Intent.Qty))).Mul(decimal.NewFromInt(int64(ctx.Instrument.Multiplier)))
		return notional.Mul(rate)
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
