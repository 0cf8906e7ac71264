// Package margin implements the real-time margin-usage monitor that derives
// a MarginLevel band from equity/margin-used and gates new position opens
// (spec.md §4.8).
package margin

import (
	"fmt"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// epsilon guards against division by zero equity (spec.md §4.8: usage =
// margin_used / max(equity, ε)).
var epsilon = decimal.New(1, -8)

// Alert is emitted every time the derived level changes.
type Alert struct {
	OldLevel types.MarginLevel
	NewLevel types.MarginLevel
	Usage    decimal.Decimal
}

// OpenCheck is the outcome of can_open_position.
type OpenCheck struct {
	Allowed         bool
	Reason          string
	ProjectedUsage  decimal.Decimal
	ProjectedLevel  types.MarginLevel
}

// Monitor tracks current equity, margin used, and the derived level.
type Monitor struct {
	logger     *zap.Logger
	thresholds types.MarginThresholds

	equity     decimal.Decimal
	marginUsed decimal.Decimal
	level      types.MarginLevel

	minAvailable decimal.Decimal

	onAlert func(Alert)
}

// New constructs a Monitor starting at level SAFE with zero equity/margin.
func New(logger *zap.Logger, thresholds types.MarginThresholds, minAvailable decimal.Decimal) *Monitor {
	return &Monitor{
		logger:       logger.Named("margin-monitor"),
		thresholds:   thresholds,
		level:        types.MarginLevelSafe,
		minAvailable: minAvailable,
	}
}

// SetAlertHandler registers a callback invoked on every level change.
func (m *Monitor) SetAlertHandler(fn func(Alert)) {
	m.onAlert = fn
}

// levelFor maps a usage ratio to a MarginLevel per the configured thresholds.
// Levels are monotone in usage (spec.md §8 property 9): the same usage always
// maps to the same level, regardless of call history.
func (m *Monitor) levelFor(usage decimal.Decimal) types.MarginLevel {
	switch {
	case usage.GreaterThanOrEqual(m.thresholds.Critical):
		return types.MarginLevelCritical
	case usage.GreaterThanOrEqual(m.thresholds.Danger):
		return types.MarginLevelDanger
	case usage.GreaterThanOrEqual(m.thresholds.Warning):
		return types.MarginLevelWarning
	case usage.GreaterThanOrEqual(m.thresholds.Normal):
		return types.MarginLevelNormal
	default:
		return types.MarginLevelSafe
	}
}

// Update recomputes usage and level from the latest equity/margin_used
// snapshot, firing an alert through the registered handler on any level change.
func (m *Monitor) Update(equity, marginUsed decimal.Decimal) types.MarginLevel {
	m.equity = equity
	m.marginUsed = marginUsed

	denom := equity
	if denom.LessThanOrEqual(decimal.Zero) {
		denom = epsilon
	}
	usage := marginUsed.Div(denom)
	newLevel := m.levelFor(usage)

	if newLevel != m.level {
		old := m.level
		m.level = newLevel
		m.logger.Info("margin level changed",
			zap.String("old", string(old)), zap.String("new", string(newLevel)),
			zap.String("usage", usage.String()))
		if m.onAlert != nil {
			m.onAlert(Alert{OldLevel: old, NewLevel: newLevel, Usage: usage})
		}
	}
	return m.level
}

// CurrentLevel returns the last-computed level.
func (m *Monitor) CurrentLevel() types.MarginLevel { return m.level }

// CurrentUsage returns the last-computed margin_used / equity ratio, for the
// read-only monitoring surface (SPEC_FULL.md §D.3).
func (m *Monitor) CurrentUsage() decimal.Decimal {
	denom := m.equity
	if denom.LessThanOrEqual(decimal.Zero) {
		denom = epsilon
	}
	return m.marginUsed.Div(denom)
}

// CanOpenPosition evaluates whether opening a position requiring
// requiredMargin is currently permitted (spec.md §4.8).
func (m *Monitor) CanOpenPosition(requiredMargin decimal.Decimal) OpenCheck {
	available := m.equity.Sub(m.marginUsed)

	if requiredMargin.GreaterThan(available) {
		return OpenCheck{Allowed: false, Reason: "required margin exceeds available margin"}
	}
	if available.Sub(requiredMargin).LessThan(m.minAvailable) {
		return OpenCheck{Allowed: false, Reason: "available margin would fall below configured minimum"}
	}

	denom := m.equity
	if denom.LessThanOrEqual(decimal.Zero) {
		denom = epsilon
	}
	projectedUsage := m.marginUsed.Add(requiredMargin).Div(denom)
	projectedLevel := m.levelFor(projectedUsage)

	if projectedLevel == types.MarginLevelCritical {
		return OpenCheck{
			Allowed:        false,
			Reason:         fmt.Sprintf("projected level %s would reach CRITICAL", projectedLevel),
			ProjectedUsage: projectedUsage,
			ProjectedLevel: projectedLevel,
		}
	}

	return OpenCheck{
		Allowed:        true,
		ProjectedUsage: projectedUsage,
		ProjectedLevel: projectedLevel,
	}
}
