// Package types provides shared data types for the futures trading control plane.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange identifies one of the six Chinese futures exchanges.
type Exchange string

const (
	ExchangeSHFE  Exchange = "SHFE"
	ExchangeDCE   Exchange = "DCE"
	ExchangeCZCE  Exchange = "CZCE"
	ExchangeCFFEX Exchange = "CFFEX"
	ExchangeGFEX  Exchange = "GFEX"
	ExchangeINE   Exchange = "INE"
)

// Direction is the side of an order or position leg.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Offset distinguishes opening from closing trades.
type Offset string

const (
	OffsetOpen       Offset = "open"
	OffsetClose      Offset = "close"
	OffsetCloseToday Offset = "close_today"
)

// FeeKind selects how an instrument's commission is computed.
type FeeKind string

const (
	FeeKindPerLot FeeKind = "per_lot"
	FeeKindRate   FeeKind = "rate"
)

// Instrument is symbol-level contract metadata, immutable within a trading session.
type Instrument struct {
	Symbol                  string
	ProductCode             string
	Exchange                Exchange
	TickSize                decimal.Decimal
	Multiplier              int
	MarginRateLong          decimal.Decimal
	MarginRateShort         decimal.Decimal
	CloseTodayFeeMultiplier decimal.Decimal
	PriceBandPct            decimal.Decimal
	FeeKind                 FeeKind
	FeeValue                decimal.Decimal
	HasNightSession         bool
	NightSessionEnd         time.Duration // offset from midnight local time
	ExpiryDate              time.Time
	IsMain                  bool
}

// Validate checks the invariants from spec.md §3.
func (i Instrument) Validate() error {
	if i.TickSize.LessThanOrEqual(decimal.Zero) {
		return errInvalidInstrument("tick_size must be > 0")
	}
	if i.Multiplier <= 0 {
		return errInvalidInstrument("multiplier must be > 0")
	}
	if i.PriceBandPct.LessThanOrEqual(decimal.Zero) || i.PriceBandPct.GreaterThan(decimal.NewFromFloat(0.2)) {
		return errInvalidInstrument("price_band_pct must be in (0, 0.2]")
	}
	return nil
}

func errInvalidInstrument(msg string) error { return &instrumentError{msg} }

type instrumentError struct{ msg string }

func (e *instrumentError) Error() string { return "invalid instrument: " + e.msg }

// OrderContext carries everything an order needs across its local/broker/exchange identifier namespaces.
type OrderContext struct {
	LocalID    string
	Symbol     string
	Direction  Direction
	Offset     Offset
	Qty        int
	Price      decimal.Decimal
	OrderRef   string
	ExchangeID string
	FrontID    int
	SessionID  int
	CreatedAt  time.Time
}

// OrderState is the lifecycle state of a single order (spec.md §3, §4.4).
type OrderState string

const (
	OrderStatePendingNew    OrderState = "PENDING_NEW"
	OrderStateSubmitted     OrderState = "SUBMITTED"
	OrderStateAcked         OrderState = "ACKED"
	OrderStatePartial       OrderState = "PARTIAL"
	OrderStateFilled        OrderState = "FILLED"
	OrderStatePendingCancel OrderState = "PENDING_CANCEL"
	OrderStateCancelled     OrderState = "CANCELLED"
	OrderStateRejected      OrderState = "REJECTED"
	OrderStateError         OrderState = "ERROR"
)

// IsTerminal reports whether no further transitions are admitted from this state.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateError:
		return true
	default:
		return false
	}
}

// Position is the net holding for one symbol.
type Position struct {
	Symbol       string
	LongQty      int
	ShortQty     int
	LongAvgCost  decimal.Decimal
	ShortAvgCost decimal.Decimal
}

// NetQty returns long minus short.
func (p Position) NetQty() int { return p.LongQty - p.ShortQty }

// LegRole distinguishes the two sides of a calendar-spread pair.
type LegRole string

const (
	LegRoleNear LegRole = "near"
	LegRoleFar  LegRole = "far"
)

// LegStatus is the lifecycle state of one leg of a pair (spec.md §3).
type LegStatus string

const (
	LegStatusPending   LegStatus = "PENDING"
	LegStatusSubmitted LegStatus = "SUBMITTED"
	LegStatusPartial   LegStatus = "PARTIAL"
	LegStatusFilled    LegStatus = "FILLED"
	LegStatusCancelled LegStatus = "CANCELLED"
	LegStatusFailed    LegStatus = "FAILED"
)

// Leg is one side of a pair (near or far contract month).
type Leg struct {
	LegID     string
	PairID    string
	Symbol    string
	Direction Direction
	TargetQty int
	FilledQty int
	AvgPrice  decimal.Decimal
	Status    LegStatus
}

// GuardianMode is the process-wide operational mode (spec.md §3, §4.1).
type GuardianMode string

const (
	GuardianModeInit       GuardianMode = "INIT"
	GuardianModeRunning    GuardianMode = "RUNNING"
	GuardianModeReduceOnly GuardianMode = "REDUCE_ONLY"
	GuardianModeHalted     GuardianMode = "HALTED"
	GuardianModeManual     GuardianMode = "MANUAL"
)

// MarginLevel is the derived risk band for current margin usage (spec.md §3, §4.8).
type MarginLevel string

const (
	MarginLevelSafe     MarginLevel = "SAFE"
	MarginLevelNormal   MarginLevel = "NORMAL"
	MarginLevelWarning  MarginLevel = "WARNING"
	MarginLevelDanger   MarginLevel = "DANGER"
	MarginLevelCritical MarginLevel = "CRITICAL"
)

// TargetPortfolio maps symbol to signed target net position, as produced by a strategy.
type TargetPortfolio map[string]int

// Clone returns a deep copy so callers can mutate without aliasing the original.
func (t TargetPortfolio) Clone() TargetPortfolio {
	out := make(TargetPortfolio, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// MarketSnapshot is the strategy-facing view of current market state for one tick.
type MarketSnapshot struct {
	Timestamp time.Time
	Quotes    map[string]Quote
}

// Quote is a best-bid/ask snapshot for one symbol.
type Quote struct {
	Symbol      string
	BidPrice    decimal.Decimal
	AskPrice    decimal.Decimal
	BidVolume   int
	AskVolume   int
	SettlePrice decimal.Decimal
	LastQuoteAt time.Time
	AtPriceBand bool // true if the last trade printed at the daily limit
}

// PortfolioSnapshot is the strategy-facing view of current holdings.
type PortfolioSnapshot struct {
	Positions map[string]Position
	Equity    decimal.Decimal
}

// Trade is a single execution report consumed by PositionTracker (spec.md §4.10).
type Trade struct {
	TradeID    string
	OrderLocal string
	Symbol     string
	Direction  Direction
	Offset     Offset
	Qty        int
	Price      decimal.Decimal
	Timestamp  time.Time
}
