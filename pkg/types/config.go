// Package types provides configuration types for the futures trading control plane.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeoutConfig holds the ACK/FILL/CANCEL deadlines for TimeoutManager (spec.md §4.5).
type TimeoutConfig struct {
	Ack    time.Duration `mapstructure:"ack" json:"ack"`
	Fill   time.Duration `mapstructure:"fill" json:"fill"`
	Cancel time.Duration `mapstructure:"cancel" json:"cancel"`
}

// DefaultTimeoutConfig mirrors spec.md §4.5 defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Ack:    5 * time.Second,
		Fill:   30 * time.Second,
		Cancel: 10 * time.Second,
	}
}

// ThrottleConfig configures ProtectionPipeline's ThrottleGate (spec.md §4.7).
type ThrottleConfig struct {
	MaxOrdersPerMinute int           `mapstructure:"maxOrdersPerMinute" json:"maxOrdersPerMinute"`
	MinIntervalSeconds float64       `mapstructure:"minIntervalSeconds" json:"minIntervalSeconds"`
	Window             time.Duration `mapstructure:"window" json:"window"`
}

// DefaultThrottleConfig returns sensible defaults.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxOrdersPerMinute: 120,
		MinIntervalSeconds: 0.05,
		Window:             60 * time.Second,
	}
}

// ComplianceConfig configures ComplianceGate's report-cancel-frequency rule (spec.md §4.7).
type ComplianceConfig struct {
	Window        time.Duration `mapstructure:"window" json:"window"`
	MaxOperations int           `mapstructure:"maxOperations" json:"maxOperations"`
	WarningPct    decimal.Decimal `mapstructure:"warningPct" json:"warningPct"`
	CriticalPct   decimal.Decimal `mapstructure:"criticalPct" json:"criticalPct"`
}

// DefaultComplianceConfig mirrors spec.md §4.7 / §8 property 7: 50 ops per 5s window.
func DefaultComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		Window:        5 * time.Second,
		MaxOperations: 50,
		WarningPct:    decimal.NewFromFloat(0.6),
		CriticalPct:   decimal.NewFromFloat(0.9),
	}
}

// MarginThresholds configures the usage bands used by MarginMonitor (spec.md §3, §4.8).
type MarginThresholds struct {
	Normal   decimal.Decimal `mapstructure:"normal" json:"normal"`
	Warning  decimal.Decimal `mapstructure:"warning" json:"warning"`
	Danger   decimal.Decimal `mapstructure:"danger" json:"danger"`
	Critical decimal.Decimal `mapstructure:"critical" json:"critical"`
}

// DefaultMarginThresholds mirrors spec.md §3: 0.50 / 0.70 / 0.85 / 1.00.
func DefaultMarginThresholds() MarginThresholds {
	return MarginThresholds{
		Normal:   decimal.NewFromFloat(0.50),
		Warning:  decimal.NewFromFloat(0.70),
		Danger:   decimal.NewFromFloat(0.85),
		Critical: decimal.NewFromFloat(1.00),
	}
}

// GuardianConfig configures trigger thresholds consumed by TriggerRegistry (spec.md §4.2).
type GuardianConfig struct {
	QuoteStaleMs            int64         `mapstructure:"quoteStaleMs" json:"quoteStaleMs"`
	OrderStuckTimeout       time.Duration `mapstructure:"orderStuckTimeout" json:"orderStuckTimeout"`
	PositionDriftTolerance  int           `mapstructure:"positionDriftTolerance" json:"positionDriftTolerance"`
	LegImbalanceThreshold   int           `mapstructure:"legImbalanceThreshold" json:"legImbalanceThreshold"`
	ConsecutiveLimitPriceN  int           `mapstructure:"consecutiveLimitPriceN" json:"consecutiveLimitPriceN"`
	DeliveryReduceDays      int           `mapstructure:"deliveryReduceDays" json:"deliveryReduceDays"`
	DeliveryHaltDays        int           `mapstructure:"deliveryHaltDays" json:"deliveryHaltDays"`
}

// DefaultGuardianConfig resolves spec.md §9 open question (c): N=2.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		QuoteStaleMs:           2000,
		OrderStuckTimeout:      15 * time.Second,
		PositionDriftTolerance: 0,
		LegImbalanceThreshold:  1,
		ConsecutiveLimitPriceN: 2,
		DeliveryReduceDays:     5,
		DeliveryHaltDays:       1,
	}
}

// ServerConfig configures the read-only monitoring HTTP/WS surface (SPEC_FULL.md §A).
type ServerConfig struct {
	Host          string `mapstructure:"host" json:"host"`
	Port          int    `mapstructure:"port" json:"port"`
	WebSocketPath string `mapstructure:"websocketPath" json:"websocketPath"`
	MetricsPath   string `mapstructure:"metricsPath" json:"metricsPath"`
	EnableCORS    bool   `mapstructure:"enableCors" json:"enableCors"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "localhost",
		Port:          8090,
		WebSocketPath: "/ws",
		MetricsPath:   "/metrics",
		EnableCORS:    true,
	}
}

// AuditConfig configures EventLog file rotation (spec.md §4.11, §6).
type AuditConfig struct {
	Dir           string `mapstructure:"dir" json:"dir"`
	RunID         string `mapstructure:"runId" json:"runId"`
	MaxBytesPerFile int64 `mapstructure:"maxBytesPerFile" json:"maxBytesPerFile"`
}

// DefaultAuditConfig returns sensible defaults.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Dir:             "./events",
		MaxBytesPerFile: 64 * 1024 * 1024,
	}
}
