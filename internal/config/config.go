// Package config loads process configuration for the orchestrator binary.
// Thresholds and timeouts come from a viper-backed config file plus
// environment overrides (SPEC_FULL.md §A), the same pattern the teacher repo
// wires in via github.com/spf13/viper. Instrument seed data is decoded
// separately with gopkg.in/yaml.v3 (SPEC_FULL.md §B) since it needs
// decimal-aware custom unmarshalling that viper's generic map decode doesn't
// give us for free.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved process configuration.
type Config struct {
	Timeouts    types.TimeoutConfig    `mapstructure:"timeouts"`
	Throttle    types.ThrottleConfig   `mapstructure:"throttle"`
	Compliance  types.ComplianceConfig `mapstructure:"compliance"`
	Margin      types.MarginThresholds `mapstructure:"margin"`
	Guardian    types.GuardianConfig   `mapstructure:"guardian"`
	Server      types.ServerConfig     `mapstructure:"server"`
	Audit       types.AuditConfig      `mapstructure:"audit"`
	InstrumentsFile string             `mapstructure:"instrumentsFile"`
}

// Default returns a Config populated entirely from built-in defaults.
func Default() Config {
	return Config{
		Timeouts:   types.DefaultTimeoutConfig(),
		Throttle:   types.DefaultThrottleConfig(),
		Compliance: types.DefaultComplianceConfig(),
		Margin:     types.DefaultMarginThresholds(),
		Guardian:   types.DefaultGuardianConfig(),
		Server:     types.DefaultServerConfig(),
		Audit:      types.DefaultAuditConfig(),
	}
}

// Load reads configFile (if non-empty and present) via viper, overlays
// environment variables prefixed FUTURES_CORE_, and falls back to defaults
// for anything unset.
func Load(configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("FUTURES_CORE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// instrumentSeed mirrors types.Instrument with plain fields so yaml.v3 can
// decode prices/rates as strings and we convert to decimal.Decimal ourselves,
// avoiding float round-trip through the YAML decoder.
type instrumentSeed struct {
	Symbol                  string `yaml:"symbol"`
	ProductCode             string `yaml:"productCode"`
	Exchange                string `yaml:"exchange"`
	TickSize                string `yaml:"tickSize"`
	Multiplier              int    `yaml:"multiplier"`
	MarginRateLong          string `yaml:"marginRateLong"`
	MarginRateShort         string `yaml:"marginRateShort"`
	CloseTodayFeeMultiplier string `yaml:"closeTodayFeeMultiplier"`
	PriceBandPct            string `yaml:"priceBandPct"`
	FeeKind                 string `yaml:"feeKind"`
	FeeValue                string `yaml:"feeValue"`
	HasNightSession         bool   `yaml:"hasNightSession"`
	NightSessionEnd         string `yaml:"nightSessionEnd"` // "HH:MM"
	ExpiryDate              string `yaml:"expiryDate"`      // "2006-01-02"
	IsMain                  bool   `yaml:"isMain"`
}

// LoadInstruments decodes a YAML instrument-seed file into types.Instrument values.
func LoadInstruments(path string) ([]types.Instrument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instrument seed %s: %w", path, err)
	}

	var seeds []instrumentSeed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("parse instrument seed %s: %w", path, err)
	}

	out := make([]types.Instrument, 0, len(seeds))
	for _, s := range seeds {
		inst, err := seedToInstrument(s)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", s.Symbol, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func seedToInstrument(s instrumentSeed) (types.Instrument, error) {
	dec := func(field, v string) (decimal.Decimal, error) {
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s=%q: %w", field, v, err)
		}
		return d, nil
	}

	tickSize, err := dec("tickSize", s.TickSize)
	if err != nil {
		return types.Instrument{}, err
	}
	marginLong, err := dec("marginRateLong", s.MarginRateLong)
	if err != nil {
		return types.Instrument{}, err
	}
	marginShort, err := dec("marginRateShort", s.MarginRateShort)
	if err != nil {
		return types.Instrument{}, err
	}
	closeTodayMult, err := dec("closeTodayFeeMultiplier", s.CloseTodayFeeMultiplier)
	if err != nil {
		return types.Instrument{}, err
	}
	priceBandPct, err := dec("priceBandPct", s.PriceBandPct)
	if err != nil {
		return types.Instrument{}, err
	}
	feeValue, err := dec("feeValue", s.FeeValue)
	if err != nil {
		return types.Instrument{}, err
	}

	var expiry time.Time
	if s.ExpiryDate != "" {
		expiry, err = time.Parse("2006-01-02", s.ExpiryDate)
		if err != nil {
			return types.Instrument{}, fmt.Errorf("expiryDate=%q: %w", s.ExpiryDate, err)
		}
	}

	var nightEnd time.Duration
	if s.NightSessionEnd != "" {
		t, err := time.Parse("15:04", s.NightSessionEnd)
		if err != nil {
			return types.Instrument{}, fmt.Errorf("nightSessionEnd=%q: %w", s.NightSessionEnd, err)
		}
		nightEnd = time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	}

	return types.Instrument{
		Symbol:                  s.Symbol,
		ProductCode:             s.ProductCode,
		Exchange:                types.Exchange(s.Exchange),
		TickSize:                tickSize,
		Multiplier:              s.Multiplier,
		MarginRateLong:          marginLong,
		MarginRateShort:         marginShort,
		CloseTodayFeeMultiplier: closeTodayMult,
		PriceBandPct:            priceBandPct,
		FeeKind:                 types.FeeKind(s.FeeKind),
		FeeValue:                feeValue,
		HasNightSession:         s.HasNightSession,
		NightSessionEnd:         nightEnd,
		ExpiryDate:              expiry,
		IsMain:                  s.IsMain,
	}, nil
}
