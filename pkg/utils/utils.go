// Package utils provides small decimal and retry helpers shared across the core.
package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundDownToTick floors a price to the nearest tick below or at it.
func RoundDownToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// RoundUpToTick ceils a price to the nearest tick above or at it.
func RoundUpToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Ceil().Mul(tickSize)
}

// ClampInt clamps value to [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// AbsInt returns the absolute value of an int.
func AbsInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RetryConfig configures exponential-backoff retries for gateway I/O.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults for gateway resubmission.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries fn with exponential backoff until it succeeds or attempts are exhausted.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == config.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}
