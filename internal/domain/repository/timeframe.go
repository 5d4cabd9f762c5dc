package repository

import (
	"fmt"
	"time"
)

type timeframeSpec struct {
	step    time.Duration
	perYear float64
}

// Intraday bars assume a 6.5 hour session over 252 trading days.
var timeframes = map[Timeframe]timeframeSpec{
	TF1m: {time.Minute, 252 * 6.5 * 60},
	TF5m: {5 * time.Minute, 252 * 6.5 * 12},
	TF1h: {time.Hour, 252 * 6.5},
	TF1d: {24 * time.Hour, 252},
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframes[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1d }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe is the strict form of NormalizeTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration is the spacing between consecutive bars.
func (tf Timeframe) Duration() time.Duration {
	return timeframes[NormalizeTimeframe(string(tf))].step
}

// PeriodsPerYear is the annualization factor for volatility measured on tf bars.
func (tf Timeframe) PeriodsPerYear() float64 {
	return timeframes[NormalizeTimeframe(string(tf))].perYear
}
