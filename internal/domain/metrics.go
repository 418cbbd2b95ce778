package domain

import (
	"fmt"
	"time"
)

// MetricsWindow restricts metrics aggregation to a trailing period.
type MetricsWindow string

const (
	WindowAll MetricsWindow = "all"
	Window24h MetricsWindow = "24h"
	Window7d  MetricsWindow = "7d"
	Window30d MetricsWindow = "30d"
)

// ParseMetricsWindow validates a period query parameter. Empty means all.
func ParseMetricsWindow(s string) (MetricsWindow, error) {
	switch MetricsWindow(s) {
	case "", WindowAll:
		return WindowAll, nil
	case Window24h, Window7d, Window30d:
		return MetricsWindow(s), nil
	}
	return "", fmt.Errorf("%w: period %q", ErrInvalidInput, s)
}

// Since returns the lower bound of the window relative to now, or nil.
func (w MetricsWindow) Since(now time.Time) *time.Time {
	var d time.Duration
	switch w {
	case Window24h:
		d = 24 * time.Hour
	case Window7d:
		d = 7 * 24 * time.Hour
	case Window30d:
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(-d)
	return &t
}

// ResolutionMetrics aggregates ResolutionRecords over a window.
type ResolutionMetrics struct {
	AvgResolutionMinutes   float64
	TotalResolutions       int64
	FastPriceResolutions   int64
	FastPriceAvgMinutes    float64
	FastPriceAvgConfidence float64
	DisputeCount           int64
	AvgConfidence          float64
	TotalVolume            float64
}

// ResolutionPoint is one hourly bucket of the resolution latency series.
type ResolutionPoint struct {
	Time             time.Time
	FastPriceMinutes float64
	DisputeMinutes   float64
}

// RecentResolution is an authoritative record joined with its market.
type RecentResolution struct {
	ResolutionRecord
	Question       string
	Category       string
	TotalLiquidity float64
}
