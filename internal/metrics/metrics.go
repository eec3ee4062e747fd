// Package metrics defines the metric source protocol and the concrete
// per-tenant KPI sources (orders, sales, sessions, add-to-cart sessions,
// AOV, CVR) computed over a tenant's analytical summary tables.
//
// Every source receives the same ComputeContext for a request and must
// apply its alignment cutoff identically to the current and previous
// windows; the cutoff is computed once upstream and never rederived here.
package metrics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"brandpulse/internal/timewindow"
)

// Metric names accepted by the registry.
const (
	MetricTotalOrders   = "total_orders"
	MetricTotalSales    = "total_sales"
	MetricTotalSessions = "total_sessions"
	MetricAtcSessions   = "atc_sessions"
	MetricAov           = "aov"
	MetricCvr           = "cvr"
)

// CompareMode selects how the previous period is compared.
type CompareMode string

const (
	// CompareModeHour truncates both windows to the same elapsed portion
	// of the day when the current window reaches into today.
	CompareModeHour CompareMode = "hour"
	// CompareModeDay compares whole-day totals on both sides.
	CompareModeDay CompareMode = "day"
	// CompareModePrevRangeAverage divides each window's total by its day
	// count and compares the per-day averages. No intraday alignment.
	CompareModePrevRangeAverage CompareMode = "previous-range-average"
)

// ParseCompareMode validates an alignMode request parameter.
func ParseCompareMode(s string) (CompareMode, error) {
	switch CompareMode(s) {
	case CompareModeHour, CompareModeDay, CompareModePrevRangeAverage:
		return CompareMode(s), nil
	case "":
		return CompareModeHour, nil
	default:
		return "", fmt.Errorf("unknown align mode: %q", s)
	}
}

// ComputeContext carries the resolved windows and the single alignment
// context shared by every source in a request.
type ComputeContext struct {
	Window    timewindow.Window
	Previous  timewindow.Window
	Alignment timewindow.Alignment
	Mode      CompareMode
}

// Sample is the unit a source returns: an aligned current and previous
// value, with optional metric-specific sub-totals for display. Meta is
// opaque to the delta calculator.
type Sample struct {
	Current      float64
	Previous     float64
	CurrentMeta  map[string]float64
	PreviousMeta map[string]float64
}

// Source computes one metric's aligned current/previous values against a
// tenant's query handle. A failed computation must propagate; it is never
// memoized upstream.
type Source interface {
	Name() string
	Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error)
}

// IsRate reports whether the metric is already expressed as a percentage,
// so callers pick the percentage-point delta calculator for it.
func IsRate(metric string) bool {
	return metric == MetricCvr
}

// UnknownMetricError reports a metric name outside the registry.
type UnknownMetricError struct {
	Metric string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric: %s", e.Metric)
}
