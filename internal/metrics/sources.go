package metrics

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brandpulse/internal/timewindow"
)

// sumDaily aggregates one column of the per-day rollup across an inclusive
// date window.
func sumDaily(ctx context.Context, db *gorm.DB, w timewindow.Window, column string) (float64, error) {
	var result struct {
		Total float64
	}

	query := fmt.Sprintf(`
    SELECT COALESCE(SUM(%s), 0) AS total
    FROM overall_summary
    WHERE date BETWEEN ? AND ?
    `, column)

	err := db.WithContext(ctx).Raw(query, w.Start.String(), w.End.String()).Scan(&result).Error
	if err != nil {
		return 0, fmt.Errorf("error aggregating %s: %w", column, err)
	}
	return result.Total, nil
}

// sumHourlyAligned aggregates one column of the per-hour rollup across a
// window, counting the window's final day only up to targetHour. Earlier
// days count in full.
func sumHourlyAligned(ctx context.Context, db *gorm.DB, w timewindow.Window, column string, targetHour int) (float64, error) {
	var result struct {
		Total float64
	}

	query := fmt.Sprintf(`
    SELECT COALESCE(SUM(%s), 0) AS total
    FROM hour_wise_sales
    WHERE date BETWEEN ? AND ?
    AND (date < ? OR hour <= ?)
    `, column)

	err := db.WithContext(ctx).Raw(query,
		w.Start.String(), w.End.String(), w.End.String(), targetHour,
	).Scan(&result).Error
	if err != nil {
		return 0, fmt.Errorf("error aggregating hourly %s: %w", column, err)
	}
	return result.Total, nil
}

// windowTotal returns a window's aligned total for a metric column pair.
// Hour mode with a window reaching into today goes through the hourly
// rollup truncated at the target hour; previous-range-average divides the
// whole-day total by the window's day count.
func windowTotal(ctx context.Context, db *gorm.DB, cc ComputeContext, w timewindow.Window, dailyColumn, hourlyColumn string) (float64, error) {
	switch {
	case cc.Mode == CompareModePrevRangeAverage:
		total, err := sumDaily(ctx, db, w, dailyColumn)
		if err != nil {
			return 0, err
		}
		return total / float64(w.Days()), nil
	case cc.Mode == CompareModeHour && cc.Alignment.IsToday:
		return sumHourlyAligned(ctx, db, w, hourlyColumn, cc.Alignment.TargetHour)
	default:
		return sumDaily(ctx, db, w, dailyColumn)
	}
}

// alignedPair computes the current and previous window totals for one
// column pair under the request's single alignment context.
func alignedPair(ctx context.Context, db *gorm.DB, cc ComputeContext, dailyColumn, hourlyColumn string) (current, previous float64, err error) {
	current, err = windowTotal(ctx, db, cc, cc.Window, dailyColumn, hourlyColumn)
	if err != nil {
		return 0, 0, err
	}
	previous, err = windowTotal(ctx, db, cc, cc.Previous, dailyColumn, hourlyColumn)
	if err != nil {
		return 0, 0, err
	}
	return current, previous, nil
}

// countSource covers metrics that are a plain aligned sum of one column.
type countSource struct {
	name         string
	dailyColumn  string
	hourlyColumn string
}

func (s countSource) Name() string {
	return s.name
}

func (s countSource) Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error) {
	current, previous, err := alignedPair(ctx, db, cc, s.dailyColumn, s.hourlyColumn)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Current: current, Previous: previous}, nil
}

// ordersSource counts orders and carries the payment-mix breakdown as
// display metadata.
type ordersSource struct{}

func (ordersSource) Name() string {
	return MetricTotalOrders
}

func (ordersSource) Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error) {
	current, currentMeta, err := orderBreakdown(ctx, db, cc, cc.Window)
	if err != nil {
		return Sample{}, err
	}
	previous, previousMeta, err := orderBreakdown(ctx, db, cc, cc.Previous)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Current:      current,
		Previous:     previous,
		CurrentMeta:  currentMeta,
		PreviousMeta: previousMeta,
	}, nil
}

func orderBreakdown(ctx context.Context, db *gorm.DB, cc ComputeContext, w timewindow.Window) (float64, map[string]float64, error) {
	if cc.Mode == CompareModeHour && cc.Alignment.IsToday {
		var result struct {
			Total   float64
			Cod     float64
			Prepaid float64
		}
		err := db.WithContext(ctx).Raw(`
        SELECT
            COALESCE(SUM(number_of_orders), 0) AS total,
            COALESCE(SUM(number_of_cod_orders), 0) AS cod,
            COALESCE(SUM(number_of_prepaid_orders), 0) AS prepaid
        FROM hour_wise_sales
        WHERE date BETWEEN ? AND ?
        AND (date < ? OR hour <= ?)
        `, w.Start.String(), w.End.String(), w.End.String(), cc.Alignment.TargetHour).Scan(&result).Error
		if err != nil {
			return 0, nil, fmt.Errorf("error aggregating hourly orders: %w", err)
		}
		return result.Total, map[string]float64{
			"cod_orders":     result.Cod,
			"prepaid_orders": result.Prepaid,
		}, nil
	}

	var result struct {
		Total         float64
		Cod           float64
		Prepaid       float64
		PartiallyPaid float64
	}
	err := db.WithContext(ctx).Raw(`
    SELECT
        COALESCE(SUM(total_orders), 0) AS total,
        COALESCE(SUM(cod_orders), 0) AS cod,
        COALESCE(SUM(prepaid_orders), 0) AS prepaid,
        COALESCE(SUM(partially_paid_orders), 0) AS partially_paid
    FROM overall_summary
    WHERE date BETWEEN ? AND ?
    `, w.Start.String(), w.End.String()).Scan(&result).Error
	if err != nil {
		return 0, nil, fmt.Errorf("error aggregating orders: %w", err)
	}

	total := result.Total
	if cc.Mode == CompareModePrevRangeAverage {
		total = total / float64(w.Days())
	}
	return total, map[string]float64{
		"cod_orders":            result.Cod,
		"prepaid_orders":        result.Prepaid,
		"partially_paid_orders": result.PartiallyPaid,
	}, nil
}

// salesSource sums sales revenue, rounded to whole cents.
type salesSource struct{}

func (salesSource) Name() string {
	return MetricTotalSales
}

func (salesSource) Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error) {
	current, previous, err := alignedPair(ctx, db, cc, "total_sales", "total_sales")
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Current:  RoundMoney(current),
		Previous: RoundMoney(previous),
	}, nil
}

// RoundMoney normalizes a revenue figure to whole cents.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
