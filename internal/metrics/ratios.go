package metrics

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ratio metrics divide aligned totals over aligned totals on each side
// independently, instead of averaging per-day ratios. Averaging per-day
// ratios over-weights low-volume days and distorts comparisons against a
// partial day. A zero denominator yields 0, never NaN or Inf.

// aovSource reports average order value: total sales over total orders.
type aovSource struct{}

func (aovSource) Name() string {
	return MetricAov
}

func (aovSource) Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error) {
	salesCur, salesPrev, err := alignedPair(ctx, db, cc, "total_sales", "total_sales")
	if err != nil {
		return Sample{}, err
	}
	ordersCur, ordersPrev, err := alignedPair(ctx, db, cc, "total_orders", "number_of_orders")
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Current:  SafeRatio(salesCur, ordersCur, 2),
		Previous: SafeRatio(salesPrev, ordersPrev, 2),
		CurrentMeta: map[string]float64{
			"total_sales":  RoundMoney(salesCur),
			"total_orders": ordersCur,
		},
		PreviousMeta: map[string]float64{
			"total_sales":  RoundMoney(salesPrev),
			"total_orders": ordersPrev,
		},
	}, nil
}

// cvrSource reports conversion rate as a percentage: orders over sessions.
type cvrSource struct{}

func (cvrSource) Name() string {
	return MetricCvr
}

func (cvrSource) Compute(ctx context.Context, cc ComputeContext, db *gorm.DB) (Sample, error) {
	ordersCur, ordersPrev, err := alignedPair(ctx, db, cc, "total_orders", "number_of_orders")
	if err != nil {
		return Sample{}, err
	}
	sessionsCur, sessionsPrev, err := alignedPair(ctx, db, cc, "total_sessions", "number_of_sessions")
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Current:  SafeRatio(ordersCur*100, sessionsCur, 2),
		Previous: SafeRatio(ordersPrev*100, sessionsPrev, 2),
		CurrentMeta: map[string]float64{
			"total_orders":   ordersCur,
			"total_sessions": sessionsCur,
		},
		PreviousMeta: map[string]float64{
			"total_orders":   ordersPrev,
			"total_sessions": sessionsPrev,
		},
	}, nil
}

// SafeRatio divides numerator by denominator with fixed rounding, treating
// a zero denominator as a zero result. Derived daily KPIs outside this
// package use it too.
func SafeRatio(numerator, denominator float64, places int32) float64 {
	if denominator == 0 {
		return 0
	}
	return decimal.NewFromFloat(numerator).
		Div(decimal.NewFromFloat(denominator)).
		Round(places).
		InexactFloat64()
}
