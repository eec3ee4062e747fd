package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/metrics"
	"brandpulse/internal/testsupport"
	"brandpulse/internal/timewindow"
)

func computeContext(t *testing.T, start, end string, mode metrics.CompareMode, align timewindow.Alignment) metrics.ComputeContext {
	t.Helper()
	window, err := timewindow.ParseWindow(start, end)
	require.NoError(t, err)
	return metrics.ComputeContext{
		Window:    window,
		Previous:  window.Previous(),
		Alignment: align,
		Mode:      mode,
	}
}

func fullDayAlignment() timewindow.Alignment {
	return timewindow.Alignment{TargetHour: 23, CutoffTime: timewindow.FullDayCutoff, IsToday: false}
}

func TestHourModeTruncatesBothWindowsAtTargetHour(t *testing.T) {
	db := testsupport.OpenTestDB(t)

	// Yesterday ran at double the traffic of today, hour for hour.
	testsupport.SeedUniformHours(t, db, "2024-04-30", metrics.HourlySales{
		NumberOfSessions: 200, NumberOfOrders: 4, TotalSales: 200,
	})
	testsupport.SeedUniformHours(t, db, "2024-05-01", metrics.HourlySales{
		NumberOfSessions: 100, NumberOfOrders: 2, TotalSales: 100,
	})

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeHour,
		timewindow.Alignment{TargetHour: 14, CutoffTime: "14:30:00", IsToday: true})

	source, err := metrics.NewRegistry().Lookup(metrics.MetricTotalSessions)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)

	// Hours 0 through 14 inclusive on both sides: the previous day is cut
	// at the same hour even though its remaining hours hold data.
	assert.InDelta(t, 1500, sample.Current, 0.001)
	assert.InDelta(t, 3000, sample.Previous, 0.001)
}

func TestHourModeWithPastWindowUsesWholeDays(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		metrics.DailySummary{Date: "2024-04-30", TotalSessions: 4800},
		metrics.DailySummary{Date: "2024-05-01", TotalSessions: 2400},
	)

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeHour, fullDayAlignment())

	source, err := metrics.NewRegistry().Lookup(metrics.MetricTotalSessions)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 2400, sample.Current, 0.001)
	assert.InDelta(t, 4800, sample.Previous, 0.001)
}

func TestDayModeIgnoresIntradayAlignment(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		metrics.DailySummary{Date: "2024-04-30", TotalOrders: 48},
		metrics.DailySummary{Date: "2024-05-01", TotalOrders: 30},
	)
	// Hourly rows exist but day mode must not consult them.
	testsupport.SeedUniformHours(t, db, "2024-05-01", metrics.HourlySales{NumberOfOrders: 1})

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeDay,
		timewindow.Alignment{TargetHour: 14, CutoffTime: "14:30:00", IsToday: true})

	source, err := metrics.NewRegistry().Lookup(metrics.MetricTotalOrders)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 30, sample.Current, 0.001)
	assert.InDelta(t, 48, sample.Previous, 0.001)
}

func TestPreviousRangeAverageDividesByDayCount(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		metrics.DailySummary{Date: "2024-04-28", TotalSales: 900},
		metrics.DailySummary{Date: "2024-04-29", TotalSales: 1100},
		metrics.DailySummary{Date: "2024-04-30", TotalSales: 1200},
		metrics.DailySummary{Date: "2024-05-01", TotalSales: 1800},
	)

	cc := computeContext(t, "2024-04-30", "2024-05-01", metrics.CompareModePrevRangeAverage, fullDayAlignment())

	source, err := metrics.NewRegistry().Lookup(metrics.MetricTotalSales)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 1500, sample.Current, 0.001)
	assert.InDelta(t, 1000, sample.Previous, 0.001)
}

func TestOrdersCarryPaymentMixMetadata(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		metrics.DailySummary{Date: "2024-04-30", TotalOrders: 40, CodOrders: 18, PrepaidOrders: 20, PartiallyPaidOrders: 2},
		metrics.DailySummary{Date: "2024-05-01", TotalOrders: 30, CodOrders: 12, PrepaidOrders: 17, PartiallyPaidOrders: 1},
	)

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeDay, fullDayAlignment())

	source, err := metrics.NewRegistry().Lookup(metrics.MetricTotalOrders)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 30, sample.Current, 0.001)
	assert.InDelta(t, 12, sample.CurrentMeta["cod_orders"], 0.001)
	assert.InDelta(t, 17, sample.CurrentMeta["prepaid_orders"], 0.001)
	assert.InDelta(t, 1, sample.CurrentMeta["partially_paid_orders"], 0.001)
	assert.InDelta(t, 18, sample.PreviousMeta["cod_orders"], 0.001)
}

func TestAovIsSalesOverOrdersWithZeroOrderGuard(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		// No orders at all yesterday; AOV must read 0 rather than blow up.
		metrics.DailySummary{Date: "2024-04-30", TotalSales: 0, TotalOrders: 0},
		metrics.DailySummary{Date: "2024-05-01", TotalSales: 1501, TotalOrders: 30},
	)

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeDay, fullDayAlignment())

	source, err := metrics.NewRegistry().Lookup(metrics.MetricAov)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 50.03, sample.Current, 0.001)
	assert.InDelta(t, 0, sample.Previous, 0.001)
	assert.InDelta(t, 1501, sample.CurrentMeta["total_sales"], 0.001)
	assert.InDelta(t, 30, sample.CurrentMeta["total_orders"], 0.001)
}

func TestCvrIsPercentOfSessionsConverting(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	testsupport.SeedDaily(t, db,
		metrics.DailySummary{Date: "2024-04-30", TotalOrders: 48, TotalSessions: 0},
		metrics.DailySummary{Date: "2024-05-01", TotalOrders: 30, TotalSessions: 1500},
	)

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeDay, fullDayAlignment())

	source, err := metrics.NewRegistry().Lookup(metrics.MetricCvr)
	require.NoError(t, err)

	sample, err := source.Compute(context.Background(), cc, db)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, sample.Current, 0.001)
	assert.InDelta(t, 0, sample.Previous, 0.001, "zero sessions reads as zero conversion")
}

func TestEmptyTablesReadAsZeroNotError(t *testing.T) {
	db := testsupport.OpenTestDB(t)

	cc := computeContext(t, "2024-05-01", "2024-05-01", metrics.CompareModeDay, fullDayAlignment())
	registry := metrics.NewRegistry()

	for _, name := range registry.Names() {
		source, err := registry.Lookup(name)
		require.NoError(t, err)

		sample, err := source.Compute(context.Background(), cc, db)
		require.NoError(t, err, name)
		assert.Zero(t, sample.Current, name)
		assert.Zero(t, sample.Previous, name)
	}
}

func TestRegistryRejectsUnknownMetric(t *testing.T) {
	_, err := metrics.NewRegistry().Lookup("refund_rate")

	var unknownErr *metrics.UnknownMetricError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "refund_rate", unknownErr.Metric)
}

func TestRegistryNamesInRegistrationOrder(t *testing.T) {
	assert.Equal(t, []string{
		metrics.MetricTotalOrders,
		metrics.MetricTotalSales,
		metrics.MetricTotalSessions,
		metrics.MetricAtcSessions,
		metrics.MetricAov,
		metrics.MetricCvr,
	}, metrics.NewRegistry().Names())
}

func TestParseCompareMode(t *testing.T) {
	tests := []struct {
		input   string
		want    metrics.CompareMode
		wantErr bool
	}{
		{input: "", want: metrics.CompareModeHour},
		{input: "hour", want: metrics.CompareModeHour},
		{input: "day", want: metrics.CompareModeDay},
		{input: "previous-range-average", want: metrics.CompareModePrevRangeAverage},
		{input: "weekly", wantErr: true},
	}

	for _, tc := range tests {
		mode, err := metrics.ParseCompareMode(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, mode, tc.input)
	}
}
