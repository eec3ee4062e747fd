// Package engine is the facade the transport layer consumes: it resolves
// tenants, aligns comparison windows, runs metric sources, and memoizes
// single-day KPI reads through the two-tier cache.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"log/slog"

	"gorm.io/gorm"

	"brandpulse/internal/cache"
	"brandpulse/internal/delta"
	"brandpulse/internal/metrics"
	"brandpulse/internal/pkg/async"
	"brandpulse/internal/tenants"
	"brandpulse/internal/timewindow"
)

const defaultWorkerCount = 4

// WindowInfo echoes the compared date ranges back to the caller.
type WindowInfo struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	PreviousStart string `json:"previous_start"`
	PreviousEnd   string `json:"previous_end"`
}

// DeltaResult is one metric's aligned comparison.
type DeltaResult struct {
	Metric       string             `json:"metric"`
	Range        WindowInfo         `json:"range"`
	Current      float64            `json:"current"`
	Previous     float64            `json:"previous"`
	Diff         float64            `json:"diff"`
	DiffPct      float64            `json:"diff_pct"`
	DiffPp       *float64           `json:"diff_pp,omitempty"`
	Direction    string             `json:"direction"`
	Align        string             `json:"align,omitempty"`
	Hour         *int               `json:"hour,omitempty"`
	CutoffTime   string             `json:"cutoff_time,omitempty"`
	CurrentMeta  map[string]float64 `json:"current_meta,omitempty"`
	PreviousMeta map[string]float64 `json:"previous_meta,omitempty"`
}

// DeltaSet is the fan-out response: per-metric results and per-metric
// failures, collected independently so one broken metric does not void the
// rest of a dashboard.
type DeltaSet struct {
	Results map[string]DeltaResult `json:"results"`
	Errors  map[string]string      `json:"errors,omitempty"`
}

// DailyMetrics is the cached single-day KPI snapshot.
type DailyMetrics struct {
	Date          string  `json:"date"`
	TotalOrders   float64 `json:"total_orders"`
	TotalSales    float64 `json:"total_sales"`
	TotalSessions float64 `json:"total_sessions"`
	AtcSessions   float64 `json:"atc_sessions"`
	Aov           float64 `json:"aov"`
	Cvr           float64 `json:"cvr"`
}

// Engine wires the router, alignment resolver, metric registry and the
// result caches behind the operations the HTTP layer exposes.
type Engine struct {
	router   tenants.Router
	resolver *timewindow.Resolver
	registry *metrics.Registry
	daily    *cache.Cache[DailyMetrics]
	samples  *cache.Cache[metrics.Sample]
	log      *slog.Logger
	workers  int
}

func New(router tenants.Router, resolver *timewindow.Resolver, registry *metrics.Registry, daily *cache.Cache[DailyMetrics], samples *cache.Cache[metrics.Sample], logger *slog.Logger) *Engine {
	return &Engine{
		router:   router,
		resolver: resolver,
		registry: registry,
		daily:    daily,
		samples:  samples,
		log:      logger,
		workers:  defaultWorkerCount,
	}
}

// GetDelta computes one metric's aligned comparison for a tenant.
func (e *Engine) GetDelta(ctx context.Context, tenant, metric string, window timewindow.Window, alignMode string) (DeltaResult, error) {
	mode, err := metrics.ParseCompareMode(alignMode)
	if err != nil {
		return DeltaResult{}, err
	}
	source, err := e.registry.Lookup(metric)
	if err != nil {
		return DeltaResult{}, err
	}
	db, err := e.router.Resolve(tenant)
	if err != nil {
		return DeltaResult{}, err
	}

	cc := e.computeContext(window, mode)
	sample, err := e.computeSample(ctx, tenant, source, cc, db)
	if err != nil {
		return DeltaResult{}, fmt.Errorf("computing %s for tenant %s: %w", metric, tenant, err)
	}
	return e.buildResult(metric, cc, sample), nil
}

// GetDeltas fans the requested metrics out across the worker pool. The
// request fails only on bad input (mode, metric names, tenant); individual
// compute failures land in the Errors map with the rest still served.
func (e *Engine) GetDeltas(ctx context.Context, tenant string, names []string, window timewindow.Window, alignMode string) (DeltaSet, error) {
	mode, err := metrics.ParseCompareMode(alignMode)
	if err != nil {
		return DeltaSet{}, err
	}
	if len(names) == 0 {
		names = e.registry.Names()
	}

	sources := make([]metrics.Source, 0, len(names))
	for _, name := range names {
		source, err := e.registry.Lookup(name)
		if err != nil {
			return DeltaSet{}, err
		}
		sources = append(sources, source)
	}
	db, err := e.router.Resolve(tenant)
	if err != nil {
		return DeltaSet{}, err
	}

	cc := e.computeContext(window, mode)
	tasks := make([]async.Task[DeltaResult], len(sources))
	for i, source := range sources {
		source := source
		tasks[i] = async.Task[DeltaResult]{
			Name: source.Name(),
			Execute: func(ctx context.Context) (DeltaResult, error) {
				sample, err := e.computeSample(ctx, tenant, source, cc, db)
				if err != nil {
					return DeltaResult{}, err
				}
				return e.buildResult(source.Name(), cc, sample), nil
			},
		}
	}

	set := DeltaSet{Results: make(map[string]DeltaResult, len(tasks))}
	for name, result := range async.Run(ctx, e.workers, tasks) {
		if result.Err != nil {
			e.log.Error("metric computation failed",
				slog.String("tenant", tenant), slog.String("metric", name), slog.Any("error", result.Err))
			if set.Errors == nil {
				set.Errors = make(map[string]string)
			}
			set.Errors[name] = result.Err.Error()
			continue
		}
		set.Results[name] = result.Data
	}
	return set, nil
}

// GetCachedDailyMetrics serves the KPI snapshot for one finished or
// in-progress day, cache first. Concurrent misses for the same tenant and
// date share a single computation.
func (e *Engine) GetCachedDailyMetrics(ctx context.Context, tenant string, date timewindow.Date) (DailyMetrics, error) {
	if _, err := e.router.Resolve(tenant); err != nil {
		return DailyMetrics{}, err
	}
	return e.daily.GetOrCompute(ctx, dailyKey(tenant, date), func(ctx context.Context) (DailyMetrics, error) {
		return e.fetchDaily(ctx, tenant, date)
	})
}

// GetCachedDailyMetricsBatch resolves several dates with one multi-key
// cache lookup, computing only the dates found in neither tier. Results
// follow the input ordering.
func (e *Engine) GetCachedDailyMetricsBatch(ctx context.Context, tenant string, dates []timewindow.Date) ([]DailyMetrics, error) {
	if _, err := e.router.Resolve(tenant); err != nil {
		return nil, err
	}

	keys := make([]string, len(dates))
	for i, date := range dates {
		keys[i] = dailyKey(tenant, date)
	}

	cached := e.daily.BatchGet(ctx, keys)
	results := make([]DailyMetrics, len(dates))
	var tasks []async.Task[DailyMetrics]
	var taskIdx []int
	for i, hit := range cached {
		if hit != nil {
			results[i] = *hit
			continue
		}
		i := i
		date := dates[i]
		tasks = append(tasks, async.Task[DailyMetrics]{
			Name: strconv.Itoa(i),
			Execute: func(ctx context.Context) (DailyMetrics, error) {
				return e.daily.GetOrCompute(ctx, keys[i], func(ctx context.Context) (DailyMetrics, error) {
					return e.fetchDaily(ctx, tenant, date)
				})
			},
		})
		taskIdx = append(taskIdx, i)
	}
	if len(tasks) == 0 {
		return results, nil
	}

	fetched := async.Run(ctx, e.workers, tasks)
	for _, i := range taskIdx {
		result, ok := fetched[strconv.Itoa(i)]
		if !ok {
			return nil, ctx.Err()
		}
		if result.Err != nil {
			return nil, result.Err
		}
		results[i] = result.Data
	}
	return results, nil
}

// SetWorkerCount bounds the fan-out concurrency of GetDeltas.
func (e *Engine) SetWorkerCount(n int) {
	if n > 0 {
		e.workers = n
	}
}

// MetricNames lists the metrics the registry serves.
func (e *Engine) MetricNames() []string {
	return e.registry.Names()
}

// TenantTags lists the configured tenants.
func (e *Engine) TenantTags() []string {
	return e.router.Tags()
}

// computeSample runs one metric source, memoized through the sample cache
// for single-day windows. Multi-day windows and previous-range-average
// comparisons always hit the source directly.
func (e *Engine) computeSample(ctx context.Context, tenant string, source metrics.Source, cc metrics.ComputeContext, db *gorm.DB) (metrics.Sample, error) {
	if cc.Mode == metrics.CompareModePrevRangeAverage || !cc.Window.IsSingleDay() {
		return source.Compute(ctx, cc, db)
	}
	key := sampleKey(tenant, cc.Window.Start, source.Name(), cc.Mode)
	return e.samples.GetOrCompute(ctx, key, func(ctx context.Context) (metrics.Sample, error) {
		return source.Compute(ctx, cc, db)
	})
}

func (e *Engine) computeContext(window timewindow.Window, mode metrics.CompareMode) metrics.ComputeContext {
	return metrics.ComputeContext{
		Window:    window,
		Previous:  window.Previous(),
		Alignment: e.resolver.ResolveAlignment(window.End),
		Mode:      mode,
	}
}

func (e *Engine) buildResult(metric string, cc metrics.ComputeContext, sample metrics.Sample) DeltaResult {
	result := DeltaResult{
		Metric: metric,
		Range: WindowInfo{
			Start:         cc.Window.Start.String(),
			End:           cc.Window.End.String(),
			PreviousStart: cc.Previous.Start.String(),
			PreviousEnd:   cc.Previous.End.String(),
		},
		Current:      sample.Current,
		Previous:     sample.Previous,
		CurrentMeta:  sample.CurrentMeta,
		PreviousMeta: sample.PreviousMeta,
	}

	if metrics.IsRate(metric) {
		d := delta.ComputePercent(sample.Current, sample.Previous)
		result.Diff = d.Diff
		result.DiffPct = d.DiffPct
		result.Direction = string(d.Direction)
		pp := d.DiffPp
		result.DiffPp = &pp
	} else {
		d := delta.Compute(sample.Current, sample.Previous)
		result.Diff = d.Diff
		result.DiffPct = d.DiffPct
		result.Direction = string(d.Direction)
	}

	if cc.Mode == metrics.CompareModeHour && cc.Alignment.IsToday {
		result.Align = "hour"
		hour := cc.Alignment.TargetHour
		result.Hour = &hour
		result.CutoffTime = cc.Alignment.CutoffTime
	}
	return result
}

// fetchDaily reads one day's row of the per-day rollup and derives the
// ratio KPIs from it.
func (e *Engine) fetchDaily(ctx context.Context, tenant string, date timewindow.Date) (DailyMetrics, error) {
	db, err := e.router.Resolve(tenant)
	if err != nil {
		return DailyMetrics{}, err
	}

	var row struct {
		TotalOrders   float64
		TotalSales    float64
		TotalSessions float64
		AtcSessions   float64
	}
	err = db.WithContext(ctx).Raw(`
    SELECT
        COALESCE(SUM(total_orders), 0) AS total_orders,
        COALESCE(SUM(total_sales), 0) AS total_sales,
        COALESCE(SUM(total_sessions), 0) AS total_sessions,
        COALESCE(SUM(total_atc_sessions), 0) AS atc_sessions
    FROM overall_summary
    WHERE date = ?
    `, date.String()).Scan(&row).Error
	if err != nil {
		return DailyMetrics{}, fmt.Errorf("reading daily summary for tenant %s: %w", tenant, err)
	}

	return DailyMetrics{
		Date:          date.String(),
		TotalOrders:   row.TotalOrders,
		TotalSales:    metrics.RoundMoney(row.TotalSales),
		TotalSessions: row.TotalSessions,
		AtcSessions:   row.AtcSessions,
		Aov:           metrics.SafeRatio(row.TotalSales, row.TotalOrders, 2),
		Cvr:           metrics.SafeRatio(row.TotalOrders*100, row.TotalSessions, 2),
	}, nil
}

func dailyKey(tenant string, date timewindow.Date) string {
	return tenant + ":" + date.String()
}

func sampleKey(tenant string, date timewindow.Date, metric string, mode metrics.CompareMode) string {
	return tenant + ":" + date.String() + ":" + metric + ":" + string(mode)
}
