// Package delta turns current/previous metric values into period-over-period
// comparison results.
package delta

// Direction classifies the sign of a delta.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Deltas within this absolute band count as flat, so true-zero comparisons
// don't flap between up and down on float noise.
const flatEpsilon = 1e-4

// Result is the comparison of a metric value against its previous-period
// counterpart.
type Result struct {
	Diff      float64   `json:"diff"`
	DiffPct   float64   `json:"diff_pct"`
	Direction Direction `json:"direction"`
}

// PercentResult extends Result for metrics already expressed as percentages
// (e.g. conversion rate). DiffPp is the raw percentage-point difference;
// DiffPct remains the relative change. The two are not interchangeable.
type PercentResult struct {
	Result
	DiffPp float64 `json:"diff_pp"`
}

// Compute compares current against previous. When previous is zero the
// relative change is undefined; the result reports 100% if the metric went
// from nothing to something and 0% otherwise. That is a deliberate
// approximation, not a true percentage.
func Compute(current, previous float64) Result {
	diff := current - previous

	var pct float64
	switch {
	case previous > 0:
		pct = diff / previous * 100
	case current > 0:
		pct = 100
	}

	return Result{
		Diff:      diff,
		DiffPct:   pct,
		Direction: classify(diff),
	}
}

// ComputePercent compares two rate values already expressed as percentages,
// reporting the percentage-point difference alongside the relative change.
func ComputePercent(current, previous float64) PercentResult {
	return PercentResult{
		Result: Compute(current, previous),
		DiffPp: current - previous,
	}
}

func classify(diff float64) Direction {
	switch {
	case diff > flatEpsilon:
		return DirectionUp
	case diff < -flatEpsilon:
		return DirectionDown
	default:
		return DirectionFlat
	}
}
