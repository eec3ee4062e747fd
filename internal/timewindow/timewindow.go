// Package timewindow resolves calendar date windows against the business
// clock: whether a window reaches into the current, partially elapsed day,
// and the equivalent preceding window for period-over-period comparison.
package timewindow

import (
	"fmt"
	"time"
)

// FullDayCutoff marks a window whose end date is entirely in the past:
// the whole day counts.
const FullDayCutoff = "24:00:00"

const dateLayout = "2006-01-02"

// Date is a calendar date in the business timezone, without a time of day.
type Date struct {
	t time.Time
}

// ParseDate parses a "YYYY-MM-DD" string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// DateOf truncates a wall-clock time to its calendar date.
func DateOf(t time.Time) Date {
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.t.Format(dateLayout)
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// DaysUntil returns the number of days from d to other (exclusive of d,
// inclusive counting: DaysUntil(same day) == 0).
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// Window is an inclusive range of calendar dates. A single-day window has
// Start == End.
type Window struct {
	Start Date
	End   Date
}

// InvalidWindowError reports a window rejected before any computation.
type InvalidWindowError struct {
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window: %s", e.Reason)
}

// NewWindow builds a Window, rejecting inverted ranges.
func NewWindow(start, end Date) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, &InvalidWindowError{Reason: "start and end dates are required"}
	}
	if end.Before(start) {
		return Window{}, &InvalidWindowError{Reason: fmt.Sprintf("start %s is after end %s", start, end)}
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindow parses "YYYY-MM-DD" start/end strings into a validated Window.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Window{}, &InvalidWindowError{Reason: err.Error()}
	}
	e, err := ParseDate(end)
	if err != nil {
		return Window{}, &InvalidWindowError{Reason: err.Error()}
	}
	return NewWindow(s, e)
}

// Days returns the inclusive day count of the window.
func (w Window) Days() int {
	return w.Start.DaysUntil(w.End) + 1
}

// IsSingleDay reports whether the window covers exactly one date.
func (w Window) IsSingleDay() bool {
	return w.Start.Equal(w.End)
}

// Previous returns the window immediately preceding w with the same
// inclusive day count: it ends the day before w.Start.
func (w Window) Previous() Window {
	end := w.Start.AddDays(-1)
	return Window{Start: end.AddDays(-(w.Days() - 1)), End: end}
}

// Alignment carries the cutoff parameters computed once per request and
// applied identically to the current and previous sides of a comparison.
// Recomputing it per metric would let the two sides drift within a request.
type Alignment struct {
	TargetHour int
	CutoffTime string
	IsToday    bool
}

// Clock abstracts the system clock so alignment is testable at a fixed
// instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real system clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Resolver computes alignment contexts for a fixed business-timezone UTC
// offset. The business timezone is a constant offset (e.g. +330 minutes);
// no timezone database is consulted.
type Resolver struct {
	offset time.Duration
	clock  Clock
}

// NewResolver builds a Resolver for the given UTC offset in minutes.
// A nil clock falls back to the system clock.
func NewResolver(offsetMinutes int, clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Resolver{
		offset: time.Duration(offsetMinutes) * time.Minute,
		clock:  clock,
	}
}

// BusinessNow returns the current wall-clock time in the business timezone.
func (r *Resolver) BusinessNow() time.Time {
	return r.clock.Now().UTC().Add(r.offset)
}

// Today returns the current calendar date in the business timezone.
func (r *Resolver) Today() Date {
	return DateOf(r.BusinessNow())
}

// ResolveAlignment determines how far into the day a window ending on
// rangeEnd has elapsed. A window ending today is cut off at the current
// second-of-day so the comparison side can be truncated to the same
// elapsed fraction. Any other end date, past or future, counts in full.
func (r *Resolver) ResolveAlignment(rangeEnd Date) Alignment {
	now := r.BusinessNow()
	if !rangeEnd.Equal(DateOf(now)) {
		return Alignment{TargetHour: 23, CutoffTime: FullDayCutoff, IsToday: false}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := int(now.Sub(midnight).Seconds())
	if elapsed >= 86400 {
		// Midnight rolled over mid-computation.
		return Alignment{TargetHour: 23, CutoffTime: FullDayCutoff, IsToday: true}
	}

	return Alignment{
		TargetHour: elapsed / 3600,
		CutoffTime: fmt.Sprintf("%02d:%02d:%02d", elapsed/3600, (elapsed%3600)/60, elapsed%60),
		IsToday:    true,
	}
}
