package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownPeriod is returned when a period identifier is not recognised
var ErrUnknownPeriod = errors.New("unknown period")

// Period identifies a reporting window
type Period string

const (
	Weekly          Period = "weekly"
	Monthly         Period = "monthly"
	LastThreeMonths Period = "last-3-months"
	LastYear        Period = "last-year"
	AllTime         Period = "all-time"
	LastWeek        Period = "last-week"
	LastMonth       Period = "last-month"
)

// MinTime stands in for negative infinity as the start of all-time ranges.
var MinTime = time.Time{}

// All returns every period, most frequently requested first.
func All() []Period {
	return []Period{
		Weekly,
		Monthly,
		LastThreeMonths,
		LastYear,
		AllTime,
		LastWeek,
		LastMonth,
	}
}

// Parse converts a string into a Period
func Parse(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// String implements fmt.Stringer
func (p Period) String() string {
	return string(p)
}

// Previous returns the period a trend for p is compared against. Periods
// without a natural predecessor return themselves and false.
func (p Period) Previous() (Period, bool) {
	switch p {
	case Weekly:
		return LastWeek, true
	case Monthly:
		return LastMonth, true
	default:
		return p, false
	}
}

// Range is a half-open interval [Start, End)
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the length of the range
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// IsZero reports whether the range is empty
func (r Range) IsZero() bool {
	return !r.Start.Before(r.End)
}

// String implements fmt.Stringer
func (r Range) String() string {
	return r.Start.Format(time.RFC3339) + "/" + r.End.Format(time.RFC3339)
}

// Resolve maps a period and a reference instant to a date range.
func Resolve(p Period, ref time.Time) (Range, error) {
	var rng Range

	switch p {
	case Weekly:
		rng = Range{Start: StartOfWeek(ref), End: ref}
	case Monthly:
		rng = Range{Start: StartOfMonth(ref), End: ref}
	case LastThreeMonths:
		rng = Range{Start: ref.AddDate(0, -3, 0), End: ref}
	case LastYear:
		rng = Range{Start: ref.AddDate(-1, 0, 0), End: ref}
	case AllTime:
		rng = Range{Start: MinTime, End: ref}
	case LastWeek:
		end := StartOfWeek(ref)
		rng = Range{Start: end.AddDate(0, 0, -7), End: end}
	case LastMonth:
		end := StartOfMonth(ref)
		rng = Range{Start: end.AddDate(0, -1, 0), End: end}
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, string(p))
	}

	return clamp(rng), nil
}

// MustResolve is like Resolve but panics on an unknown period. Intended for
// constant periods in tests and initialisation code.
func MustResolve(p Period, ref time.Time) Range {
	rng, err := Resolve(p, ref)
	if err != nil {
		panic(err)
	}
	return rng
}

// StartOfWeek returns Monday 00:00 of the ISO week containing t, in t's location.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday == 0
	return day.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first instant of t's month, in t's location.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfDay returns midnight of t's day, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clamp keeps Start <= End for degenerate references near the representable edge.
func clamp(r Range) Range {
	if r.End.Before(r.Start) {
		r.Start = r.End
	}
	return r
}
