package model

import "time"

// DateLayout is the calendar date format used for payment dates and query parameters.
const DateLayout = "2006-01-02"

// AccountRef identifies a configured brokerage account by its configured name.
type AccountRef string

// DateRange is an inclusive range of calendar days. Both ends are UTC midnight.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range from two instants, truncated to calendar days.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: Day(from), To: Day(to)}
}

// LookbackRange returns the range covering the last days calendar days up to and including now.
func LookbackRange(now time.Time, days int) DateRange {
	end := Day(now)
	return DateRange{From: end.AddDate(0, 0, -days), To: end}
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Valid reports whether From is not after To.
func (r DateRange) Valid() bool {
	return !r.From.After(r.To)
}

// Contains reports whether the calendar day of t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// Overlaps reports whether the two ranges share at least one day.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.From.After(o.To) && !o.From.After(r.To)
}

// Months splits the range into calendar month chunks, clipped to the range, in ascending order.
func (r DateRange) Months() []DateRange {
	if !r.Valid() {
		return nil
	}

	var months []DateRange
	start := r.From
	for !start.After(r.To) {
		monthEnd := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		if monthEnd.After(r.To) {
			monthEnd = r.To
		}
		months = append(months, DateRange{From: start, To: monthEnd})
		start = monthEnd.AddDate(0, 0, 1)
	}
	return months
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}
