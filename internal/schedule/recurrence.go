// Package schedule turns obligations into dated occurrences and defines the
// single window policy that decides which occurrences are upcoming or overdue.
package schedule

import (
	"time"

	"github.com/Dan9191/finance-tracker/internal/models"
)

const (
	// MaxGeneratedDates caps a single generation run
	MaxGeneratedDates = 1000
	// maxFastForwardSteps bounds catching up from a start date far in the past
	maxFastForwardSteps = 100000
	// HorizonMonths bounds generation for obligations without an end date
	HorizonMonths = 12
)

// maxYear is the last year the calendar math is trusted with
const maxYear = 9999

// StartOfDay returns midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day, compared in a's location
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween counts calendar days from a to b (negative when b is earlier)
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonths moves from by n months landing on anchorDay, clamped to the month's last day
func addMonths(from time.Time, n, anchorDay int) (time.Time, bool) {
	first := time.Date(from.Year(), from.Month()+time.Month(n), 1, 0, 0, 0, 0, from.Location())
	if first.Year() > maxYear {
		return time.Time{}, false
	}
	day := anchorDay
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	h, m, s := from.Clock()
	return time.Date(first.Year(), first.Month(), day, h, m, s, from.Nanosecond(), from.Location()), true
}

// NextDate advances from by one period of freq. Monthly and quarterly steps aim at
// anchorDay, the day of month captured when the obligation was created, so a
// Jan 31 start yields Feb 28/29 and then Mar 31 again. A non-positive anchorDay
// falls back to from's own day. oneTime is terminal and returns false.
func NextDate(from time.Time, freq models.Frequency, anchorDay int) (time.Time, bool) {
	if anchorDay <= 0 {
		anchorDay = from.Day()
	}
	switch freq {
	case models.FrequencyWeekly:
		next := from.AddDate(0, 0, 7)
		if next.Year() > maxYear {
			return time.Time{}, false
		}
		return next, true
	case models.FrequencyMonthly:
		return addMonths(from, 1, anchorDay)
	case models.FrequencyQuarterly:
		return addMonths(from, 3, anchorDay)
	case models.FrequencyYearly:
		// Feb 29 lands on Feb 28 in common years.
		return addMonths(from, 12, from.Day())
	default:
		return time.Time{}, false
	}
}

// Dates lists occurrence dates for a recurring obligation, starting at the first
// date on or after today's calendar day and ending at end (inclusive) or, when
// end is nil, at the rolling horizon of HorizonMonths from today. Start dates in
// the past are fast-forwarded, never emitted. A oneTime obligation yields its
// start date only when that date is not in the past.
func Dates(start time.Time, freq models.Frequency, end *time.Time, today time.Time) []time.Time {
	todayStart := StartOfDay(today)

	// The rolling horizon bounds series only; a single date is emitted however far out.
	if freq == models.FrequencyOneTime {
		day := StartOfDay(start.In(todayStart.Location()))
		if day.Before(todayStart) || (end != nil && day.After(StartOfDay(end.In(todayStart.Location())))) {
			return nil
		}
		return []time.Time{start}
	}

	limit := todayStart.AddDate(0, HorizonMonths, 0)
	if end != nil {
		limit = StartOfDay(end.In(todayStart.Location()))
	}

	anchor := start.Day()
	current := start
	for steps := 0; StartOfDay(current.In(todayStart.Location())).Before(todayStart); steps++ {
		if steps >= maxFastForwardSteps {
			return nil
		}
		next, ok := NextDate(current, freq, anchor)
		if !ok {
			return nil
		}
		current = next
	}

	return collect(current, freq, anchor, limit, MaxGeneratedDates)
}

// DatesAfter lists dates of the series anchored at start that fall strictly after
// last, up to the rolling horizon from today. It backs horizon extension, where the
// existing rows must stay untouched.
func DatesAfter(start time.Time, freq models.Frequency, end *time.Time, last, today time.Time) []time.Time {
	if freq == models.FrequencyOneTime {
		return nil
	}
	todayStart := StartOfDay(today)
	loc := todayStart.Location()
	limit := todayStart.AddDate(0, HorizonMonths, 0)
	if end != nil && StartOfDay(end.In(loc)).Before(limit) {
		limit = StartOfDay(end.In(loc))
	}

	anchor := start.Day()
	current := start
	lastDay := StartOfDay(last.In(loc))
	for steps := 0; !StartOfDay(current.In(loc)).After(lastDay) || StartOfDay(current.In(loc)).Before(todayStart); steps++ {
		if steps >= maxFastForwardSteps {
			return nil
		}
		next, ok := NextDate(current, freq, anchor)
		if !ok {
			return nil
		}
		current = next
	}
	return collect(current, freq, anchor, limit, MaxGeneratedDates)
}

func collect(current time.Time, freq models.Frequency, anchor int, limit time.Time, max int) []time.Time {
	var dates []time.Time
	for len(dates) < max && !StartOfDay(current.In(limit.Location())).After(limit) {
		if n := len(dates); n == 0 || !SameDay(dates[n-1], current) {
			dates = append(dates, current)
		}
		next, ok := NextDate(current, freq, anchor)
		if !ok {
			break
		}
		current = next
	}
	return dates
}
