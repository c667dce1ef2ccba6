package core

import "time"

// NextOccurrence computes when a recurring template fires next, counted
// from the moment of processing rather than the missed due date, so a
// long-paused schedule resumes from now instead of replaying a backlog.
//
// MONTHLY and YEARLY clamp to the last valid day when the target month is
// shorter (Jan 31 + 1 month = Feb 28/29).
func NextOccurrence(now time.Time, interval RecurringInterval) time.Time {
	switch interval {
	case Daily:
		return now.AddDate(0, 0, 1)
	case Weekly:
		return now.AddDate(0, 0, 7)
	case Monthly:
		return addMonthsClamped(now, 1)
	case Yearly:
		return addMonthsClamped(now, 12)
	}
	return now
}

// addMonthsClamped adds whole months without the day-overflow normalization
// of AddDate (which would turn Jan 31 + 1 month into Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SameMonth reports whether two instants fall in the same calendar month.
// The budget evaluator uses this to send at most one alert per month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// MonthBounds returns the first instant of now's calendar month and the
// first instant of the next one (half-open interval).
func MonthBounds(now time.Time) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}
