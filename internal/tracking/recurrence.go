package tracking

import (
	"fmt"
	"time"

	"taskline/internal/domain"
)

// RecurrenceName labels a rule the way the task list shows it.
func RecurrenceName(typ string, interval int) string {
	unit := map[string]string{
		domain.RecurDaily:   "day",
		domain.RecurWeekly:  "week",
		domain.RecurMonthly: "month",
		domain.RecurYearly:  "year",
	}[typ]
	if unit == "" {
		return "Custom recurrence"
	}
	return fmt.Sprintf("Every %d %s(s)", interval, unit)
}

// ValidateRecurrence checks a rule before it is stored.
func ValidateRecurrence(r domain.Recurrence) error {
	switch r.Type {
	case domain.RecurDaily, domain.RecurWeekly, domain.RecurMonthly, domain.RecurYearly:
	default:
		return invalid(CodeInvalidRecurrence, "recurrence_type", "recurrence_type must be daily, weekly, monthly or yearly, got %q", r.Type)
	}
	if r.Interval < 1 {
		return invalid(CodeInvalidRecurrence, "interval", "interval must be at least 1")
	}
	switch r.EndType {
	case domain.RecurEndForever:
	case domain.RecurEndCount:
		if r.Count < 1 {
			return invalid(CodeInvalidRecurrence, "count", "count must be at least 1")
		}
	case domain.RecurEndDate:
		if r.EndDate == nil {
			return invalid(CodeInvalidRecurrence, "end_date", "end_date is required when end_type is end_date")
		}
		if _, err := ParseDate(*r.EndDate); err != nil {
			return invalid(CodeInvalidRecurrence, "end_date", "invalid end_date %q, expected YYYY-MM-DD", *r.EndDate)
		}
	default:
		return invalid(CodeInvalidRecurrence, "end_type", "end_type must be count, end_date or forever, got %q", r.EndType)
	}
	return nil
}

// NextRecurrenceDate advances from by one interval of typ. Month and year
// steps clamp to the last day of a shorter target month, so Jan 31 + 1 month
// is Feb 28 (or 29), never March. The time of day is kept.
func NextRecurrenceDate(from time.Time, typ string, interval int) time.Time {
	switch typ {
	case domain.RecurDaily:
		return from.AddDate(0, 0, interval)
	case domain.RecurWeekly:
		return from.AddDate(0, 0, 7*interval)
	case domain.RecurMonthly:
		return addMonthsClamped(from, interval)
	case domain.RecurYearly:
		return addMonthsClamped(from, 12*interval)
	}
	return from
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// ShouldCreateNext applies the end condition. taskCount counts every task in
// the series, the first one included; next is the date the new task would get.
func ShouldCreateNext(r domain.Recurrence, taskCount int, next time.Time) bool {
	switch r.EndType {
	case domain.RecurEndForever:
		return true
	case domain.RecurEndCount:
		return taskCount < r.Count
	case domain.RecurEndDate:
		if r.EndDate == nil {
			return false
		}
		end, err := ParseDate(*r.EndDate)
		if err != nil {
			return false
		}
		return !DateOf(next).After(end)
	}
	return false
}
