package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextRecurrenceDate(t *testing.T) {
	cases := []struct {
		name     string
		from     string
		typ      string
		interval int
		want     string
	}{
		{name: "daily", from: "2024-03-13T17:00:00Z", typ: domain.RecurDaily, interval: 1, want: "2024-03-14T17:00:00Z"},
		{name: "every three days across a month", from: "2024-03-30T09:00:00Z", typ: domain.RecurDaily, interval: 3, want: "2024-04-02T09:00:00Z"},
		{name: "weekly", from: "2024-03-13T17:00:00Z", typ: domain.RecurWeekly, interval: 1, want: "2024-03-20T17:00:00Z"},
		{name: "biweekly", from: "2024-12-25T00:00:00Z", typ: domain.RecurWeekly, interval: 2, want: "2025-01-08T00:00:00Z"},
		{name: "monthly", from: "2024-03-13T17:00:00Z", typ: domain.RecurMonthly, interval: 1, want: "2024-04-13T17:00:00Z"},
		{name: "month end clamps in leap year", from: "2024-01-31T12:00:00Z", typ: domain.RecurMonthly, interval: 1, want: "2024-02-29T12:00:00Z"},
		{name: "month end clamps", from: "2023-01-31T12:00:00Z", typ: domain.RecurMonthly, interval: 1, want: "2023-02-28T12:00:00Z"},
		{name: "thirty-first into a thirty day month", from: "2024-03-31T08:00:00Z", typ: domain.RecurMonthly, interval: 3, want: "2024-06-30T08:00:00Z"},
		{name: "monthly across year", from: "2024-11-15T00:00:00Z", typ: domain.RecurMonthly, interval: 2, want: "2025-01-15T00:00:00Z"},
		{name: "yearly", from: "2024-03-13T17:00:00Z", typ: domain.RecurYearly, interval: 1, want: "2025-03-13T17:00:00Z"},
		{name: "leap day yearly", from: "2024-02-29T10:00:00Z", typ: domain.RecurYearly, interval: 1, want: "2025-02-28T10:00:00Z"},
		{name: "leap day every four years", from: "2024-02-29T10:00:00Z", typ: domain.RecurYearly, interval: 4, want: "2028-02-29T10:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRecurrenceDate(mustTime(tc.from), tc.typ, tc.interval)
			assert.Equal(t, tc.want, got.Format(time.RFC3339))
		})
	}
}

func TestShouldCreateNext(t *testing.T) {
	next := mustTime("2024-04-10T17:00:00Z")

	forever := domain.Recurrence{EndType: domain.RecurEndForever}
	assert.True(t, ShouldCreateNext(forever, 500, next))

	count := domain.Recurrence{EndType: domain.RecurEndCount, Count: 3}
	assert.True(t, ShouldCreateNext(count, 1, next))
	assert.True(t, ShouldCreateNext(count, 2, next))
	assert.False(t, ShouldCreateNext(count, 3, next))

	until := domain.Recurrence{EndType: domain.RecurEndDate, EndDate: strp("2024-04-10")}
	assert.True(t, ShouldCreateNext(until, 9, next), "the end date itself is included")
	assert.False(t, ShouldCreateNext(until, 1, mustTime("2024-04-11T00:00:00Z")))

	assert.False(t, ShouldCreateNext(domain.Recurrence{EndType: domain.RecurEndDate}, 1, next))
	assert.False(t, ShouldCreateNext(domain.Recurrence{EndType: "sometimes"}, 1, next))
}

func TestValidateRecurrence(t *testing.T) {
	ok := []domain.Recurrence{
		{Type: domain.RecurDaily, Interval: 1, EndType: domain.RecurEndForever},
		{Type: domain.RecurMonthly, Interval: 2, EndType: domain.RecurEndCount, Count: 4},
		{Type: domain.RecurYearly, Interval: 1, EndType: domain.RecurEndDate, EndDate: strp("2030-01-01")},
	}
	for _, r := range ok {
		require.NoError(t, ValidateRecurrence(r))
	}

	bad := map[string]domain.Recurrence{
		"recurrence_type": {Type: "hourly", Interval: 1, EndType: domain.RecurEndForever},
		"interval":        {Type: domain.RecurDaily, Interval: 0, EndType: domain.RecurEndForever},
		"count":           {Type: domain.RecurDaily, Interval: 1, EndType: domain.RecurEndCount},
		"end_date":        {Type: domain.RecurDaily, Interval: 1, EndType: domain.RecurEndDate},
		"end_type":        {Type: domain.RecurDaily, Interval: 1, EndType: "never"},
	}
	for field, r := range bad {
		ve, isValidation := AsValidation(ValidateRecurrence(r))
		require.True(t, isValidation, field)
		assert.Equal(t, CodeInvalidRecurrence, ve.Code)
		assert.Equal(t, field, ve.Field)
	}
}

func TestRecurrenceName(t *testing.T) {
	assert.Equal(t, "Every 2 week(s)", RecurrenceName(domain.RecurWeekly, 2))
	assert.Equal(t, "Every 1 month(s)", RecurrenceName(domain.RecurMonthly, 1))
	assert.Equal(t, "Custom recurrence", RecurrenceName("custom", 1))
}
