package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
)

var today = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func TestValidateDuration(t *testing.T) {
	cases := []struct {
		name     string
		hours    float64
		skip     bool
		code     string
		warnings int
	}{
		{name: "zero", hours: 0, code: CodeInvalidDuration},
		{name: "negative", hours: -1, code: CodeInvalidDuration},
		{name: "over a day", hours: 25, code: CodeDurationExceedsDay},
		{name: "exactly a day", hours: 24, warnings: 1},
		{name: "long", hours: 13, warnings: 1},
		{name: "long suppressed", hours: 13, skip: true},
		{name: "twelve is not long", hours: 12},
		{name: "normal", hours: 2.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := ValidateDuration(tc.hours, tc.skip)
			if tc.code != "" {
				ve, ok := AsValidation(err)
				require.True(t, ok, "expected validation error, got %v", err)
				assert.Equal(t, tc.code, ve.Code)
				return
			}
			require.NoError(t, err)
			assert.Len(t, w, tc.warnings)
			if tc.warnings > 0 {
				assert.Equal(t, WarnLongDuration, w[0].Code)
			}
		})
	}
}

func TestValidateEntryDate(t *testing.T) {
	withDeadline := &domain.Subtask{ID: "s1", TaskID: "t1", Deadline: strp("2024-03-20")}
	noDeadline := &domain.Subtask{ID: "s2", TaskID: "t1"}

	require.NoError(t, ValidateEntryDate("2024-03-13", nil, today))
	err := ValidateEntryDate("2024-03-14", nil, today)
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeFutureDateNotAllowed, ve.Code)

	// the subtask deadline replaces today as the ceiling
	require.NoError(t, ValidateEntryDate("2024-03-18", withDeadline, today))
	require.NoError(t, ValidateEntryDate("2024-03-20", withDeadline, today))
	err = ValidateEntryDate("2024-03-21", withDeadline, today)
	ve, ok = AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeDateAfterSubtaskDeadline, ve.Code)
	assert.Contains(t, ve.Message, "2024-03-20")

	err = ValidateEntryDate("2024-03-14", noDeadline, today)
	ve, ok = AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeFutureDateNotAllowed, ve.Code)

	err = ValidateEntryDate("13/03/2024", nil, today)
	ve, ok = AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidDate, ve.Code)
}

func TestValidateTimeLogSubtaskMismatch(t *testing.T) {
	other := &domain.Subtask{ID: "s9", TaskID: "t2"}
	entry := domain.TimeLog{TaskID: "t1", SubtaskID: strp("s9"), Duration: 1, Date: "2024-03-12"}
	_, err := ValidateTimeLog(entry, other, today, false)
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeSubtaskTaskMismatch, ve.Code)

	own := &domain.Subtask{ID: "s9", TaskID: "t1"}
	w, err := ValidateTimeLog(entry, own, today, false)
	require.NoError(t, err)
	assert.Empty(t, w)
}

func TestPreviewCollectsEverything(t *testing.T) {
	entry := domain.TimeLog{TaskID: "t1", Duration: 30, Date: "2024-04-01"}
	p := PreviewTimeLog(entry, nil, today)
	assert.False(t, p.OK())
	codes := []string{}
	for _, e := range p.Errors {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{CodeDurationExceedsDay, CodeFutureDateNotAllowed}, codes)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, WarnFutureDate, p.Warnings[0].Code)
	assert.Equal(t, "General work", p.Description)

	sub := &domain.Subtask{ID: "s1", TaskID: "t1", Name: "Draft"}
	p = PreviewTimeLog(domain.TimeLog{TaskID: "t1", SubtaskID: strp("s1"), Duration: 14, Date: "2024-03-10"}, sub, today)
	assert.True(t, p.OK())
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, WarnLongDuration, p.Warnings[0].Code)
	assert.Equal(t, "Worked on: Draft", p.Description)
}

func TestDurationFromRange(t *testing.T) {
	d, err := DurationFromRange(9, 11.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 1e-9)

	_, err = DurationFromRange(11, 9)
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidTimeRange, ve.Code)
}

func TestHoursDisplay(t *testing.T) {
	assert.Equal(t, "01:30", HoursDisplay(1.5))
	assert.Equal(t, "00:15", HoursDisplay(0.25))
	assert.Equal(t, "13:00", HoursDisplay(13))
	assert.Equal(t, "-02:00", HoursDisplay(-2))
}

func TestQuickTime(t *testing.T) {
	h, ok := QuickTime("1.5")
	require.True(t, ok)
	assert.Equal(t, 1.5, h)
	_, ok = QuickTime("5")
	assert.False(t, ok)
	assert.Equal(t, []string{"0.25", "0.5", "1", "1.5", "2", "3", "4", "8"}, QuickTimeKeys())
}

func TestValidateTaskDates(t *testing.T) {
	require.NoError(t, ValidateTaskDates(strp("2024-03-01T09:00:00Z"), strp("2024-03-01T09:00:00Z")))
	require.NoError(t, ValidateTaskDates(nil, strp("2024-03-01T09:00:00Z")))
	err := ValidateTaskDates(strp("2024-03-02T00:00:00Z"), strp("2024-03-01T00:00:00Z"))
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeDeadlineBeforeStart, ve.Code)
	assert.Len(t, PreviewTaskDates(strp("2024-03-02T00:00:00Z"), strp("2024-03-01T00:00:00Z")), 1)
}

func TestValidateSubtaskDeadline(t *testing.T) {
	start, end := strp("2024-03-01T10:00:00Z"), strp("2024-03-10T18:00:00Z")
	require.NoError(t, ValidateSubtaskDeadline(strp("2024-03-01"), start, end))
	require.NoError(t, ValidateSubtaskDeadline(strp("2024-03-10"), start, end))
	require.NoError(t, ValidateSubtaskDeadline(strp("2030-01-01"), nil, end))

	err := ValidateSubtaskDeadline(strp("2024-03-11"), start, end)
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeSubtaskDeadlineOutOfRange, ve.Code)
	assert.Contains(t, ve.Message, "2024-03-01 and 2024-03-10")
}
