package tracking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"taskline/internal/domain"
)

const (
	// MaxDurationHours is the ceiling for a single entry.
	MaxDurationHours = 24.0
	// LongDurationHours triggers the LongDuration warning when exceeded.
	LongDurationHours = 12.0

	DateLayout = "2006-01-02"

	defaultWorkDescription = "General work"
)

var quickTimes = map[string]float64{
	"0.25": 0.25,
	"0.5":  0.5,
	"1":    1,
	"1.5":  1.5,
	"2":    2,
	"3":    3,
	"4":    4,
	"8":    8,
}

// QuickTime resolves a preset key such as "1.5" to hours.
func QuickTime(key string) (float64, bool) {
	v, ok := quickTimes[strings.TrimSpace(key)]
	return v, ok
}

// QuickTimeKeys lists the preset keys in ascending order.
func QuickTimeKeys() []string {
	keys := make([]string, 0, len(quickTimes))
	for k := range quickTimes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return quickTimes[keys[i]] < quickTimes[keys[j]] })
	return keys
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid(CodeInvalidDate, "date", "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseDateTime parses an RFC3339 timestamp, accepting a bare date as midnight UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid(CodeInvalidDate, "date", "invalid timestamp %q, expected RFC3339", s)
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidateDuration checks the hour bounds of an entry.
func ValidateDuration(hours float64, skipWarning bool) ([]Warning, error) {
	if math.IsNaN(hours) || hours <= 0 {
		return nil, invalid(CodeInvalidDuration, "duration", "duration must be greater than zero")
	}
	if hours > MaxDurationHours {
		return nil, invalid(CodeDurationExceedsDay, "duration", "duration cannot exceed %g hours per entry", MaxDurationHours)
	}
	if hours > LongDurationHours && !skipWarning {
		return []Warning{longDuration(hours)}, nil
	}
	return nil, nil
}

func longDuration(hours float64) Warning {
	return Warning{
		Code:    WarnLongDuration,
		Title:   "Long duration",
		Message: fmt.Sprintf("%s logged in a single entry. Please double-check.", HoursDisplay(hours)),
	}
}

// ValidateEntryDate checks the date ceiling: the subtask deadline when it has one, else today.
func ValidateEntryDate(date string, subtask *domain.Subtask, today time.Time) error {
	d, err := ParseDate(date)
	if err != nil {
		return err
	}
	if subtask != nil && subtask.Deadline != nil && *subtask.Deadline != "" {
		deadline, err := ParseDate(*subtask.Deadline)
		if err != nil {
			return err
		}
		if d.After(deadline) {
			return invalid(CodeDateAfterSubtaskDeadline, "date",
				"cannot log time after the subtask deadline (%s)", FormatDate(deadline))
		}
		return nil
	}
	if d.After(DateOf(today)) {
		return invalid(CodeFutureDateNotAllowed, "date", "cannot log time for future dates")
	}
	return nil
}

// ValidateSubtaskOwnership requires the referenced subtask to belong to the entry's task.
func ValidateSubtaskOwnership(entry domain.TimeLog, subtask *domain.Subtask) error {
	if entry.SubtaskID == nil || *entry.SubtaskID == "" {
		return nil
	}
	if subtask == nil || subtask.ID != *entry.SubtaskID || subtask.TaskID != entry.TaskID {
		return invalid(CodeSubtaskTaskMismatch, "subtask_id", "subtask must belong to the selected task")
	}
	return nil
}

// ValidateTimeLog runs every commit-time check for an entry. The first failure wins.
func ValidateTimeLog(entry domain.TimeLog, subtask *domain.Subtask, today time.Time, skipDurationWarning bool) ([]Warning, error) {
	if err := ValidateSubtaskOwnership(entry, subtask); err != nil {
		return nil, err
	}
	warnings, err := ValidateDuration(entry.Duration, skipDurationWarning)
	if err != nil {
		return nil, err
	}
	if err := ValidateEntryDate(entry.Date, subtask, today); err != nil {
		return nil, err
	}
	return warnings, nil
}

// Preview is the non-committing result of checking a draft.
type Preview struct {
	Warnings []Warning         `json:"warnings"`
	Errors   []ValidationError `json:"errors"`
	// Duration is the resolved duration, after time ranges and quick presets.
	Duration float64 `json:"duration"`
	// Description is the description the entry would get on create.
	Description string `json:"description"`
}

// OK reports whether committing the draft would succeed.
func (p Preview) OK() bool {
	return len(p.Errors) == 0
}

// PreviewTimeLog evaluates a draft entry without stopping at the first problem.
func PreviewTimeLog(entry domain.TimeLog, subtask *domain.Subtask, today time.Time) Preview {
	p := Preview{Warnings: []Warning{}, Errors: []ValidationError{}, Duration: entry.Duration}
	collect := func(err error) {
		if ve, ok := AsValidation(err); ok {
			p.Errors = append(p.Errors, *ve)
		}
	}
	collect(ValidateSubtaskOwnership(entry, subtask))
	w, err := ValidateDuration(entry.Duration, false)
	collect(err)
	p.Warnings = append(p.Warnings, w...)
	if err := ValidateEntryDate(entry.Date, subtask, today); err != nil {
		collect(err)
		if ve, ok := AsValidation(err); ok {
			switch ve.Code {
			case CodeFutureDateNotAllowed:
				p.Warnings = append(p.Warnings, Warning{
					Code: WarnFutureDate, Title: "Future date", Message: "You cannot log time for future dates.",
				})
			case CodeDateAfterSubtaskDeadline:
				p.Warnings = append(p.Warnings, Warning{
					Code: WarnAfterSubtaskDeadline, Title: "Date after subtask deadline", Message: ve.Message,
				})
			}
		}
	}
	desc := strings.TrimSpace(entry.Description)
	if desc == "" {
		name := ""
		if subtask != nil {
			name = subtask.Name
		}
		desc = DefaultDescription(name)
	}
	p.Description = desc
	return p
}

// DefaultDescription is used on create when the caller gave none.
func DefaultDescription(subtaskName string) string {
	if strings.TrimSpace(subtaskName) != "" {
		return "Worked on: " + subtaskName
	}
	return defaultWorkDescription
}

// DurationFromRange derives a duration from decimal start/end hours.
func DurationFromRange(start, end float64) (float64, error) {
	if start < 0 || end > 24 || end < 0 || start > 24 {
		return 0, invalid(CodeInvalidTimeRange, "time_start", "time range must fall within a single day")
	}
	if end < start {
		return 0, invalid(CodeInvalidTimeRange, "time_end", "end time must be after start time")
	}
	return end - start, nil
}

// HoursDisplay renders decimal hours as HH:MM.
func HoursDisplay(hours float64) string {
	neg := hours < 0
	total := int(math.Round(math.Abs(hours) * 60))
	s := fmt.Sprintf("%02d:%02d", total/60, total%60)
	if neg {
		return "-" + s
	}
	return s
}

// ValidateTaskDates requires the deadline to be on or after the start.
func ValidateTaskDates(start, deadline *string) error {
	if start == nil || deadline == nil || *start == "" || *deadline == "" {
		return nil
	}
	s, err := ParseDateTime(*start)
	if err != nil {
		return err
	}
	d, err := ParseDateTime(*deadline)
	if err != nil {
		return err
	}
	if d.Before(s) {
		return invalid(CodeDeadlineBeforeStart, "date_deadline", "deadline cannot be before start date")
	}
	return nil
}

// ValidateSubtaskDeadline requires the deadline date to sit inside the parent's date range.
func ValidateSubtaskDeadline(deadline *string, parentStart, parentDeadline *string) error {
	if deadline == nil || *deadline == "" {
		return nil
	}
	d, err := ParseDate(*deadline)
	if err != nil {
		return err
	}
	if parentStart == nil || parentDeadline == nil || *parentStart == "" || *parentDeadline == "" {
		return nil
	}
	s, err := ParseDateTime(*parentStart)
	if err != nil {
		return err
	}
	e, err := ParseDateTime(*parentDeadline)
	if err != nil {
		return err
	}
	from, to := DateOf(s), DateOf(e)
	if d.Before(from) || d.After(to) {
		return invalid(CodeSubtaskDeadlineOutOfRange, "deadline",
			"subtask deadline must be between %s and %s", FormatDate(from), FormatDate(to))
	}
	return nil
}

// PreviewTaskDates turns a date-range error into a warning.
func PreviewTaskDates(start, deadline *string) []Warning {
	if err := ValidateTaskDates(start, deadline); err != nil {
		return []Warning{{Code: WarnInvalidDateRange, Title: "Invalid date range", Message: err.Error()}}
	}
	return []Warning{}
}

// PreviewSubtaskDeadline turns a subtask deadline error into a warning.
func PreviewSubtaskDeadline(deadline *string, parentStart, parentDeadline *string) []Warning {
	if err := ValidateSubtaskDeadline(deadline, parentStart, parentDeadline); err != nil {
		return []Warning{{Code: WarnInvalidDeadline, Title: "Invalid deadline", Message: err.Error()}}
	}
	return []Warning{}
}
