package tracking

import (
	"fmt"
	"time"

	"taskline/internal/domain"
)

// OtherWorkLabel groups entries that reference no subtask.
const OtherWorkLabel = "Other Work"

// EffectiveHours sums the durations of logs.
func EffectiveHours(logs []domain.TimeLog) float64 {
	total := 0.0
	for _, l := range logs {
		total += l.Duration
	}
	return total
}

// RemainingHours may go negative when the task is over budget.
func RemainingHours(planned, effective float64) float64 {
	return planned - effective
}

func IsOverBudget(planned, effective float64) bool {
	return planned > 0 && effective > planned
}

type EntryLine struct {
	Date   string  `json:"date"`
	UserID string  `json:"user"`
	Hours  float64 `json:"hours"`
}

type SubtaskGroup struct {
	SubtaskID  string      `json:"subtask_id,omitempty"`
	Name       string      `json:"name"`
	TotalHours float64     `json:"total_hours"`
	Entries    []EntryLine `json:"entries"`
}

// GroupBySubtask buckets logs by subtask in order of first appearance.
func GroupBySubtask(logs []domain.TimeLog, subtasks []domain.Subtask) []SubtaskGroup {
	names := make(map[string]string, len(subtasks))
	for _, s := range subtasks {
		names[s.ID] = s.Name
	}
	index := map[string]int{}
	groups := []SubtaskGroup{}
	for _, l := range logs {
		key := ""
		if l.SubtaskID != nil {
			key = *l.SubtaskID
		}
		i, ok := index[key]
		if !ok {
			name := OtherWorkLabel
			if key != "" {
				name = names[key]
				if name == "" {
					name = key
				}
			}
			groups = append(groups, SubtaskGroup{SubtaskID: key, Name: name, Entries: []EntryLine{}})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].TotalHours += l.Duration
		groups[i].Entries = append(groups[i].Entries, EntryLine{Date: l.Date, UserID: l.UserID, Hours: l.Duration})
	}
	return groups
}

type TimeTrackingSummary struct {
	TotalPlanned    float64        `json:"total_planned"`
	TotalSpent      float64        `json:"total_spent"`
	Remaining       float64        `json:"remaining"`
	ProgressPercent float64        `json:"progress_percent"`
	BySubtask       []SubtaskGroup `json:"by_subtask"`
	IsOverBudget    bool           `json:"is_over_budget"`
}

// Summarize reports time tracking for a loaded task.
func Summarize(t domain.Task) TimeTrackingSummary {
	spent := EffectiveHours(t.TimeLogs)
	return TimeTrackingSummary{
		TotalPlanned:    t.PlannedHours,
		TotalSpent:      spent,
		Remaining:       RemainingHours(t.PlannedHours, spent),
		ProgressPercent: t.Progress,
		BySubtask:       GroupBySubtask(t.TimeLogs, t.Subtasks),
		IsOverBudget:    IsOverBudget(t.PlannedHours, spent),
	}
}

// WeekBounds returns Monday and Sunday of the week containing day.
func WeekBounds(day time.Time) (time.Time, time.Time) {
	d := DateOf(day)
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// ResolveRange fills a missing from with this week's Monday and a missing to with from + 6 days.
func ResolveRange(today time.Time, from, to string) (string, string, error) {
	var start time.Time
	if from == "" {
		start, _ = WeekBounds(today)
	} else {
		d, err := ParseDate(from)
		if err != nil {
			return "", "", err
		}
		start = d
	}
	var end time.Time
	if to == "" {
		end = start.AddDate(0, 0, 6)
	} else {
		d, err := ParseDate(to)
		if err != nil {
			return "", "", err
		}
		end = d
	}
	if end.Before(start) {
		return "", "", invalid(CodeInvalidDate, "date_to", "date_to %s is before date_from %s", FormatDate(end), FormatDate(start))
	}
	return FormatDate(start), FormatDate(end), nil
}

type TaskHours struct {
	TaskID  string  `json:"task_id"`
	Task    string  `json:"task"`
	Hours   float64 `json:"hours"`
	Entries int     `json:"entries"`
}

type WeeklySummary struct {
	UserID      string      `json:"user_id"`
	DateFrom    string      `json:"date_from"`
	DateTo      string      `json:"date_to"`
	TotalHours  float64     `json:"total_hours"`
	DaysWorked  int         `json:"days_worked"`
	TasksWorked int         `json:"tasks_worked"`
	Details     []TaskHours `json:"details"`
}

// Weekly aggregates a user's logs within [from, to]. Dates are YYYY-MM-DD so
// lexical comparison matches calendar order.
func Weekly(userID, from, to string, logs []domain.TimeLog, titles map[string]string) WeeklySummary {
	out := WeeklySummary{UserID: userID, DateFrom: from, DateTo: to, Details: []TaskHours{}}
	days := map[string]struct{}{}
	index := map[string]int{}
	for _, l := range logs {
		if l.UserID != userID || l.Date < from || l.Date > to {
			continue
		}
		out.TotalHours += l.Duration
		days[l.Date] = struct{}{}
		i, ok := index[l.TaskID]
		if !ok {
			title := titles[l.TaskID]
			if title == "" {
				title = l.TaskID
			}
			out.Details = append(out.Details, TaskHours{TaskID: l.TaskID, Task: title})
			i = len(out.Details) - 1
			index[l.TaskID] = i
		}
		out.Details[i].Hours += l.Duration
		out.Details[i].Entries++
	}
	out.DaysWorked = len(days)
	out.TasksWorked = len(out.Details)
	return out
}

// DisplayName labels an entry as "[task] subtask" or "[task] description".
func DisplayName(taskTitle string, subtaskName string, description string) string {
	label := description
	if subtaskName != "" {
		label = subtaskName
	}
	return fmt.Sprintf("[%s] %s", taskTitle, label)
}

// WorkSummary is the one-line description of an entry.
func WorkSummary(taskTitle, subtaskName, description string, hours float64) string {
	s := "Task: " + taskTitle
	if subtaskName != "" {
		s += " | Subtask: " + subtaskName
	}
	if description != "" {
		s += " | Work: " + description
	}
	return s + " | Time: " + HoursDisplay(hours)
}

// DaysToDeadline counts calendar days from today to the deadline; 0 when unset.
func DaysToDeadline(deadline *string, today time.Time) int {
	if deadline == nil || *deadline == "" {
		return 0
	}
	d, err := ParseDateTime(*deadline)
	if err != nil {
		return 0
	}
	return int(DateOf(d).Sub(DateOf(today)).Hours() / 24)
}
