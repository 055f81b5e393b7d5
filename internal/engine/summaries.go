package engine

import (
	"context"
	"fmt"

	"taskline/internal/repo"
	"taskline/internal/tracking"
)

// WeeklySummary aggregates a user's time logs. Empty from defaults to this
// week's Monday; empty to defaults to from + 6 days.
func (e Engine) WeeklySummary(ctx context.Context, userID, from, to string) (tracking.WeeklySummary, error) {
	if userID == "" {
		return tracking.WeeklySummary{}, invalidInput("user_id is required")
	}
	from, to, err := tracking.ResolveRange(e.now(), from, to)
	if err != nil {
		return tracking.WeeklySummary{}, err
	}
	logs, err := e.Repo.ListTimeLogs(ctx, repo.TimeLogFilters{UserID: userID, DateFrom: from, DateTo: to})
	if err != nil {
		return tracking.WeeklySummary{}, err
	}
	// oldest first so details follow the order work started
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.TaskID)
	}
	titles, err := e.Repo.TaskTitles(ctx, dedupe(ids))
	if err != nil {
		return tracking.WeeklySummary{}, err
	}
	return tracking.Weekly(userID, from, to, logs, titles), nil
}

// TimeTrackingSummary reports planned against spent hours for a task.
func (e Engine) TimeTrackingSummary(ctx context.Context, taskID string) (tracking.TimeTrackingSummary, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return tracking.TimeTrackingSummary{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	// group in logging order
	for i, j := 0, len(t.TimeLogs)-1; i < j; i, j = i+1, j-1 {
		t.TimeLogs[i], t.TimeLogs[j] = t.TimeLogs[j], t.TimeLogs[i]
	}
	return tracking.Summarize(t), nil
}
