package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

// TimeLogView is an entry with its display fields.
type TimeLogView struct {
	domain.TimeLog
	TaskTitle    string `json:"task_title"`
	SubtaskName  string `json:"subtask_name,omitempty"`
	HoursDisplay string `json:"hours_display"`
	DisplayName  string `json:"display_name"`
	WorkSummary  string `json:"work_summary"`
}

func viewTimeLog(l domain.TimeLog, task domain.Task) TimeLogView {
	v := TimeLogView{TimeLog: l, TaskTitle: task.Title, HoursDisplay: tracking.HoursDisplay(l.Duration)}
	if l.SubtaskID != nil {
		for _, s := range task.Subtasks {
			if s.ID == *l.SubtaskID {
				v.SubtaskName = s.Name
				break
			}
		}
	}
	v.DisplayName = tracking.DisplayName(task.Title, v.SubtaskName, l.Description)
	v.WorkSummary = tracking.WorkSummary(task.Title, v.SubtaskName, l.Description, l.Duration)
	return v
}

// LogTimeOptions describe a time entry. Duration comes from TimeStart/TimeEnd
// when both are set, else QuickTime, else Duration.
type LogTimeOptions struct {
	TaskID      string
	SubtaskID   string
	UserID      string
	Date        string
	Duration    float64
	QuickTime   string
	TimeStart   *float64
	TimeEnd     *float64
	Description string
	// SkipDurationWarning suppresses the long-duration warning.
	SkipDurationWarning bool
	ActorID             string
}

type TimeLogResult struct {
	Entry    TimeLogView        `json:"entry"`
	Warnings []tracking.Warning `json:"warnings"`
}

func resolveDuration(duration float64, quick string, start, end *float64) (float64, error) {
	if start != nil && end != nil {
		return tracking.DurationFromRange(*start, *end)
	}
	if quick != "" {
		h, ok := tracking.QuickTime(quick)
		if !ok {
			return 0, tracking.NewValidationError(tracking.CodeInvalidDuration, "quick_time",
				fmt.Sprintf("unknown quick time %q, use one of %s", quick, strings.Join(tracking.QuickTimeKeys(), ", ")))
		}
		return h, nil
	}
	return duration, nil
}

func (e Engine) timeLogsAllowed(t domain.Task) error {
	if !e.settings().TimeLogsEnabled() || !t.AllowTimeLogs {
		return tracking.NewValidationError(tracking.CodeTimeLogsDisabled, "task_id", "time logging is disabled for this task")
	}
	return nil
}

func findSubtask(t domain.Task, id string) *domain.Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			s := t.Subtasks[i]
			return &s
		}
	}
	return nil
}

// lookupSubtask finds a subtask on t, or loads it from storage so an entry
// pointing at another task's subtask fails ownership instead of not-found.
func (e Engine) lookupSubtask(ctx context.Context, tx *sql.Tx, t domain.Task, id string) (*domain.Subtask, error) {
	if id == "" {
		return nil, nil
	}
	if s := findSubtask(t, id); s != nil {
		return s, nil
	}
	s, err := e.Repo.GetSubtask(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (e Engine) buildEntry(opts LogTimeOptions) (domain.TimeLog, error) {
	user := opts.UserID
	if user == "" {
		user = opts.ActorID
	}
	if user == "" {
		return domain.TimeLog{}, invalidInput("user_id is required")
	}
	date := opts.Date
	if strings.TrimSpace(date) == "" {
		date = tracking.FormatDate(e.now())
	}
	d, err := normalizeDate("date", date)
	if err != nil {
		return domain.TimeLog{}, err
	}
	stamp := e.stamp()
	return domain.TimeLog{
		ID:          newID(),
		TaskID:      opts.TaskID,
		SubtaskID:   optionalString(opts.SubtaskID),
		UserID:      user,
		Description: strings.TrimSpace(opts.Description),
		Date:        *d,
		TimeStart:   opts.TimeStart,
		TimeEnd:     opts.TimeEnd,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
	}, nil
}

func (e Engine) LogTime(ctx context.Context, opts LogTimeOptions) (TimeLogResult, error) {
	var res TimeLogResult
	entry, err := e.buildEntry(opts)
	if err != nil {
		return res, err
	}
	if entry.Duration, err = resolveDuration(opts.Duration, opts.QuickTime, opts.TimeStart, opts.TimeEnd); err != nil {
		return res, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	t, err := e.loadTaskForWrite(ctx, tx, opts.TaskID)
	if err != nil {
		return res, err
	}
	if err := e.timeLogsAllowed(t); err != nil {
		return res, err
	}
	subtask, err := e.lookupSubtask(ctx, tx, t, opts.SubtaskID)
	if err != nil {
		return res, err
	}
	warnings, err := tracking.ValidateTimeLog(entry, subtask, e.now(), opts.SkipDurationWarning)
	if err != nil {
		return res, err
	}
	if entry.Description == "" {
		name := ""
		if subtask != nil {
			name = subtask.Name
		}
		entry.Description = tracking.DefaultDescription(name)
	}
	if err := e.Repo.InsertTimeLog(ctx, tx, entry); err != nil {
		return res, fmt.Errorf("insert time log: %w", err)
	}
	t.TimeLogs = append(t.TimeLogs, entry)
	if err := e.commitTimeLogChange(ctx, tx, t, events.TimeLogged, entry, opts.ActorID); err != nil {
		return res, err
	}
	if warnings == nil {
		warnings = []tracking.Warning{}
	}
	return TimeLogResult{Entry: viewTimeLog(entry, t), Warnings: warnings}, nil
}

// PreviewTimeLog checks a draft entry without writing it.
func (e Engine) PreviewTimeLog(ctx context.Context, opts LogTimeOptions) (tracking.Preview, error) {
	entry, err := e.buildEntry(opts)
	if err != nil {
		return tracking.Preview{}, err
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return tracking.Preview{}, fmt.Errorf("task %s: %w", opts.TaskID, err)
	}
	var rangeErr error
	entry.Duration, rangeErr = resolveDuration(opts.Duration, opts.QuickTime, opts.TimeStart, opts.TimeEnd)
	subtask, err := e.lookupSubtask(ctx, nil, t, opts.SubtaskID)
	if err != nil {
		return tracking.Preview{}, err
	}
	p := tracking.PreviewTimeLog(entry, subtask, e.now())
	if ve, ok := tracking.AsValidation(rangeErr); ok {
		p.Errors = append([]tracking.ValidationError{*ve}, p.Errors...)
	}
	if ve, ok := tracking.AsValidation(e.timeLogsAllowed(t)); ok {
		p.Errors = append(p.Errors, *ve)
	}
	return p, nil
}

// TimeLogUpdateOptions leaves nil fields alone. An empty SubtaskID detaches the entry.
type TimeLogUpdateOptions struct {
	ID                  string
	SubtaskID           *string
	Date                *string
	Duration            *float64
	QuickTime           string
	TimeStart           *float64
	TimeEnd             *float64
	Description         *string
	SkipDurationWarning bool
	ActorID             string
}

func (e Engine) UpdateTimeLog(ctx context.Context, opts TimeLogUpdateOptions) (TimeLogResult, error) {
	var res TimeLogResult
	tx, err := e.begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetTimeLog(ctx, tx, opts.ID)
	if err != nil {
		return res, fmt.Errorf("time log %s: %w", opts.ID, err)
	}
	t, err := e.loadTaskForWrite(ctx, tx, entry.TaskID)
	if err != nil {
		return res, err
	}
	if opts.SubtaskID != nil {
		entry.SubtaskID = optionalString(*opts.SubtaskID)
	}
	if opts.Date != nil {
		d, err := normalizeDate("date", *opts.Date)
		if err != nil {
			return res, err
		}
		if d == nil {
			return res, invalidInput("date is required")
		}
		entry.Date = *d
	}
	if opts.TimeStart != nil || opts.TimeEnd != nil {
		if opts.TimeStart != nil {
			entry.TimeStart = opts.TimeStart
		}
		if opts.TimeEnd != nil {
			entry.TimeEnd = opts.TimeEnd
		}
		if entry.TimeStart == nil || entry.TimeEnd == nil {
			return res, tracking.NewValidationError(tracking.CodeInvalidTimeRange, "time_end", "both time_start and time_end are needed")
		}
		if entry.Duration, err = tracking.DurationFromRange(*entry.TimeStart, *entry.TimeEnd); err != nil {
			return res, err
		}
	} else if opts.QuickTime != "" || opts.Duration != nil {
		d := entry.Duration
		if opts.Duration != nil {
			d = *opts.Duration
		}
		if entry.Duration, err = resolveDuration(d, opts.QuickTime, nil, nil); err != nil {
			return res, err
		}
		entry.TimeStart, entry.TimeEnd = nil, nil
	}
	if opts.Description != nil {
		entry.Description = strings.TrimSpace(*opts.Description)
	}
	subtaskID := ""
	if entry.SubtaskID != nil {
		subtaskID = *entry.SubtaskID
	}
	subtask, err := e.lookupSubtask(ctx, tx, t, subtaskID)
	if err != nil {
		return res, err
	}
	warnings, err := tracking.ValidateTimeLog(entry, subtask, e.now(), opts.SkipDurationWarning)
	if err != nil {
		return res, err
	}
	entry.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTimeLog(ctx, tx, entry); err != nil {
		return res, err
	}
	for i := range t.TimeLogs {
		if t.TimeLogs[i].ID == entry.ID {
			t.TimeLogs[i] = entry
		}
	}
	if err := e.commitTimeLogChange(ctx, tx, t, events.TimeLogUpdated, entry, opts.ActorID); err != nil {
		return res, err
	}
	if warnings == nil {
		warnings = []tracking.Warning{}
	}
	return TimeLogResult{Entry: viewTimeLog(entry, t), Warnings: warnings}, nil
}

func (e Engine) DeleteTimeLog(ctx context.Context, id, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetTimeLog(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("time log %s: %w", id, err)
	}
	t, err := e.loadTaskForWrite(ctx, tx, entry.TaskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTimeLog(ctx, tx, id); err != nil {
		return err
	}
	kept := t.TimeLogs[:0]
	for _, l := range t.TimeLogs {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	t.TimeLogs = kept
	return e.commitTimeLogChange(ctx, tx, t, events.TimeLogDeleted, entry, actorID)
}

func (e Engine) commitTimeLogChange(ctx context.Context, tx *sql.Tx, t domain.Task, evt string, l domain.TimeLog, actorID string) error {
	tracking.Recompute(&t, e.now(), tracking.FieldTimeLogs)
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, evt, "timelog", l.ID, actorID, events.EventPayload{
		"task_id":         t.ID,
		"user_id":         l.UserID,
		"date":            l.Date,
		"duration":        l.Duration,
		"effective_hours": t.EffectiveHours,
		"remaining_hours": t.RemainingHours,
		"progress":        t.Progress,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Debug(evt, zap.String("task_id", t.ID), zap.String("timelog_id", l.ID),
		zap.Float64("effective_hours", t.EffectiveHours), zap.Float64("progress", t.Progress))
	return nil
}

// TimeLogFilter narrows ListTimeLogs.
type TimeLogFilter struct {
	TaskID   string
	UserID   string
	DateFrom string
	DateTo   string
}

// ListTimeLogs returns entries newest first with display fields.
func (e Engine) ListTimeLogs(ctx context.Context, f TimeLogFilter) ([]TimeLogView, error) {
	logs, err := e.Repo.ListTimeLogs(ctx, repo.TimeLogFilters{TaskID: f.TaskID, UserID: f.UserID, DateFrom: f.DateFrom, DateTo: f.DateTo})
	if err != nil {
		return nil, err
	}
	tasks := map[string]domain.Task{}
	out := make([]TimeLogView, 0, len(logs))
	for _, l := range logs {
		t, ok := tasks[l.TaskID]
		if !ok {
			t, err = e.Repo.GetTask(ctx, l.TaskID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}
			tasks[l.TaskID] = t
		}
		out = append(out, viewTimeLog(l, t))
	}
	return out, nil
}
