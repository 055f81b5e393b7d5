package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

// RecurrenceOptions describe a rule. Zero values default to weekly, every 1,
// forever.
type RecurrenceOptions struct {
	TaskID   string
	Type     string
	Interval int
	EndType  string
	Count    int
	EndDate  string
	ActorID  string
}

// SetRecurrence makes a task repeat. A task already in a series updates the
// series rule; otherwise a new series starts with the task as its first member.
func (e Engine) SetRecurrence(ctx context.Context, opts RecurrenceOptions) (domain.Recurrence, error) {
	rec := domain.Recurrence{
		Type:     opts.Type,
		Interval: opts.Interval,
		EndType:  opts.EndType,
		Count:    opts.Count,
	}
	if rec.Type == "" {
		rec.Type = domain.RecurWeekly
	}
	if rec.Interval == 0 {
		rec.Interval = 1
	}
	if rec.EndType == "" {
		rec.EndType = domain.RecurEndForever
	}
	if opts.EndDate != "" {
		end, err := normalizeDate("end_date", opts.EndDate)
		if err != nil {
			return rec, err
		}
		rec.EndDate = end
	}
	if err := tracking.ValidateRecurrence(rec); err != nil {
		return rec, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID); err != nil {
		return rec, fmt.Errorf("task %s: %w", opts.TaskID, err)
	}
	existing, err := e.Repo.RecurrenceIDForTask(ctx, tx, opts.TaskID)
	switch {
	case err == nil:
		rec.ID = existing
		if err := e.Repo.UpdateRecurrence(ctx, tx, rec); err != nil {
			return rec, err
		}
	case errors.Is(err, repo.ErrNotFound):
		rec.ID = newID()
		rec.CreatedBy = opts.ActorID
		rec.CreatedAt = e.stamp()
		if err := e.Repo.InsertRecurrence(ctx, tx, rec); err != nil {
			return rec, fmt.Errorf("insert recurrence: %w", err)
		}
		if err := e.Repo.LinkRecurrenceTask(ctx, tx, rec.ID, opts.TaskID); err != nil {
			return rec, err
		}
	default:
		return rec, err
	}
	if err := e.appendEvent(ctx, tx, events.RecurrenceSet, "task", opts.TaskID, opts.ActorID, events.EventPayload{
		"recurrence_id": rec.ID, "recurrence_type": rec.Type, "interval": rec.Interval, "end_type": rec.EndType,
	}); err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	e.log().Info("recurrence set", zap.String("recurrence_id", rec.ID), zap.String("task_id", opts.TaskID))
	return e.GetRecurrence(ctx, rec.ID)
}

// GetRecurrence loads a rule with its label and next date. The next date
// follows the latest task deadline; a series without deadlines reads today.
func (e Engine) GetRecurrence(ctx context.Context, id string) (domain.Recurrence, error) {
	rec, err := e.Repo.GetRecurrence(ctx, nil, id)
	if err != nil {
		return rec, err
	}
	if rec.TaskIDs == nil {
		rec.TaskIDs = []string{}
	}
	rec.Name = tracking.RecurrenceName(rec.Type, rec.Interval)
	next, _, err := e.nextOccurrence(ctx, rec)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return rec, err
	}
	if errors.Is(err, repo.ErrNotFound) {
		next = tracking.DateOf(e.now())
	}
	rec.NextDate = tracking.FormatDate(next)
	return rec, nil
}

// RecurrenceForTask returns the series a task belongs to.
func (e Engine) RecurrenceForTask(ctx context.Context, taskID string) (domain.Recurrence, error) {
	id, err := e.Repo.RecurrenceIDForTask(ctx, nil, taskID)
	if err != nil {
		return domain.Recurrence{}, fmt.Errorf("recurrence of task %s: %w", taskID, err)
	}
	return e.GetRecurrence(ctx, id)
}

func (e Engine) ListRecurrences(ctx context.Context) ([]domain.Recurrence, error) {
	ids, err := e.Repo.ListRecurrenceIDs(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]domain.Recurrence, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetRecurrence(ctx, id)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// StopRecurrence deletes a rule. Tasks already created stay.
func (e Engine) StopRecurrence(ctx context.Context, id, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteRecurrence(ctx, tx, id); err != nil {
		return fmt.Errorf("recurrence %s: %w", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.RecurrenceEnded, "recurrence", id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("recurrence stopped", zap.String("recurrence_id", id))
	return nil
}

// nextOccurrence finds the series task with the latest deadline and the
// deadline the next task would get.
func (e Engine) nextOccurrence(ctx context.Context, rec domain.Recurrence) (time.Time, domain.Task, error) {
	latestID, err := e.Repo.LatestRecurrenceTask(ctx, nil, rec.ID)
	if err != nil {
		return time.Time{}, domain.Task{}, err
	}
	latest, err := e.Repo.GetTask(ctx, latestID)
	if err != nil {
		return time.Time{}, latest, err
	}
	deadline, err := tracking.ParseDateTime(*latest.DateDeadline)
	if err != nil {
		return time.Time{}, latest, err
	}
	return tracking.NextRecurrenceDate(deadline.UTC(), rec.Type, rec.Interval), latest, nil
}

// CreateNextRecurringTask copies the series task with the latest deadline
// into a new task one interval later, starting at the default stage with
// progress 0. It reports false when the end condition is reached or no
// series task has a deadline.
func (e Engine) CreateNextRecurringTask(ctx context.Context, id, actorID string) (domain.Task, bool, error) {
	rec, err := e.Repo.GetRecurrence(ctx, nil, id)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("recurrence %s: %w", id, err)
	}
	next, latest, err := e.nextOccurrence(ctx, rec)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, err
	}
	if !tracking.ShouldCreateNext(rec, len(rec.TaskIDs), next) {
		return domain.Task{}, false, nil
	}

	start := e.now().UTC()
	if next.Before(start) {
		start = next
	}
	planned := latest.PlannedHours
	allow := latest.AllowTimeLogs
	t, err := e.CreateTask(ctx, TaskCreateOptions{
		Title:         latest.Title,
		Description:   latest.Description,
		TaskType:      latest.TaskType,
		AssigneeID:    deref(latest.AssigneeID),
		TeamID:        deref(latest.TeamID),
		Collaborators: latest.Collaborators,
		Priority:      latest.Priority,
		PlannedHours:  &planned,
		DateStart:     start.Format(time.RFC3339),
		DateDeadline:  next.Format(time.RFC3339),
		Tags:          latest.Tags,
		AllowTimeLogs: &allow,
		TemplateName:  latest.TemplateName,
		RecurrenceID:  rec.ID,
		ActorID:       actorID,
	})
	if err != nil {
		return t, false, fmt.Errorf("recurrence %s: %w", id, err)
	}
	e.log().Info("recurring task created", zap.String("recurrence_id", rec.ID), zap.String("task_id", t.ID), zap.String("from", latest.ID))
	return t, true, nil
}

// RunRecurrences advances every series by at most one task and returns the
// tasks created.
func (e Engine) RunRecurrences(ctx context.Context, actorID string) ([]domain.Task, error) {
	ids, err := e.Repo.ListRecurrenceIDs(ctx)
	if err != nil {
		return nil, err
	}
	created := []domain.Task{}
	for _, id := range ids {
		t, ok, err := e.CreateNextRecurringTask(ctx, id, actorID)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, t)
		}
	}
	return created, nil
}
