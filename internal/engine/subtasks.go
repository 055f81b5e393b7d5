package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/tracking"
)

type SubtaskOptions struct {
	TaskID      string
	Name        string
	Deadline    string
	Description string
	AssigneeIDs []string
	ActorID     string
}

func (e Engine) AddSubtask(ctx context.Context, opts SubtaskOptions) (domain.Subtask, error) {
	if !e.settings().SubtasksEnabled() {
		return domain.Subtask{}, tracking.NewValidationError(tracking.CodeSubtasksDisabled, "subtasks", "subtasks are disabled in settings")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Subtask{}, invalidInput("subtask name is required")
	}
	deadline, err := normalizeDate("deadline", opts.Deadline)
	if err != nil {
		return domain.Subtask{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Subtask{}, err
	}
	defer tx.Rollback()

	t, err := e.loadTaskForWrite(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Subtask{}, err
	}
	if err := tracking.ValidateSubtaskDeadline(deadline, t.DateStart, t.DateDeadline); err != nil {
		return domain.Subtask{}, err
	}
	seq, err := e.Repo.NextSubtaskSequence(ctx, tx, t.ID)
	if err != nil {
		return domain.Subtask{}, err
	}
	s := domain.Subtask{
		ID:          newID(),
		TaskID:      t.ID,
		Name:        name,
		Sequence:    seq,
		Deadline:    deadline,
		Description: opts.Description,
		AssigneeIDs: dedupe(opts.AssigneeIDs),
	}
	if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
		return s, fmt.Errorf("insert subtask: %w", err)
	}
	t.Subtasks = append(t.Subtasks, s)
	if err := e.commitSubtaskChange(ctx, tx, t, events.SubtaskAdded, s, opts.ActorID); err != nil {
		return s, err
	}
	return s, nil
}

// SubtaskUpdateOptions leaves nil fields alone. An empty Deadline clears it.
type SubtaskUpdateOptions struct {
	ID          string
	Name        *string
	Deadline    *string
	Description *string
	IsDone      *bool
	AssigneeIDs []string
	ActorID     string
}

func (e Engine) UpdateSubtask(ctx context.Context, opts SubtaskUpdateOptions) (domain.Subtask, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Subtask{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubtask(ctx, tx, opts.ID)
	if err != nil {
		return s, fmt.Errorf("subtask %s: %w", opts.ID, err)
	}
	t, err := e.loadTaskForWrite(ctx, tx, s.TaskID)
	if err != nil {
		return s, err
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return s, invalidInput("subtask name is required")
		}
		s.Name = name
	}
	if opts.Deadline != nil {
		if s.Deadline, err = normalizeDate("deadline", *opts.Deadline); err != nil {
			return s, err
		}
		if err := tracking.ValidateSubtaskDeadline(s.Deadline, t.DateStart, t.DateDeadline); err != nil {
			return s, err
		}
	}
	if opts.Description != nil {
		s.Description = *opts.Description
	}
	if opts.IsDone != nil {
		s.IsDone = *opts.IsDone
	}
	if opts.AssigneeIDs != nil {
		s.AssigneeIDs = dedupe(opts.AssigneeIDs)
	}
	if err := e.Repo.UpdateSubtask(ctx, tx, s); err != nil {
		return s, err
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == s.ID {
			t.Subtasks[i] = s
		}
	}
	if err := e.commitSubtaskChange(ctx, tx, t, events.SubtaskUpdated, s, opts.ActorID); err != nil {
		return s, err
	}
	return s, nil
}

// SetSubtaskDone toggles completion.
func (e Engine) SetSubtaskDone(ctx context.Context, id string, done bool, actorID string) (domain.Subtask, error) {
	return e.UpdateSubtask(ctx, SubtaskUpdateOptions{ID: id, IsDone: &done, ActorID: actorID})
}

// DeleteSubtask removes a subtask. Its time logs stay on the task as other work.
func (e Engine) DeleteSubtask(ctx context.Context, id, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubtask(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("subtask %s: %w", id, err)
	}
	t, err := e.loadTaskForWrite(ctx, tx, s.TaskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteSubtask(ctx, tx, id); err != nil {
		return err
	}
	kept := t.Subtasks[:0]
	for _, st := range t.Subtasks {
		if st.ID != id {
			kept = append(kept, st)
		}
	}
	t.Subtasks = kept
	for i := range t.TimeLogs {
		if t.TimeLogs[i].SubtaskID != nil && *t.TimeLogs[i].SubtaskID == id {
			t.TimeLogs[i].SubtaskID = nil
		}
	}
	return e.commitSubtaskChange(ctx, tx, t, events.SubtaskDeleted, s, actorID)
}

// commitSubtaskChange recomputes the parent, records the event and commits.
func (e Engine) commitSubtaskChange(ctx context.Context, tx *sql.Tx, t domain.Task, evt string, s domain.Subtask, actorID string) error {
	tracking.Recompute(&t, e.now(), tracking.FieldSubtasks)
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, evt, "subtask", s.ID, actorID, events.EventPayload{
		"task_id":  t.ID,
		"name":     s.Name,
		"is_done":  s.IsDone,
		"progress": t.Progress,
		"done":     t.SubtaskCompletedCount,
		"total":    t.SubtaskCount,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Debug(evt, zap.String("task_id", t.ID), zap.String("subtask_id", s.ID), zap.Float64("progress", t.Progress))
	return nil
}
