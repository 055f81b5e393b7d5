package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

var taskTypes = map[string]bool{domain.TaskTypeIndividual: true, domain.TaskTypeTeam: true}

var priorities = map[string]bool{
	domain.PriorityLow: true, domain.PriorityNormal: true, domain.PriorityHigh: true, domain.PriorityUrgent: true,
}

var kanbanStates = map[string]bool{domain.KanbanNormal: true, domain.KanbanDone: true, domain.KanbanBlocked: true}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title         string
	Description   string
	TaskType      string
	AssigneeID    string
	TeamID        string
	Collaborators []string
	// Stage is a stage id or name; empty picks the default stage.
	Stage         string
	Priority      string
	Progress      *float64
	PlannedHours  *float64
	DateStart     string
	DateDeadline  string
	Tags          []string
	AllowTimeLogs *bool
	Subtasks      []string
	TemplateName  string
	// RecurrenceID links the new task into an existing series.
	RecurrenceID string
	ActorID      string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Task{}, invalidInput("title is required")
	}
	if opts.ActorID == "" {
		return domain.Task{}, invalidInput("actor_id is required")
	}
	if opts.TaskType == "" {
		opts.TaskType = domain.TaskTypeIndividual
		if opts.TeamID != "" {
			opts.TaskType = domain.TaskTypeTeam
		}
	}
	if !taskTypes[opts.TaskType] {
		return domain.Task{}, invalidInput("invalid task_type %q", opts.TaskType)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityNormal
	}
	if !priorities[opts.Priority] {
		return domain.Task{}, invalidInput("invalid priority %q", opts.Priority)
	}
	settings := e.settings()
	now := e.now()
	stamp := e.stamp()

	start, err := normalizeTimestamp("date_start", opts.DateStart)
	if err != nil {
		return domain.Task{}, err
	}
	if start == nil {
		start = &stamp
	}
	deadline, err := normalizeTimestamp("date_deadline", opts.DateDeadline)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tracking.ValidateTaskDates(start, deadline); err != nil {
		return domain.Task{}, err
	}

	t := domain.Task{
		ID:            newID(),
		Title:         opts.Title,
		Description:   opts.Description,
		Active:        true,
		TaskType:      opts.TaskType,
		Collaborators: dedupe(opts.Collaborators),
		Priority:      opts.Priority,
		KanbanState:   domain.KanbanNormal,
		PlannedHours:  settings.DefaultPlannedHours,
		AllowTimeLogs: settings.TimeLogsEnabled(),
		DateStart:     start,
		DateDeadline:  deadline,
		Tags:          dedupe(opts.Tags),
		TemplateName:  opts.TemplateName,
		CreatedBy:     opts.ActorID,
		CreatedAt:     stamp,
		UpdatedAt:     stamp,
	}
	if opts.PlannedHours != nil {
		if *opts.PlannedHours < 0 {
			return domain.Task{}, invalidInput("planned_hours must not be negative")
		}
		t.PlannedHours = *opts.PlannedHours
	}
	if opts.AllowTimeLogs != nil {
		t.AllowTimeLogs = *opts.AllowTimeLogs
	}
	switch t.TaskType {
	case domain.TaskTypeTeam:
		if opts.TeamID == "" {
			return domain.Task{}, invalidInput("team tasks need a team_id")
		}
		t.TeamID = &opts.TeamID
	default:
		assignee := opts.AssigneeID
		if assignee == "" && settings.AutoAssignEnabled() {
			assignee = opts.ActorID
		}
		t.AssigneeID = optionalString(assignee)
		t.TeamID = optionalString(opts.TeamID)
	}
	if t.AssigneeID != nil {
		t.DateAssign = &stamp
	}
	if len(opts.Subtasks) > 0 && !settings.SubtasksEnabled() {
		return domain.Task{}, tracking.NewValidationError(tracking.CodeSubtasksDisabled, "subtasks", "subtasks are disabled in settings")
	}
	for i, name := range opts.Subtasks {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t.Subtasks = append(t.Subtasks, domain.Subtask{ID: newID(), TaskID: t.ID, Name: name, Sequence: (i + 1) * 10})
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	stage, err := e.resolveStage(ctx, tx, opts.Stage)
	if err != nil {
		return domain.Task{}, err
	}
	tracking.MoveToStage(&t, stage)
	if t.TeamID != nil {
		if _, err := e.Repo.GetTeam(ctx, tx, *t.TeamID); err != nil {
			return domain.Task{}, fmt.Errorf("team %s: %w", *t.TeamID, err)
		}
	}
	tracking.Recompute(&t, now, tracking.AllInputs...)
	if opts.Progress != nil && len(t.Subtasks) == 0 {
		t.Progress = tracking.ClampProgress(*opts.Progress)
	}

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	for _, s := range t.Subtasks {
		if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
			return domain.Task{}, fmt.Errorf("insert subtask: %w", err)
		}
	}
	if opts.RecurrenceID != "" {
		if err := e.Repo.LinkRecurrenceTask(ctx, tx, opts.RecurrenceID, t.ID); err != nil {
			return domain.Task{}, fmt.Errorf("link recurrence: %w", err)
		}
		if err := e.appendEvent(ctx, tx, events.TaskRecurred, "task", t.ID, opts.ActorID, events.EventPayload{
			"recurrence_id": opts.RecurrenceID, "deadline": deref(t.DateDeadline),
		}); err != nil {
			return domain.Task{}, err
		}
	}
	followers, err := e.followersFor(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.notifier().Subscribe(ctx, tx, t, opts.ActorID, followers); err != nil {
		return domain.Task{}, err
	}
	if err := e.appendEvent(ctx, tx, events.TaskCreated, "task", t.ID, opts.ActorID, events.EventPayload{
		"title": t.Title, "stage": t.StageName, "task_type": t.TaskType, "template": t.TemplateName,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.log().Info("task created", zap.String("task_id", t.ID), zap.String("stage", t.StageName), zap.String("actor", opts.ActorID))
	return e.GetTask(ctx, t.ID)
}

// CreateTaskFromTemplate fills opts from a config template; set fields in opts win.
func (e Engine) CreateTaskFromTemplate(ctx context.Context, name string, opts TaskCreateOptions) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	tpl, ok := e.Config.Templates[name]
	if !ok {
		return domain.Task{}, fmt.Errorf("template %s: %w", name, repo.ErrNotFound)
	}
	applyTemplate(&opts, tpl)
	opts.TemplateName = name
	return e.CreateTask(ctx, opts)
}

func applyTemplate(opts *TaskCreateOptions, tpl config.Template) {
	if opts.Title == "" {
		opts.Title = tpl.Title
	}
	if opts.Description == "" {
		opts.Description = tpl.Description
	}
	if opts.TaskType == "" && opts.TeamID == "" {
		opts.TaskType = tpl.TaskType
	}
	if opts.Priority == "" {
		opts.Priority = tpl.Priority
	}
	if opts.PlannedHours == nil && tpl.PlannedHours > 0 {
		h := tpl.PlannedHours
		opts.PlannedHours = &h
	}
	opts.Tags = append(append([]string{}, tpl.Tags...), opts.Tags...)
	if len(opts.Subtasks) == 0 {
		opts.Subtasks = append([]string{}, tpl.Subtasks...)
	}
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left alone;
// empty strings clear optional references and dates.
type TaskUpdateOptions struct {
	ID            string
	Title         *string
	Description   *string
	Priority      *string
	PlannedHours  *float64
	Progress      *float64
	DateStart     *string
	DateDeadline  *string
	AssigneeID    *string
	TeamID        *string
	TaskType      *string
	Stage         *string
	KanbanState   *string
	Collaborators []string
	Tags          []string
	AllowTimeLogs *bool
	ActorID       string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	stamp := e.stamp()
	var changed []tracking.Field
	var fields []string

	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return t, invalidInput("title is required")
		}
		t.Title = title
		fields = append(fields, "title")
	}
	if opts.Description != nil {
		t.Description = *opts.Description
		fields = append(fields, "description")
	}
	if opts.Priority != nil {
		if !priorities[*opts.Priority] {
			return t, invalidInput("invalid priority %q", *opts.Priority)
		}
		t.Priority = *opts.Priority
		fields = append(fields, "priority")
	}
	if opts.PlannedHours != nil {
		if *opts.PlannedHours < 0 {
			return t, invalidInput("planned_hours must not be negative")
		}
		t.PlannedHours = *opts.PlannedHours
		changed = append(changed, tracking.FieldPlannedHours)
		fields = append(fields, "planned_hours")
	}
	if opts.DateStart != nil {
		if t.DateStart, err = normalizeTimestamp("date_start", *opts.DateStart); err != nil {
			return t, err
		}
		fields = append(fields, "date_start")
	}
	if opts.DateDeadline != nil {
		if t.DateDeadline, err = normalizeTimestamp("date_deadline", *opts.DateDeadline); err != nil {
			return t, err
		}
		changed = append(changed, tracking.FieldDeadline)
		fields = append(fields, "date_deadline")
	}
	if opts.DateStart != nil || opts.DateDeadline != nil {
		if err := tracking.ValidateTaskDates(t.DateStart, t.DateDeadline); err != nil {
			return t, err
		}
	}
	if opts.TaskType != nil {
		if !taskTypes[*opts.TaskType] {
			return t, invalidInput("invalid task_type %q", *opts.TaskType)
		}
		t.TaskType = *opts.TaskType
		switch t.TaskType {
		case domain.TaskTypeIndividual:
			t.TeamID = nil
		case domain.TaskTypeTeam:
			t.AssigneeID = nil
		}
		fields = append(fields, "task_type")
	}
	if opts.TeamID != nil {
		t.TeamID = optionalString(*opts.TeamID)
		if t.TeamID != nil {
			if _, err := e.Repo.GetTeam(ctx, tx, *t.TeamID); err != nil {
				return t, fmt.Errorf("team %s: %w", *t.TeamID, err)
			}
			t.TaskType = domain.TaskTypeTeam
			t.AssigneeID = nil
		}
		fields = append(fields, "team_id")
	}
	if opts.AssigneeID != nil {
		t.AssigneeID = optionalString(*opts.AssigneeID)
		if t.AssigneeID != nil {
			if t.TaskType == domain.TaskTypeTeam {
				return t, invalidInput("team tasks cannot have an individual assignee")
			}
			t.DateAssign = &stamp
		}
		fields = append(fields, "assignee_id")
	}
	if t.TaskType == domain.TaskTypeTeam && t.TeamID == nil {
		return t, invalidInput("team tasks need a team_id")
	}
	if opts.Stage != nil {
		stage, err := e.resolveStage(ctx, tx, *opts.Stage)
		if err != nil {
			return t, err
		}
		if stage.ID != t.StageID {
			tracking.MoveToStage(&t, stage)
			changed = append(changed, tracking.FieldStage)
			fields = append(fields, "stage")
		}
	}
	if opts.Progress != nil {
		if len(t.Subtasks) > 0 {
			return t, invalidInput("progress follows subtask completion on tasks with subtasks")
		}
		t.Progress = tracking.ClampProgress(*opts.Progress)
		fields = append(fields, "progress")
	}
	if opts.KanbanState != nil {
		if !kanbanStates[*opts.KanbanState] {
			return t, invalidInput("invalid kanban_state %q", *opts.KanbanState)
		}
		t.KanbanState = *opts.KanbanState
		fields = append(fields, "kanban_state")
	}
	if opts.AllowTimeLogs != nil {
		t.AllowTimeLogs = *opts.AllowTimeLogs
		fields = append(fields, "allow_time_logs")
	}

	ran := tracking.Recompute(&t, e.now(), changed...)
	t.UpdatedAt = stamp
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if opts.Collaborators != nil {
		t.Collaborators = dedupe(opts.Collaborators)
		if err := e.Repo.SetCollaborators(ctx, tx, t.ID, t.Collaborators); err != nil {
			return t, err
		}
		fields = append(fields, "collaborators")
	}
	if opts.Tags != nil {
		t.Tags = dedupe(opts.Tags)
		if err := e.Repo.SetTags(ctx, tx, t.ID, t.Tags); err != nil {
			return t, err
		}
		fields = append(fields, "tags")
	}
	if opts.AssigneeID != nil || opts.TeamID != nil {
		followers, err := e.followersFor(ctx, tx, t)
		if err != nil {
			return t, err
		}
		if err := e.notifier().Subscribe(ctx, tx, t, opts.ActorID, followers); err != nil {
			return t, err
		}
	}
	if err := e.appendEvent(ctx, tx, events.TaskUpdated, "task", t.ID, opts.ActorID, events.EventPayload{
		"fields": fields, "recomputed": fieldNames(ran),
	}); err != nil {
		return t, err
	}
	if original.StageID != t.StageID {
		if err := e.appendEvent(ctx, tx, events.TaskStageChanged, "task", t.ID, opts.ActorID, events.EventPayload{
			"from": original.StageName, "to": t.StageName, "progress": t.Progress, "is_closed": t.IsClosed,
		}); err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	e.log().Debug("task updated", zap.String("task_id", t.ID), zap.Strings("fields", fields), zap.Strings("recomputed", fieldNames(ran)))
	return e.GetTask(ctx, t.ID)
}

func fieldNames(fs []tracking.Field) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.String())
	}
	return out
}

// SetStage moves a task to a stage by id or name.
func (e Engine) SetStage(ctx context.Context, taskID, stage, actorID string) (domain.Task, error) {
	return e.UpdateTask(ctx, TaskUpdateOptions{ID: taskID, Stage: &stage, ActorID: actorID})
}

// MarkDone moves a task to the first stage of kind done.
func (e Engine) MarkDone(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	stages, err := e.Repo.ListStages(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	done, ok := tracking.FirstStageOfKind(stages, domain.StageKindDone)
	if !ok {
		return domain.Task{}, errors.New("no done stage configured")
	}
	return e.SetStage(ctx, taskID, done.ID, actorID)
}

func (e Engine) ArchiveTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	return e.setActive(ctx, taskID, actorID, false)
}

func (e Engine) RestoreTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	return e.setActive(ctx, taskID, actorID, true)
}

func (e Engine) setActive(ctx context.Context, taskID, actorID string, active bool) (domain.Task, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if t.Active == active {
		return e.decorate(t), nil
	}
	t.Active = active
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	evt := events.TaskArchived
	if active {
		evt = events.TaskRestored
	}
	if err := e.appendEvent(ctx, tx, evt, "task", t.ID, actorID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.decorate(t), nil
}

// CopyTask duplicates a task as "<title> (Copy)" in the default stage. Subtasks
// are copied undone; time logs are not copied.
func (e Engine) CopyTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	src, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return src, err
	}
	names := make([]string, 0, len(src.Subtasks))
	for _, s := range src.Subtasks {
		names = append(names, s.Name)
	}
	planned := src.PlannedHours
	allow := src.AllowTimeLogs
	opts := TaskCreateOptions{
		Title:         src.Title + " (Copy)",
		Description:   src.Description,
		TaskType:      src.TaskType,
		Collaborators: src.Collaborators,
		Priority:      src.Priority,
		PlannedHours:  &planned,
		Tags:          src.Tags,
		AllowTimeLogs: &allow,
		Subtasks:      names,
		TemplateName:  src.TemplateName,
		ActorID:       actorID,
	}
	if src.AssigneeID != nil {
		opts.AssigneeID = *src.AssigneeID
	}
	if src.TeamID != nil {
		opts.TeamID = *src.TeamID
	}
	if src.DateDeadline != nil {
		opts.DateDeadline = *src.DateDeadline
		if src.DateStart != nil {
			opts.DateStart = *src.DateStart
		}
	}
	return e.CreateTask(ctx, opts)
}

// GetTask loads a task with days_to_deadline refreshed for today.
func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	return e.decorate(t), nil
}

func (e Engine) decorate(t domain.Task) domain.Task {
	t.DaysToDeadline = tracking.DaysToDeadline(t.DateDeadline, e.now())
	return t
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Active == nil {
		active := true
		f.Active = &active
	}
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i] = e.decorate(tasks[i])
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

type TaskInfo struct {
	MyTasks   int `json:"my_tasks"`
	OpenTasks int `json:"open_tasks"`
	Overdue   int `json:"overdue"`
}

// Info counts the actor's open tasks and all open tasks.
func (e Engine) Info(ctx context.Context, actorID string) (TaskInfo, error) {
	open, active := false, true
	var info TaskInfo
	var err error
	if info.MyTasks, err = e.Repo.CountTasks(ctx, repo.TaskFilters{AssigneeID: actorID, Closed: &open, Active: &active}); err != nil {
		return info, err
	}
	if info.OpenTasks, err = e.Repo.CountTasks(ctx, repo.TaskFilters{Closed: &open, Active: &active}); err != nil {
		return info, err
	}
	if info.Overdue, err = e.Repo.CountTasks(ctx, repo.TaskFilters{Closed: &open, Active: &active, DeadlineBefore: e.stamp()}); err != nil {
		return info, err
	}
	return info, nil
}

// loadTaskForWrite reads a task inside tx for a mutation that needs an active task.
func (e Engine) loadTaskForWrite(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return t, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}
