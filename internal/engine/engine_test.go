package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testNow = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWith(t, config.Default("test"))
}

func newTestEnvWith(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	ctx := context.Background()
	_, err = eng.Init(ctx, "tester")
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx}
}

func ptr[T any](v T) *T { return &v }

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	ve, ok := tracking.AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, code, ve.Code)
}

func (env testEnv) createTask(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	if opts.Title == "" {
		opts.Title = "work"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	require.NoError(t, err)
	return task
}

func (env testEnv) logTime(t *testing.T, taskID, date string, hours float64) engine.TimeLogResult {
	t.Helper()
	res, err := env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{TaskID: taskID, Date: date, Duration: hours, ActorID: "tester"})
	require.NoError(t, err)
	return res
}

func TestInitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Init(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Zero(t, res.StagesCreated)
	assert.Zero(t, res.UsersCreated)

	stages, err := env.Engine.ListStages(env.Ctx)
	require.NoError(t, err)
	require.Len(t, stages, 5)
	assert.Equal(t, "To-Do", stages[0].Name)

	admin, err := env.Engine.Auth.IsAdmin(env.Ctx, nil, "tester")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "  Write report  "})

	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, domain.TaskTypeIndividual, task.TaskType)
	assert.Equal(t, "To-Do", task.StageName)
	assert.Equal(t, domain.PriorityNormal, task.Priority)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, "tester", *task.AssigneeID)
	require.NotNil(t, task.DateStart)
	assert.Equal(t, "2024-03-13T15:00:00Z", *task.DateStart)
	require.NotNil(t, task.DateAssign)
	assert.False(t, task.IsClosed)
	assert.True(t, task.Active)
	assert.True(t, task.AllowTimeLogs)

	followers, err := env.Engine.Repo.ListFollowers(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tester"}, followers)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: task.ID})
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TaskCreated)
	assert.Contains(t, types, events.TaskSubscribed)
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: " ", ActorID: "tester"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", TaskType: domain.TaskTypeTeam, ActorID: "tester"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "x", DateStart: "2024-03-10", DateDeadline: "2024-03-01", ActorID: "tester",
	})
	requireCode(t, err, tracking.CodeDeadlineBeforeStart)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Stage: "Nowhere", ActorID: "tester"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestHoursAdjustProgressWithHysteresis(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{PlannedHours: ptr(10.0)})
	assert.Equal(t, 0.0, task.Progress)
	assert.Equal(t, 10.0, task.RemainingHours)

	task, err := env.Engine.SetStage(env.Ctx, task.ID, "In Progress", "tester")
	require.NoError(t, err)
	assert.Equal(t, 40.0, task.Progress)

	env.logTime(t, task.ID, "2024-03-12", 5)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, task.EffectiveHours)
	assert.Equal(t, 5.0, task.RemainingHours)
	assert.Equal(t, 50.0, task.Progress)

	env.logTime(t, task.ID, "2024-03-13", 0.4)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.4, task.EffectiveHours, 1e-9)
	assert.InDelta(t, 4.6, task.RemainingHours, 1e-9)
	assert.Equal(t, 50.0, task.Progress)
}

func TestStageEffects(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{})

	task, err := env.Engine.MarkDone(env.Ctx, task.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Done", task.StageName)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, domain.KanbanDone, task.KanbanState)
	assert.True(t, task.IsClosed)
	require.NotNil(t, task.DateEnd)

	task, err = env.Engine.SetStage(env.Ctx, task.ID, "Cancelled", "tester")
	require.NoError(t, err)
	assert.Equal(t, 0.0, task.Progress)
	assert.Equal(t, domain.KanbanBlocked, task.KanbanState)
	assert.True(t, task.IsClosed)

	task, err = env.Engine.SetStage(env.Ctx, task.ID, "Review", "tester")
	require.NoError(t, err)
	assert.Equal(t, 70.0, task.Progress)
	assert.False(t, task.IsClosed)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: task.ID, Type: events.TaskStageChanged})
	require.NoError(t, err)
	assert.Len(t, evts, 3)
}

func TestSubtasksDriveProgress(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Subtasks: []string{"a", "b", "c", "d"}})
	require.Len(t, task.Subtasks, 4)
	assert.Equal(t, 4, task.SubtaskCount)
	assert.Equal(t, 0.0, task.Progress)

	_, err := env.Engine.SetSubtaskDone(env.Ctx, task.Subtasks[0].ID, true, "tester")
	require.NoError(t, err)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.SubtaskCompletedCount)
	assert.Equal(t, 25.0, task.Progress)

	_, err = env.Engine.SetSubtaskDone(env.Ctx, task.Subtasks[0].ID, false, "tester")
	require.NoError(t, err)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, task.SubtaskCompletedCount)
	assert.Equal(t, 0.0, task.Progress)

	_, err = env.Engine.SetSubtaskDone(env.Ctx, task.Subtasks[0].ID, true, "tester")
	require.NoError(t, err)

	// Done reads 100 even with open subtasks
	task, err = env.Engine.MarkDone(env.Ctx, task.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, domain.KanbanDone, task.KanbanState)
	assert.True(t, task.IsClosed)
	stored, err := env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Progress)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Progress: ptr(90.0), ActorID: "tester"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "e", ActorID: "tester"})
	require.NoError(t, err)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, task.SubtaskCount)
	assert.Equal(t, 20.0, task.Progress)
}

func TestSubtaskDeadlineRange(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{DateStart: "2024-03-01", DateDeadline: "2024-03-31"})

	_, err := env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "late", Deadline: "2024-04-02", ActorID: "tester"})
	requireCode(t, err, tracking.CodeSubtaskDeadlineOutOfRange)
	assert.Contains(t, err.Error(), "2024-03-01")
	assert.Contains(t, err.Error(), "2024-03-31")

	s, err := env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "ok", Deadline: "2024-03-10", ActorID: "tester"})
	require.NoError(t, err)
	require.NotNil(t, s.Deadline)
	assert.Equal(t, "2024-03-10", *s.Deadline)
}

func TestLogTimeValidation(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{DateStart: "2024-03-01", DateDeadline: "2024-03-31"})
	sub, err := env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "Draft", Deadline: "2024-03-10", ActorID: "tester"})
	require.NoError(t, err)
	future, err := env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "Ship", Deadline: "2024-03-20", ActorID: "tester"})
	require.NoError(t, err)

	cases := []struct {
		name string
		opts engine.LogTimeOptions
		code string
	}{
		{"zero duration", engine.LogTimeOptions{Date: "2024-03-12", Duration: 0}, tracking.CodeInvalidDuration},
		{"over a day", engine.LogTimeOptions{Date: "2024-03-12", Duration: 25}, tracking.CodeDurationExceedsDay},
		{"future date", engine.LogTimeOptions{Date: "2024-03-14", Duration: 1}, tracking.CodeFutureDateNotAllowed},
		{"after subtask deadline", engine.LogTimeOptions{Date: "2024-03-11", Duration: 1, SubtaskID: sub.ID}, tracking.CodeDateAfterSubtaskDeadline},
		{"bad range", engine.LogTimeOptions{Date: "2024-03-12", TimeStart: ptr(14.0), TimeEnd: ptr(9.0)}, tracking.CodeInvalidTimeRange},
		{"unknown preset", engine.LogTimeOptions{Date: "2024-03-12", QuickTime: "7"}, tracking.CodeInvalidDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.TaskID = task.ID
			tc.opts.ActorID = "tester"
			_, err := env.Engine.LogTime(env.Ctx, tc.opts)
			requireCode(t, err, tc.code)
		})
	}

	// a subtask deadline replaces today as the ceiling
	res, err := env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{
		TaskID: task.ID, SubtaskID: future.ID, Date: "2024-03-15", QuickTime: "1.5", ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Entry.Duration)
	assert.Equal(t, "Worked on: Ship", res.Entry.Description)
	assert.Equal(t, "01:30", res.Entry.HoursDisplay)
	assert.Equal(t, "[work] Ship", res.Entry.DisplayName)

	res, err = env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{
		TaskID: task.ID, Date: "2024-03-12", TimeStart: ptr(8.0), TimeEnd: ptr(21.5), ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, 13.5, res.Entry.Duration)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, tracking.WarnLongDuration, res.Warnings[0].Code)
	assert.Equal(t, "Task: work | Work: General work | Time: 13:30", res.Entry.WorkSummary)
}

func TestLogTimeRejectsForeignSubtask(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, engine.TaskCreateOptions{Title: "a"})
	b := env.createTask(t, engine.TaskCreateOptions{Title: "b", Subtasks: []string{"other"}})
	_, err := env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{
		TaskID: a.ID, SubtaskID: b.Subtasks[0].ID, Date: "2024-03-12", Duration: 1, ActorID: "tester",
	})
	requireCode(t, err, tracking.CodeSubtaskTaskMismatch)
}

func TestTimeLogsDisabled(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{AllowTimeLogs: ptr(false)})
	_, err := env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{TaskID: task.ID, Date: "2024-03-12", Duration: 1, ActorID: "tester"})
	requireCode(t, err, tracking.CodeTimeLogsDisabled)

	cfg := config.Default("test")
	cfg.Settings.AllowTimeLogs = ptr(false)
	cfg.Settings.AllowSubtasks = ptr(false)
	env = newTestEnvWith(t, cfg)
	task = env.createTask(t, engine.TaskCreateOptions{})
	_, err = env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{TaskID: task.ID, Date: "2024-03-12", Duration: 1, ActorID: "tester"})
	requireCode(t, err, tracking.CodeTimeLogsDisabled)
	_, err = env.Engine.AddSubtask(env.Ctx, engine.SubtaskOptions{TaskID: task.ID, Name: "x", ActorID: "tester"})
	requireCode(t, err, tracking.CodeSubtasksDisabled)
}

func TestPreviewTimeLogDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{})
	p, err := env.Engine.PreviewTimeLog(env.Ctx, engine.LogTimeOptions{TaskID: task.ID, Date: "2024-03-20", Duration: 30, ActorID: "tester"})
	require.NoError(t, err)
	assert.False(t, p.OK())
	var codes []string
	for _, e := range p.Errors {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{tracking.CodeDurationExceedsDay, tracking.CodeFutureDateNotAllowed}, codes)
	assert.Equal(t, "General work", p.Description)

	logs, err := env.Engine.ListTimeLogs(env.Ctx, engine.TimeLogFilter{TaskID: task.ID})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestUpdateAndDeleteTimeLogRecompute(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{PlannedHours: ptr(8.0)})
	first := env.logTime(t, task.ID, "2024-03-11", 2)
	env.logTime(t, task.ID, "2024-03-12", 1)

	_, err := env.Engine.UpdateTimeLog(env.Ctx, engine.TimeLogUpdateOptions{ID: first.Entry.ID, Duration: ptr(4.0), ActorID: "tester"})
	require.NoError(t, err)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, task.EffectiveHours)
	assert.Equal(t, 3.0, task.RemainingHours)

	_, err = env.Engine.UpdateTimeLog(env.Ctx, engine.TimeLogUpdateOptions{ID: first.Entry.ID, Date: ptr("2024-03-30"), ActorID: "tester"})
	requireCode(t, err, tracking.CodeFutureDateNotAllowed)

	require.NoError(t, env.Engine.DeleteTimeLog(env.Ctx, first.Entry.ID, "tester"))
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, task.EffectiveHours)
	assert.Equal(t, 7.0, task.RemainingHours)

	logs, err := env.Engine.ListTimeLogs(env.Ctx, engine.TimeLogFilter{TaskID: task.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "2024-03-12", logs[0].Date)
}

func TestDeleteSubtaskKeepsLogsAsOtherWork(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Subtasks: []string{"only"}})
	_, err := env.Engine.LogTime(env.Ctx, engine.LogTimeOptions{
		TaskID: task.ID, SubtaskID: task.Subtasks[0].ID, Date: "2024-03-12", Duration: 2, ActorID: "tester",
	})
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteSubtask(env.Ctx, task.Subtasks[0].ID, "tester"))

	summary, err := env.Engine.TimeTrackingSummary(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, summary.TotalSpent)
	require.Len(t, summary.BySubtask, 1)
	assert.Equal(t, tracking.OtherWorkLabel, summary.BySubtask[0].Name)

	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Zero(t, task.SubtaskCount)
}

func TestWeeklySummary(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, engine.TaskCreateOptions{Title: "alpha"})
	b := env.createTask(t, engine.TaskCreateOptions{Title: "beta"})
	env.logTime(t, a.ID, "2024-03-08", 3) // previous week
	env.logTime(t, a.ID, "2024-03-11", 2)
	env.logTime(t, b.ID, "2024-03-11", 1)
	env.logTime(t, a.ID, "2024-03-12", 1.5)

	w, err := env.Engine.WeeklySummary(env.Ctx, "tester", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", w.DateFrom)
	assert.Equal(t, "2024-03-17", w.DateTo)
	assert.Equal(t, 4.5, w.TotalHours)
	assert.Equal(t, 2, w.DaysWorked)
	assert.Equal(t, 2, w.TasksWorked)
	require.Len(t, w.Details, 2)
	byTask := map[string]tracking.TaskHours{}
	for _, d := range w.Details {
		byTask[d.Task] = d
	}
	assert.Equal(t, 3.5, byTask["alpha"].Hours)
	assert.Equal(t, 2, byTask["alpha"].Entries)
	assert.Equal(t, 1.0, byTask["beta"].Hours)

	_, err = env.Engine.WeeklySummary(env.Ctx, "tester", "2024-03-10", "2024-03-01")
	requireCode(t, err, tracking.CodeInvalidDate)
}

func TestSetStageKindRecomputesClosed(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Stage: "Review"})
	assert.False(t, task.IsClosed)

	n, err := env.Engine.SetStageKind(env.Ctx, "Review", domain.StageKindDone, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, task.IsClosed)
	assert.Equal(t, domain.StageKindDone, task.StageKind)

	_, err = env.Engine.SetStageKind(env.Ctx, "Review", domain.StageKindOpen, "tester")
	require.NoError(t, err)
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, task.IsClosed)

	_, err = env.Engine.SetStageKind(env.Ctx, "Review", "frozen", "tester")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestTeamsAndTeamTasks(t *testing.T) {
	env := newTestEnv(t)
	parent, err := env.Engine.CreateTeam(env.Ctx, engine.TeamOptions{Name: "Eng", ManagerID: "boss", MemberIDs: []string{"ann"}, ActorID: "tester"})
	require.NoError(t, err)
	child, err := env.Engine.CreateTeam(env.Ctx, engine.TeamOptions{Name: "Backend", ManagerID: "lead", ParentTeamID: parent.ID, MemberIDs: []string{"bob"}, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, engine.TeamKindChild, child.Kind)
	assert.ElementsMatch(t, []string{"lead", "bob"}, child.MemberIDs)

	parent, err = env.Engine.GetTeam(env.Ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.TeamKindParent, parent.Kind)
	assert.ElementsMatch(t, []string{"boss", "ann", "lead", "bob"}, parent.AllMembers)

	_, err = env.Engine.UpdateTeam(env.Ctx, engine.TeamUpdateOptions{ID: parent.ID, ParentTeamID: ptr(child.ID), ActorID: "tester"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	task := env.createTask(t, engine.TaskCreateOptions{TeamID: parent.ID})
	assert.Equal(t, domain.TaskTypeTeam, task.TaskType)
	assert.Nil(t, task.AssigneeID)
	followers, err := env.Engine.Repo.ListFollowers(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"boss", "ann", "lead", "bob"}, followers)

	ok, err := env.Engine.Auth.CanAccessTask(env.Ctx, nil, "bob", task)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Engine.Auth.CanAccessTask(env.Ctx, nil, "mallory", task)
	require.NoError(t, err)
	assert.False(t, ok)

	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, TaskType: ptr(domain.TaskTypeIndividual), AssigneeID: ptr("ann"), ActorID: "tester"})
	require.NoError(t, err)
	assert.Nil(t, task.TeamID)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, "ann", *task.AssigneeID)
}

func TestCopyArchiveRestore(t *testing.T) {
	env := newTestEnv(t)
	src := env.createTask(t, engine.TaskCreateOptions{Title: "Plan", Stage: "Review", Tags: []string{"q1"}, Subtasks: []string{"x", "y"}})
	_, err := env.Engine.SetSubtaskDone(env.Ctx, src.Subtasks[0].ID, true, "tester")
	require.NoError(t, err)
	env.logTime(t, src.ID, "2024-03-12", 1)

	cp, err := env.Engine.CopyTask(env.Ctx, src.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Plan (Copy)", cp.Title)
	assert.Equal(t, "To-Do", cp.StageName)
	assert.Equal(t, []string{"q1"}, cp.Tags)
	require.Len(t, cp.Subtasks, 2)
	assert.False(t, cp.Subtasks[0].IsDone)
	assert.Empty(t, cp.TimeLogs)

	archived, err := env.Engine.ArchiveTask(env.Ctx, src.ID, "tester")
	require.NoError(t, err)
	assert.False(t, archived.Active)
	list, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cp.ID, list[0].ID)

	restored, err := env.Engine.RestoreTask(env.Ctx, src.ID, "tester")
	require.NoError(t, err)
	assert.True(t, restored.Active)
}

func TestCreateTaskFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTaskFromTemplate(env.Ctx, "bugfix", engine.TaskCreateOptions{Tags: []string{"api"}, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, "Fix reported bug", task.Title)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, 4.0, task.PlannedHours)
	assert.ElementsMatch(t, []string{"bug", "api"}, task.Tags)
	assert.Equal(t, 3, task.SubtaskCount)
	assert.Equal(t, "bugfix", task.TemplateName)

	_, err = env.Engine.CreateTaskFromTemplate(env.Ctx, "missing", engine.TaskCreateOptions{ActorID: "tester"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestNotifyOverdueAndDueSoon(t *testing.T) {
	env := newTestEnv(t)
	late := env.createTask(t, engine.TaskCreateOptions{Title: "late", DateStart: "2024-03-01", DateDeadline: "2024-03-10"})
	soon := env.createTask(t, engine.TaskCreateOptions{Title: "soon", DateDeadline: "2024-03-14T09:00:00Z"})
	env.createTask(t, engine.TaskCreateOptions{Title: "far", DateDeadline: "2024-04-30"})
	done := env.createTask(t, engine.TaskCreateOptions{Title: "closed", DateStart: "2024-03-01", DateDeadline: "2024-03-02"})
	_, err := env.Engine.MarkDone(env.Ctx, done.ID, "tester")
	require.NoError(t, err)

	overdue, err := env.Engine.NotifyOverdue(env.Ctx, "tester")
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	assert.Equal(t, -3, overdue[0].DaysToDeadline)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: late.ID, Type: events.TaskOverdue})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	assert.Equal(t, "Task 'late' is overdue!", payload["message"])

	due, err := env.Engine.DueSoon(env.Ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)
	assert.Equal(t, 1, due[0].DaysToDeadline)

	info, err := env.Engine.Info(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, 3, info.MyTasks)
	assert.Equal(t, 3, info.OpenTasks)
	assert.Equal(t, 1, info.Overdue)
}

func TestUsersAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.AddUser(env.Ctx, engine.UserOptions{ID: "ann", Name: "Ann", ActorID: "tester"})
	require.NoError(t, err)
	assert.False(t, u.Admin)

	key, err := env.Engine.CreateAPIKey(env.Ctx, "ann", "laptop", "tester")
	require.NoError(t, err)
	assert.NotEmpty(t, key.Key)
	assert.Empty(t, key.KeyHash)

	stored, err := env.Engine.Repo.UseAPIKey(env.Ctx, repo.HashAPIKey(key.Key), "2024-03-13T16:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "ann", stored.UserID)
	require.NotNil(t, stored.LastUsedAt)
	assert.Equal(t, "2024-03-13T16:00:00Z", *stored.LastUsedAt)

	_, err = env.Engine.SetUserActive(env.Ctx, "ann", false, "tester")
	require.NoError(t, err)
	_, err = env.Engine.Repo.UseAPIKey(env.Ctx, repo.HashAPIKey(key.Key), "2024-03-13T17:00:00Z")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.CreateAPIKey(env.Ctx, "ann", "phone", "tester")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	u, err = env.Engine.SetUserActive(env.Ctx, "ann", true, "tester")
	require.NoError(t, err)
	assert.True(t, u.Active)
	_, err = env.Engine.Repo.UseAPIKey(env.Ctx, repo.HashAPIKey(key.Key), "2024-03-13T18:00:00Z")
	require.NoError(t, err)

	revoked, err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())
	_, err = env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = env.Engine.Repo.UseAPIKey(env.Ctx, repo.HashAPIKey(key.Key), "2024-03-13T19:00:00Z")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	keys, err := env.Engine.ListAPIKeys(env.Ctx, "ann")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "2024-03-13T18:00:00Z", *keys[0].LastUsedAt)
	assert.NotNil(t, keys[0].RevokedAt)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "user", EntityID: "ann", Limit: 10})
	require.NoError(t, err)
	var types []string
	for _, evt := range evts {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, events.APIKeyRevoked)
	assert.Contains(t, types, events.UserUpdated)

	_, err = env.Engine.CreateAPIKey(env.Ctx, "ghost", "", "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRecurrenceCountSeries(t *testing.T) {
	env := newTestEnv(t)
	first := env.createTask(t, engine.TaskCreateOptions{
		Title:        "Weekly report",
		PlannedHours: ptr(4.0),
		DateDeadline: "2024-03-15T17:00:00Z",
		Tags:         []string{"ops"},
		Subtasks:     []string{"collect numbers"},
	})
	_, err := env.Engine.MarkDone(env.Ctx, first.ID, "tester")
	require.NoError(t, err)

	rec, err := env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{
		TaskID: first.ID, Type: domain.RecurWeekly, EndType: domain.RecurEndCount, Count: 3, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "Every 1 week(s)", rec.Name)
	assert.Equal(t, 1, rec.Interval)
	assert.Equal(t, []string{first.ID}, rec.TaskIDs)
	assert.Equal(t, "2024-03-22", rec.NextDate)

	second, created, err := env.Engine.CreateNextRecurringTask(env.Ctx, rec.ID, "tester")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "Weekly report", second.Title)
	assert.Equal(t, "2024-03-22T17:00:00Z", *second.DateDeadline)
	assert.Equal(t, 0.0, second.Progress)
	assert.Equal(t, "To-Do", second.StageName)
	assert.False(t, second.IsClosed)
	assert.Equal(t, 4.0, second.PlannedHours)
	assert.Equal(t, []string{"ops"}, second.Tags)
	assert.Zero(t, second.SubtaskCount)

	made, err := env.Engine.RunRecurrences(env.Ctx, "tester")
	require.NoError(t, err)
	require.Len(t, made, 1)
	third := made[0]
	assert.Equal(t, "2024-03-29T17:00:00Z", *third.DateDeadline)

	made, err = env.Engine.RunRecurrences(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Empty(t, made, "count of 3 reached")

	rec, err = env.Engine.RecurrenceForTask(env.Ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, rec.TaskIDs)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.TaskRecurred, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}

func TestRecurrenceEndDateSeries(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Stand-up notes", DateDeadline: "2024-03-15T09:00:00Z"})
	rec, err := env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{
		TaskID: task.ID, Type: domain.RecurDaily, EndType: domain.RecurEndDate, EndDate: "2024-03-17", ActorID: "tester",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.EndDate)
	assert.Equal(t, "2024-03-17", *rec.EndDate)

	var deadlines []string
	for i := 0; i < 4; i++ {
		next, created, err := env.Engine.CreateNextRecurringTask(env.Ctx, rec.ID, "tester")
		require.NoError(t, err)
		if !created {
			break
		}
		deadlines = append(deadlines, *next.DateDeadline)
	}
	assert.Equal(t, []string{"2024-03-16T09:00:00Z", "2024-03-17T09:00:00Z"}, deadlines)
}

func TestRecurrenceForeverCatchesUpFromPastDeadline(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{
		Title: "Invoice run", DateStart: "2024-01-02T08:00:00Z", DateDeadline: "2024-01-31T12:00:00Z",
	})
	rec, err := env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{TaskID: task.ID, Type: domain.RecurMonthly, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.RecurEndForever, rec.EndType)
	assert.Equal(t, "2024-02-29", rec.NextDate)

	feb, created, err := env.Engine.CreateNextRecurringTask(env.Ctx, rec.ID, "tester")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "2024-02-29T12:00:00Z", *feb.DateDeadline)
	assert.Equal(t, "2024-02-29T12:00:00Z", *feb.DateStart, "start never runs past a past deadline")

	mar, created, err := env.Engine.CreateNextRecurringTask(env.Ctx, rec.ID, "tester")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "2024-03-29T12:00:00Z", *mar.DateDeadline)
	assert.Equal(t, testNow.Format(time.RFC3339), *mar.DateStart)
}

func TestRecurrenceRulesAndStop(t *testing.T) {
	env := newTestEnv(t)
	undated := env.createTask(t, engine.TaskCreateOptions{Title: "Water plants"})
	rec, err := env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{TaskID: undated.ID, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.RecurWeekly, rec.Type)
	assert.Equal(t, "2024-03-13", rec.NextDate, "no deadline to repeat from reads today")
	_, created, err := env.Engine.CreateNextRecurringTask(env.Ctx, rec.ID, "tester")
	require.NoError(t, err)
	assert.False(t, created)

	updated, err := env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{
		TaskID: undated.ID, Type: domain.RecurDaily, Interval: 2, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "Every 2 day(s)", updated.Name)

	_, err = env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{TaskID: undated.ID, Interval: -1, ActorID: "tester"})
	requireCode(t, err, tracking.CodeInvalidRecurrence)
	_, err = env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{TaskID: undated.ID, EndType: domain.RecurEndCount, ActorID: "tester"})
	requireCode(t, err, tracking.CodeInvalidRecurrence)
	_, err = env.Engine.SetRecurrence(env.Ctx, engine.RecurrenceOptions{TaskID: "missing", ActorID: "tester"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	list, err := env.Engine.ListRecurrences(env.Ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, env.Engine.StopRecurrence(env.Ctx, rec.ID, "tester"))
	_, err = env.Engine.RecurrenceForTask(env.Ctx, undated.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.GetTask(env.Ctx, undated.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, env.Engine.StopRecurrence(env.Ctx, rec.ID, "tester"), repo.ErrNotFound)
}

func TestTaskVisibilityFilterMatchesAccessPolicy(t *testing.T) {
	env := newTestEnv(t)
	parent, err := env.Engine.CreateTeam(env.Ctx, engine.TeamOptions{Name: "Eng", ManagerID: "boss", MemberIDs: []string{"ann"}, ActorID: "tester"})
	require.NoError(t, err)
	child, err := env.Engine.CreateTeam(env.Ctx, engine.TeamOptions{Name: "Backend", ManagerID: "lead", ParentTeamID: parent.ID, MemberIDs: []string{"bob"}, ActorID: "tester"})
	require.NoError(t, err)

	tasks := map[string]domain.Task{
		"parent team":  env.createTask(t, engine.TaskCreateOptions{TeamID: parent.ID}),
		"child team":   env.createTask(t, engine.TaskCreateOptions{TeamID: child.ID}),
		"assigned ann": env.createTask(t, engine.TaskCreateOptions{AssigneeID: "ann"}),
		"collaborator": env.createTask(t, engine.TaskCreateOptions{Collaborators: []string{"carl"}}),
		"created dave": env.createTask(t, engine.TaskCreateOptions{ActorID: "dave", AssigneeID: "zed"}),
	}
	want := map[string][]string{
		"boss":    {"parent team"},
		"ann":     {"parent team", "assigned ann"},
		"lead":    {"parent team", "child team"},
		"bob":     {"parent team", "child team"},
		"carl":    {"collaborator"},
		"dave":    {"created dave"},
		"zed":     {"created dave"},
		"mallory": nil,
	}
	for user, names := range want {
		t.Run(user, func(t *testing.T) {
			listed, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{VisibleTo: user})
			require.NoError(t, err)
			var got []string
			for _, l := range listed {
				got = append(got, l.ID)
			}
			var expected, allowed []string
			for _, name := range names {
				expected = append(expected, tasks[name].ID)
			}
			for _, task := range tasks {
				full, err := env.Engine.GetTask(env.Ctx, task.ID)
				require.NoError(t, err)
				ok, err := env.Engine.Auth.CanAccessTask(env.Ctx, nil, user, full)
				require.NoError(t, err)
				if ok {
					allowed = append(allowed, task.ID)
				}
			}
			assert.ElementsMatch(t, expected, got)
			assert.ElementsMatch(t, allowed, got)
		})
	}
}
