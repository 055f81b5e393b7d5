package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
)

func TestResolveProgress(t *testing.T) {
	assert.Equal(t, 40.0, ResolveProgress(0, "In Progress", 0, 0))
	assert.Equal(t, 70.0, ResolveProgress(0, "Review", 0, 0))
	assert.Equal(t, 20.0, ResolveProgress(20, "Custom", 0, 0))
	assert.InDelta(t, 66.67, ResolveProgress(0, "Done", 3, 2), 0.01)
}

func TestAdjustForHoursHysteresis(t *testing.T) {
	p, changed := AdjustForHours(40, 5, 10, false)
	assert.True(t, changed)
	assert.Equal(t, 50.0, p)

	p, changed = AdjustForHours(50, 5.4, 10, false)
	assert.False(t, changed)
	assert.Equal(t, 50.0, p)

	p, _ = AdjustForHours(10, 30, 10, false)
	assert.Equal(t, 100.0, p)

	_, changed = AdjustForHours(0, 5, 10, true)
	assert.False(t, changed)
	_, changed = AdjustForHours(0, 5, 0, false)
	assert.False(t, changed)
}

func TestRecomputeLogScenario(t *testing.T) {
	task := &domain.Task{StageName: "In Progress", StageKind: domain.StageKindOpen, PlannedHours: 10}
	Recompute(task, today, FieldStage)
	require.Equal(t, 40.0, task.Progress)

	task.TimeLogs = append(task.TimeLogs, domain.TimeLog{Duration: 5, Date: "2024-03-12"})
	ran := Recompute(task, today, FieldTimeLogs)
	assert.Equal(t, []Field{FieldEffectiveHours, FieldRemainingHours}, ran)
	assert.Equal(t, 5.0, task.EffectiveHours)
	assert.Equal(t, 5.0, task.RemainingHours)
	assert.Equal(t, 50.0, task.Progress)

	task.TimeLogs = append(task.TimeLogs, domain.TimeLog{Duration: 0.4, Date: "2024-03-12"})
	Recompute(task, today, FieldTimeLogs)
	assert.InDelta(t, 5.4, task.EffectiveHours, 1e-9)
	assert.Equal(t, 50.0, task.Progress)
}

func TestRecomputeDoneStage(t *testing.T) {
	task := &domain.Task{StageName: "Done", StageKind: domain.StageKindDone}
	Recompute(task, today, FieldStage)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, domain.KanbanDone, task.KanbanState)
	assert.True(t, task.IsClosed)
	require.NotNil(t, task.DateEnd)
	assert.Equal(t, "2024-03-13T15:00:00Z", *task.DateEnd)

	task.StageName, task.StageKind = "Cancelled", domain.StageKindCancelled
	Recompute(task, today, FieldStage)
	assert.Equal(t, 0.0, task.Progress)
	assert.Equal(t, domain.KanbanBlocked, task.KanbanState)
	assert.True(t, task.IsClosed)
}

func TestRecomputeStageAndSubtaskPrecedence(t *testing.T) {
	task := &domain.Task{
		StageName: "In Progress", StageKind: domain.StageKindOpen,
		Subtasks: []domain.Subtask{{IsDone: true}, {IsDone: false}},
	}
	Recompute(task, today, FieldSubtasks)
	assert.Equal(t, 2, task.SubtaskCount)
	assert.Equal(t, 1, task.SubtaskCompletedCount)
	assert.Equal(t, 50.0, task.Progress)

	// entering Done applies the stage table even with open subtasks
	task.StageName, task.StageKind = "Done", domain.StageKindDone
	ran := Recompute(task, today, FieldStage)
	assert.NotContains(t, ran, FieldProgress)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, domain.KanbanDone, task.KanbanState)

	// the next subtask toggle resolves from completion again
	task.Subtasks[1].IsDone = true
	task.Subtasks = append(task.Subtasks, domain.Subtask{})
	Recompute(task, today, FieldSubtasks)
	assert.InDelta(t, 66.67, task.Progress, 0.01)

	// with every subtask gone the stage table applies
	task.Subtasks = nil
	Recompute(task, today, FieldSubtasks)
	assert.Equal(t, 100.0, task.Progress)
}

func TestRecomputeStageKindOnly(t *testing.T) {
	task := &domain.Task{StageName: "Parked", StageKind: domain.StageKindCancelled, Progress: 30}
	ran := Recompute(task, today, FieldStageKind)
	assert.Equal(t, []Field{FieldIsClosed}, ran)
	assert.True(t, task.IsClosed)
	assert.Equal(t, 30.0, task.Progress)
}

func TestDefaultStage(t *testing.T) {
	stages := []domain.Stage{
		{ID: "b", Name: "Backlog", Kind: domain.StageKindOpen, Sequence: 2},
		{ID: "a", Name: "Inbox", Kind: domain.StageKindOpen, Sequence: 1},
		{ID: "d", Name: "Shipped", Kind: domain.StageKindDone, Sequence: 9},
	}
	s, ok := DefaultStage(stages)
	require.True(t, ok)
	assert.Equal(t, "a", s.ID)

	stages = append(stages, domain.Stage{ID: "t", Name: "To-Do", Kind: domain.StageKindOpen, Sequence: 5})
	s, _ = DefaultStage(stages)
	assert.Equal(t, "t", s.ID)

	s, ok = FirstStageOfKind(stages, domain.StageKindDone)
	require.True(t, ok)
	assert.Equal(t, "d", s.ID)
}
