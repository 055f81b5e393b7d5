package tracking

import (
	"time"

	"taskline/internal/domain"
)

// Field names an input or derived value of a task.
type Field int

const (
	// Inputs.
	FieldTimeLogs Field = iota
	FieldPlannedHours
	FieldSubtasks
	FieldStage
	FieldStageKind
	FieldDeadline

	// Derived.
	FieldEffectiveHours
	FieldSubtaskCounts
	FieldStageEffects
	FieldProgress
	FieldRemainingHours
	FieldIsClosed
	FieldDaysToDeadline
)

var fieldNames = map[Field]string{
	FieldTimeLogs:       "time_logs",
	FieldPlannedHours:   "planned_hours",
	FieldSubtasks:       "subtasks",
	FieldStage:          "stage",
	FieldStageKind:      "stage_kind",
	FieldDeadline:       "date_deadline",
	FieldEffectiveHours: "effective_hours",
	FieldSubtaskCounts:  "subtask_counts",
	FieldStageEffects:   "stage_effects",
	FieldProgress:       "progress",
	FieldRemainingHours: "remaining_hours",
	FieldIsClosed:       "is_closed",
	FieldDaysToDeadline: "days_to_deadline",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

type rule struct {
	out  Field
	deps []Field
	run  func(t *domain.Task, now time.Time)
}

// rules are listed in dependency order so a single pass settles every value.
var rules = []rule{
	{
		out:  FieldEffectiveHours,
		deps: []Field{FieldTimeLogs},
		run: func(t *domain.Task, _ time.Time) {
			t.EffectiveHours = EffectiveHours(t.TimeLogs)
		},
	},
	{
		out:  FieldSubtaskCounts,
		deps: []Field{FieldSubtasks},
		run: func(t *domain.Task, _ time.Time) {
			done := 0
			for _, s := range t.Subtasks {
				if s.IsDone {
					done++
				}
			}
			t.SubtaskCount = len(t.Subtasks)
			t.SubtaskCompletedCount = done
		},
	},
	{
		out:  FieldStageEffects,
		deps: []Field{FieldStage},
		run:  ApplyStageEffects,
	},
	{
		// A subtask change resolves progress from completion; a stage change
		// alone keeps the stage table value, so Done always reads 100.
		out:  FieldProgress,
		deps: []Field{FieldSubtaskCounts},
		run: func(t *domain.Task, _ time.Time) {
			t.Progress = ClampProgress(ResolveProgress(t.Progress, t.StageName, t.SubtaskCount, t.SubtaskCompletedCount))
		},
	},
	{
		out:  FieldRemainingHours,
		deps: []Field{FieldPlannedHours, FieldEffectiveHours},
		run: func(t *domain.Task, _ time.Time) {
			t.RemainingHours = RemainingHours(t.PlannedHours, t.EffectiveHours)
			if p, changed := AdjustForHours(t.Progress, t.EffectiveHours, t.PlannedHours, len(t.Subtasks) > 0); changed {
				t.Progress = p
			}
		},
	},
	{
		out:  FieldIsClosed,
		deps: []Field{FieldStage, FieldStageKind},
		run: func(t *domain.Task, _ time.Time) {
			t.IsClosed = IsClosedKind(t.StageKind)
		},
	},
	{
		out:  FieldDaysToDeadline,
		deps: []Field{FieldDeadline},
		run: func(t *domain.Task, now time.Time) {
			t.DaysToDeadline = DaysToDeadline(t.DateDeadline, now)
		},
	},
}

// AllInputs marks every input dirty, for freshly built tasks.
var AllInputs = []Field{FieldTimeLogs, FieldPlannedHours, FieldSubtasks, FieldStage, FieldStageKind, FieldDeadline}

// Recompute refreshes the derived fields that depend on changed, directly or
// transitively, and returns the derived fields it touched in order.
func Recompute(t *domain.Task, now time.Time, changed ...Field) []Field {
	dirty := make(map[Field]bool, len(changed))
	for _, f := range changed {
		dirty[f] = true
	}
	var ran []Field
	for _, r := range rules {
		for _, d := range r.deps {
			if dirty[d] {
				r.run(t, now)
				dirty[r.out] = true
				ran = append(ran, r.out)
				break
			}
		}
	}
	return ran
}
