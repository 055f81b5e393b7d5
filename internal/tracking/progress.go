package tracking

import (
	"math"

	"taskline/internal/domain"
)

// HoursHysteresis is the gap, in percentage points, the hours-based estimate
// must exceed before it overwrites the current progress.
const HoursHysteresis = 5.0

// StageEffect is what entering a named stage does to a task.
type StageEffect struct {
	Progress    float64
	KanbanState string
	StampEnd    bool
}

var stageEffects = map[string]StageEffect{
	"To-Do":       {Progress: 0, KanbanState: domain.KanbanNormal},
	"In Progress": {Progress: 40, KanbanState: domain.KanbanNormal},
	"Review":      {Progress: 70, KanbanState: domain.KanbanNormal},
	"Done":        {Progress: 100, KanbanState: domain.KanbanDone, StampEnd: true},
	"Cancelled":   {Progress: 0, KanbanState: domain.KanbanBlocked},
}

// StageEffectFor looks up a stage by exact name. Unknown names have no effect.
func StageEffectFor(name string) (StageEffect, bool) {
	e, ok := stageEffects[name]
	return e, ok
}

// SubtaskProgress is the completed share of subtasks as a percentage.
func SubtaskProgress(total, done int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// ResolveProgress picks subtask completion when subtasks exist, else the
// stage table. An unknown stage keeps current.
func ResolveProgress(current float64, stageName string, total, done int) float64 {
	if total > 0 {
		return SubtaskProgress(total, done)
	}
	if e, ok := StageEffectFor(stageName); ok {
		return e.Progress
	}
	return current
}

// HoursProgress is spent over planned, capped at 100.
func HoursProgress(effective, planned float64) float64 {
	if planned <= 0 {
		return 0
	}
	return math.Min(100, effective/planned*100)
}

// AdjustForHours nudges progress towards the hours estimate. It reports
// whether the value changed.
func AdjustForHours(current, effective, planned float64, hasSubtasks bool) (float64, bool) {
	if planned <= 0 || hasSubtasks {
		return current, false
	}
	hp := HoursProgress(effective, planned)
	if math.Abs(current-hp) > HoursHysteresis {
		return hp, true
	}
	return current, false
}

// ClampProgress keeps p inside [0, 100].
func ClampProgress(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}
