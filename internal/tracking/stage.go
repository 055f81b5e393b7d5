package tracking

import (
	"time"

	"taskline/internal/domain"
)

// IsClosedKind reports whether a stage kind closes its tasks.
func IsClosedKind(kind string) bool {
	return kind == domain.StageKindDone || kind == domain.StageKindCancelled
}

// ApplyStageEffects sets progress, kanban state and the end date for the
// task's current stage name. Unknown names leave the task untouched.
func ApplyStageEffects(t *domain.Task, now time.Time) {
	e, ok := StageEffectFor(t.StageName)
	if !ok {
		return
	}
	t.Progress = e.Progress
	t.KanbanState = e.KanbanState
	if e.StampEnd {
		end := now.UTC().Format(time.RFC3339)
		t.DateEnd = &end
	}
}

// MoveToStage points the task at stage. Callers run Recompute with FieldStage afterwards.
func MoveToStage(t *domain.Task, stage domain.Stage) {
	t.StageID = stage.ID
	t.StageName = stage.Name
	t.StageKind = stage.Kind
}

// DefaultStage is the stage named "To-Do", else the first open stage by sequence.
func DefaultStage(stages []domain.Stage) (domain.Stage, bool) {
	var first *domain.Stage
	for i := range stages {
		s := stages[i]
		if s.Name == "To-Do" {
			return s, true
		}
		if s.Kind == domain.StageKindOpen && (first == nil || s.Sequence < first.Sequence) {
			first = &stages[i]
		}
	}
	if first == nil {
		return domain.Stage{}, false
	}
	return *first, true
}

// FirstStageOfKind is the lowest-sequence stage with the given kind.
func FirstStageOfKind(stages []domain.Stage, kind string) (domain.Stage, bool) {
	var best *domain.Stage
	for i := range stages {
		if stages[i].Kind != kind {
			continue
		}
		if best == nil || stages[i].Sequence < best.Sequence {
			best = &stages[i]
		}
	}
	if best == nil {
		return domain.Stage{}, false
	}
	return *best, true
}
