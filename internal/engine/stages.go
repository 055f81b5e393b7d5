package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/tracking"
)

var stageKinds = map[string]bool{
	domain.StageKindOpen: true, domain.StageKindDone: true, domain.StageKindCancelled: true,
}

func (e Engine) ListStages(ctx context.Context) ([]domain.Stage, error) {
	stages, err := e.Repo.ListStages(ctx, nil)
	if err != nil {
		return nil, err
	}
	if stages == nil {
		stages = []domain.Stage{}
	}
	return stages, nil
}

// SetStageKind changes a stage's kind and refreshes is_closed on every task in it.
// It returns the number of tasks touched.
func (e Engine) SetStageKind(ctx context.Context, ref, kind, actorID string) (int, error) {
	if !stageKinds[kind] {
		return 0, invalidInput("invalid stage kind %q", kind)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stage, err := e.resolveStage(ctx, tx, ref)
	if err != nil {
		return 0, err
	}
	if stage.Kind == kind {
		return 0, nil
	}
	if err := e.Repo.UpdateStageKind(ctx, tx, stage.ID, kind); err != nil {
		return 0, err
	}
	ids, err := e.Repo.ListTaskIDsByStage(ctx, tx, stage.ID)
	if err != nil {
		return 0, err
	}
	stamp := e.stamp()
	for _, id := range ids {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return 0, fmt.Errorf("task %s: %w", id, err)
		}
		tracking.Recompute(&t, e.now(), tracking.FieldStageKind)
		t.UpdatedAt = stamp
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return 0, err
		}
	}
	if err := e.appendEvent(ctx, tx, events.StageKindChanged, "stage", stage.ID, actorID, events.EventPayload{
		"name": stage.Name, "from": stage.Kind, "to": kind, "tasks": len(ids),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.log().Info("stage kind changed", zap.String("stage", stage.Name), zap.String("kind", kind), zap.Int("tasks", len(ids)))
	return len(ids), nil
}
