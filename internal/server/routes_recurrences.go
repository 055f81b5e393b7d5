package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

type recurrenceBody struct {
	Body domain.Recurrence `json:"body"`
}

func registerRecurrences(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "set-recurrence",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/recurrence",
		Summary:     "Make a task repeat, or change the rule of its series",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   RecurrenceRequest `json:"body"`
	}) (*recurrenceBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		rec, err := h.e.SetRecurrence(ctx, engine.RecurrenceOptions{
			TaskID:   input.TaskID,
			Type:     input.Body.RecurrenceType,
			Interval: input.Body.Interval,
			EndType:  input.Body.EndType,
			Count:    input.Body.Count,
			EndDate:  input.Body.EndDate,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &recurrenceBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-recurrence",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/recurrence",
		Summary:     "Get the series a task belongs to",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*recurrenceBody, error) {
		if _, _, err := h.taskFor(ctx, input.TaskID, "task.read"); err != nil {
			return nil, h.fail(err)
		}
		rec, err := h.e.RecurrenceForTask(ctx, input.TaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &recurrenceBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "stop-recurrence",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}/recurrence",
		Summary:       "Stop a series; created tasks stay",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		rec, err := h.e.RecurrenceForTask(ctx, input.TaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := h.e.StopRecurrence(ctx, rec.ID, actorID); err != nil {
			return nil, h.fail(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-recurrence",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/recurrence/next",
		Summary:     "Create the next task of the series if its end condition allows",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body NextRecurrenceResponse `json:"body"`
	}, error) {
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		rec, err := h.e.RecurrenceForTask(ctx, input.TaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		t, created, err := h.e.CreateNextRecurringTask(ctx, rec.ID, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		resp := NextRecurrenceResponse{Created: created}
		if created {
			resp.Task = &t
		}
		return &struct {
			Body NextRecurrenceResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-recurrences",
		Method:      http.MethodGet,
		Path:        "/recurrences",
		Summary:     "List every series with its next date",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Recurrence `json:"body"`
	}, error) {
		if _, err := h.requireAdmin(ctx, "recurrence.list"); err != nil {
			return nil, h.fail(err)
		}
		recs, err := h.e.ListRecurrences(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.Recurrence `json:"body"`
		}{Body: recs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-recurrences",
		Method:      http.MethodPost,
		Path:        "/recurrences/run",
		Summary:     "Advance every series by at most one task",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actorID, err := h.requireAdmin(ctx, "recurrence.run")
		if err != nil {
			return nil, h.fail(err)
		}
		tasks, err := h.e.RunRecurrences(ctx, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})
}
