package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

type taskBody struct {
	Body domain.Task `json:"body"`
}

func taskOut(t domain.Task) *taskBody {
	return &taskBody{Body: t}
}

var taskWriteErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func createOptions(in CreateTaskRequest, actorID string) engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:         in.Title,
		Description:   stringOrEmpty(in.Description),
		TaskType:      stringOrEmpty(in.TaskType),
		AssigneeID:    stringOrEmpty(in.AssigneeID),
		TeamID:        stringOrEmpty(in.TeamID),
		Collaborators: in.Collaborators,
		Stage:         stringOrEmpty(in.Stage),
		Priority:      stringOrEmpty(in.Priority),
		Progress:      in.Progress,
		PlannedHours:  in.PlannedHours,
		DateStart:     stringOrEmpty(in.DateStart),
		DateDeadline:  stringOrEmpty(in.DateDeadline),
		Tags:          in.Tags,
		AllowTimeLogs: in.AllowTimeLogs,
		Subtasks:      in.Subtasks,
		ActorID:       actorID,
	}
}

func parseBoolQuery(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	}
	return nil
}

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CreateTask(ctx, createOptions(input.Body, actorID))
		if err != nil {
			return nil, h.fail(err)
		}
		return taskOut(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task-from-template",
		Method:        http.MethodPost,
		Path:          "/templates/{name}/tasks",
		Summary:       "Create task from a configured template",
		DefaultStatus: http.StatusCreated,
		Errors:        taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		Name string            `path:"name"`
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CreateTaskFromTemplate(ctx, input.Name, createOptions(input.Body, actorID))
		if err != nil {
			return nil, h.fail(err)
		}
		return taskOut(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks visible to the caller",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssigneeID string `query:"assignee_id"`
		TeamID     string `query:"team_id"`
		Stage      string `query:"stage" doc:"stage id or name"`
		TaskType   string `query:"task_type"`
		Tag        string `query:"tag"`
		Closed     string `query:"closed"`
		Active     string `query:"active"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		f := repo.TaskFilters{
			AssigneeID:      input.AssigneeID,
			TeamID:          input.TeamID,
			TaskType:        input.TaskType,
			Tag:             input.Tag,
			Closed:          parseBoolQuery(input.Closed),
			Active:          parseBoolQuery(input.Active),
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		}
		if input.Stage != "" {
			stage, err := h.stageByRef(ctx, input.Stage)
			if err != nil {
				return nil, h.fail(err)
			}
			f.StageID = stage.ID
		}
		if f.VisibleTo, err = h.visibleTo(ctx, actorID); err != nil {
			return nil, h.fail(err)
		}
		items, err := h.e.ListTasks(ctx, f)
		if err != nil {
			return nil, h.fail(err)
		}
		resp := paginatedTasks{Items: []domain.Task{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task with subtasks and time logs",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, _, err := h.taskFor(ctx, input.TaskID, "task.read")
		if err != nil {
			return nil, h.fail(err)
		}
		return taskOut(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		b := input.Body
		t, err := h.e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:            input.TaskID,
			Title:         b.Title,
			Description:   b.Description,
			Priority:      b.Priority,
			PlannedHours:  b.PlannedHours,
			Progress:      b.Progress,
			DateStart:     b.DateStart,
			DateDeadline:  b.DateDeadline,
			AssigneeID:    b.AssigneeID,
			TeamID:        b.TeamID,
			TaskType:      b.TaskType,
			Stage:         b.Stage,
			KanbanState:   b.KanbanState,
			Collaborators: b.Collaborators,
			Tags:          b.Tags,
			AllowTimeLogs: b.AllowTimeLogs,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return taskOut(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-stage",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/stage",
		Summary:     "Move task to a stage",
		Errors:      taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   SetStageRequest `json:"body"`
	}) (*taskBody, error) {
		if strings.TrimSpace(input.Body.Stage) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "stage is required", nil)
		}
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		t, err := h.e.SetStage(ctx, input.TaskID, input.Body.Stage, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return taskOut(t), nil
	})

	actions := []struct {
		id, path, summary string
		run               func(context.Context, string, string) (domain.Task, error)
		status            int
	}{
		{"mark-task-done", "/tasks/{task_id}/done", "Move task to the first done stage", h.e.MarkDone, http.StatusOK},
		{"archive-task", "/tasks/{task_id}/archive", "Archive task", h.e.ArchiveTask, http.StatusOK},
		{"restore-task", "/tasks/{task_id}/restore", "Restore archived task", h.e.RestoreTask, http.StatusOK},
		{"copy-task", "/tasks/{task_id}/copy", "Copy task with its subtasks", h.e.CopyTask, http.StatusCreated},
	}
	for _, a := range actions {
		run := a.run
		huma.Register(api, huma.Operation{
			OperationID:   a.id,
			Method:        http.MethodPost,
			Path:          a.path,
			Summary:       a.summary,
			DefaultStatus: a.status,
			Errors:        taskWriteErrors,
		}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
			_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
			if err != nil {
				return nil, h.fail(err)
			}
			t, err := run(ctx, input.TaskID, actorID)
			if err != nil {
				return nil, h.fail(err)
			}
			return taskOut(t), nil
		})
	}
}

func (h handlers) stageByRef(ctx context.Context, ref string) (domain.Stage, error) {
	if s, err := h.e.Repo.GetStage(ctx, nil, ref); err == nil {
		return s, nil
	}
	return h.e.Repo.GetStageByName(ctx, nil, ref)
}

func registerStages(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List stages by sequence",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Stage `json:"body"`
	}, error) {
		stages, err := h.e.ListStages(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.Stage `json:"body"`
		}{Body: nonNilSlice(stages)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-stage-kind",
		Method:      http.MethodPut,
		Path:        "/stages/{stage}/kind",
		Summary:     "Change a stage kind and refresh closure of its tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Stage string              `path:"stage" doc:"stage id or name"`
		Body  SetStageKindRequest `json:"body"`
	}) (*struct {
		Body StageKindResponse `json:"body"`
	}, error) {
		actorID, err := h.requireAdmin(ctx, "stage.update")
		if err != nil {
			return nil, h.fail(err)
		}
		n, err := h.e.SetStageKind(ctx, input.Stage, input.Body.Kind, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body StageKindResponse `json:"body"`
		}{Body: StageKindResponse{Stage: input.Stage, Kind: input.Body.Kind, TasksRefreshed: n}}, nil
	})
}
