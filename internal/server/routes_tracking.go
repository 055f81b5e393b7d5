package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/tracking"
)

type subtaskBody struct {
	Body domain.Subtask `json:"body"`
}

type timeLogBody struct {
	Body engine.TimeLogResult `json:"body"`
}

// subtaskFor resolves a subtask's parent task and checks access to it.
func (h handlers) subtaskFor(ctx context.Context, id string) (domain.Subtask, string, error) {
	s, err := h.e.Repo.GetSubtask(ctx, nil, id)
	if err != nil {
		return s, "", err
	}
	_, actorID, err := h.taskFor(ctx, s.TaskID, "task.update")
	return s, actorID, err
}

// timeLogFor checks task access and, for someone else's entry, admin rights.
func (h handlers) timeLogFor(ctx context.Context, id string) (domain.TimeLog, string, error) {
	l, err := h.e.Repo.GetTimeLog(ctx, nil, id)
	if err != nil {
		return l, "", err
	}
	_, actorID, err := h.taskFor(ctx, l.TaskID, "timelog.update")
	if err != nil {
		return l, "", err
	}
	if err := h.requireSelfOrAdmin(ctx, actorID, l.UserID, "timelog.update"); err != nil {
		return l, "", err
	}
	return l, actorID, nil
}

func registerSubtasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Add subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   SubtaskRequest `json:"body"`
	}) (*subtaskBody, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.update")
		if err != nil {
			return nil, h.fail(err)
		}
		s, err := h.e.AddSubtask(ctx, engine.SubtaskOptions{
			TaskID:      input.TaskID,
			Name:        input.Body.Name,
			Deadline:    stringOrEmpty(input.Body.Deadline),
			Description: stringOrEmpty(input.Body.Description),
			AssigneeIDs: input.Body.AssigneeIDs,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &subtaskBody{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-subtask",
		Method:      http.MethodPatch,
		Path:        "/subtasks/{subtask_id}",
		Summary:     "Update subtask",
		Errors:      taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		SubtaskID string               `path:"subtask_id"`
		Body      UpdateSubtaskRequest `json:"body"`
	}) (*subtaskBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		_, actorID, err := h.subtaskFor(ctx, input.SubtaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		s, err := h.e.UpdateSubtask(ctx, engine.SubtaskUpdateOptions{
			ID:          input.SubtaskID,
			Name:        input.Body.Name,
			Deadline:    input.Body.Deadline,
			Description: input.Body.Description,
			IsDone:      input.Body.IsDone,
			AssigneeIDs: input.Body.AssigneeIDs,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &subtaskBody{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-subtask",
		Method:        http.MethodDelete,
		Path:          "/subtasks/{subtask_id}",
		Summary:       "Delete subtask; its time logs stay on the task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubtaskID string `path:"subtask_id"`
	}) (*struct{}, error) {
		_, actorID, err := h.subtaskFor(ctx, input.SubtaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := h.e.DeleteSubtask(ctx, input.SubtaskID, actorID); err != nil {
			return nil, h.fail(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-task-dates",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/dates/preview",
		Summary:     "Check task dates and a subtask deadline without saving",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string             `path:"task_id"`
		Body   DatePreviewRequest `json:"body"`
	}) (*struct {
		Body DatePreviewResponse `json:"body"`
	}, error) {
		t, _, err := h.taskFor(ctx, input.TaskID, "task.read")
		if err != nil {
			return nil, h.fail(err)
		}
		start, deadline := t.DateStart, t.DateDeadline
		if input.Body.DateStart != nil {
			start = input.Body.DateStart
		}
		if input.Body.DateDeadline != nil {
			deadline = input.Body.DateDeadline
		}
		warnings := tracking.PreviewTaskDates(start, deadline)
		if input.Body.SubtaskDeadline != nil {
			warnings = append(warnings, tracking.PreviewSubtaskDeadline(input.Body.SubtaskDeadline, start, deadline)...)
		}
		return &struct {
			Body DatePreviewResponse `json:"body"`
		}{Body: DatePreviewResponse{Warnings: warnings, OK: len(warnings) == 0}}, nil
	})
}

func logOptions(taskID, actorID string, in TimeLogRequest) engine.LogTimeOptions {
	opts := engine.LogTimeOptions{
		TaskID:              taskID,
		SubtaskID:           stringOrEmpty(in.SubtaskID),
		UserID:              stringOrEmpty(in.UserID),
		Date:                stringOrEmpty(in.Date),
		QuickTime:           stringOrEmpty(in.QuickTime),
		TimeStart:           in.TimeStart,
		TimeEnd:             in.TimeEnd,
		Description:         stringOrEmpty(in.Description),
		SkipDurationWarning: in.SkipDurationWarning,
		ActorID:             actorID,
	}
	if opts.UserID == "" {
		opts.UserID = actorID
	}
	if in.Duration != nil {
		opts.Duration = *in.Duration
	}
	return opts
}

func registerTimeLogs(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-time",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/time-logs",
		Summary:       "Log time on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   TimeLogRequest `json:"body"`
	}) (*timeLogBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		_, actorID, err := h.taskFor(ctx, input.TaskID, "timelog.create")
		if err != nil {
			return nil, h.fail(err)
		}
		opts := logOptions(input.TaskID, actorID, input.Body)
		if err := h.requireSelfOrAdmin(ctx, actorID, opts.UserID, "timelog.create"); err != nil {
			return nil, h.fail(err)
		}
		res, err := h.e.LogTime(ctx, opts)
		if err != nil {
			return nil, h.fail(err)
		}
		return &timeLogBody{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-time-log",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/time-logs/preview",
		Summary:     "Check a draft time log without saving it",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   TimeLogRequest `json:"body"`
	}) (*struct {
		Body PreviewResponse `json:"body"`
	}, error) {
		_, actorID, err := h.taskFor(ctx, input.TaskID, "task.read")
		if err != nil {
			return nil, h.fail(err)
		}
		p, err := h.e.PreviewTimeLog(ctx, logOptions(input.TaskID, actorID, input.Body))
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body PreviewResponse `json:"body"`
		}{Body: PreviewResponse{Preview: p, OK: p.OK()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-time-logs",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/time-logs",
		Summary:     "List a task's time logs, newest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body timeLogList `json:"body"`
	}, error) {
		if _, _, err := h.taskFor(ctx, input.TaskID, "task.read"); err != nil {
			return nil, h.fail(err)
		}
		return h.listTimeLogs(ctx, engine.TimeLogFilter{TaskID: input.TaskID})
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-time-logs",
		Method:      http.MethodGet,
		Path:        "/time-logs",
		Summary:     "List a user's time logs in a date range",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		From   string `query:"from" doc:"YYYY-MM-DD"`
		To     string `query:"to" doc:"YYYY-MM-DD"`
	}) (*struct {
		Body timeLogList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if userID == "" {
			userID = actorID
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, userID, "timelog.read"); err != nil {
			return nil, h.fail(err)
		}
		return h.listTimeLogs(ctx, engine.TimeLogFilter{UserID: userID, DateFrom: input.From, DateTo: input.To})
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-time-log",
		Method:      http.MethodPatch,
		Path:        "/time-logs/{log_id}",
		Summary:     "Update time log",
		Errors:      taskWriteErrors,
	}, func(ctx context.Context, input *struct {
		LogID string               `path:"log_id"`
		Body  UpdateTimeLogRequest `json:"body"`
	}) (*timeLogBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		_, actorID, err := h.timeLogFor(ctx, input.LogID)
		if err != nil {
			return nil, h.fail(err)
		}
		b := input.Body
		res, err := h.e.UpdateTimeLog(ctx, engine.TimeLogUpdateOptions{
			ID:                  input.LogID,
			SubtaskID:           b.SubtaskID,
			Date:                b.Date,
			Duration:            b.Duration,
			QuickTime:           stringOrEmpty(b.QuickTime),
			TimeStart:           b.TimeStart,
			TimeEnd:             b.TimeEnd,
			Description:         b.Description,
			SkipDurationWarning: b.SkipDurationWarning,
			ActorID:             actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &timeLogBody{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-time-log",
		Method:        http.MethodDelete,
		Path:          "/time-logs/{log_id}",
		Summary:       "Delete time log",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LogID string `path:"log_id"`
	}) (*struct{}, error) {
		_, actorID, err := h.timeLogFor(ctx, input.LogID)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := h.e.DeleteTimeLog(ctx, input.LogID, actorID); err != nil {
			return nil, h.fail(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) listTimeLogs(ctx context.Context, f engine.TimeLogFilter) (*struct {
	Body timeLogList `json:"body"`
}, error) {
	logs, err := h.e.ListTimeLogs(ctx, f)
	if err != nil {
		return nil, h.fail(err)
	}
	out := timeLogList{Items: nonNilSlice(logs)}
	for _, l := range logs {
		out.TotalHours += l.Duration
	}
	return &struct {
		Body timeLogList `json:"body"`
	}{Body: out}, nil
}

func registerSummaries(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "task-time-summary",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/summary",
		Summary:     "Planned versus spent hours, grouped by subtask",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body tracking.TimeTrackingSummary `json:"body"`
	}, error) {
		if _, _, err := h.taskFor(ctx, input.TaskID, "task.read"); err != nil {
			return nil, h.fail(err)
		}
		sum, err := h.e.TimeTrackingSummary(ctx, input.TaskID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body tracking.TimeTrackingSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "weekly-summary",
		Method:      http.MethodGet,
		Path:        "/summaries/weekly",
		Summary:     "Hours per task for a user; defaults to the current week",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		From   string `query:"from" doc:"YYYY-MM-DD"`
		To     string `query:"to" doc:"YYYY-MM-DD"`
	}) (*struct {
		Body tracking.WeeklySummary `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if userID == "" {
			userID = actorID
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, userID, "summary.read"); err != nil {
			return nil, h.fail(err)
		}
		sum, err := h.e.WeeklySummary(ctx, userID, input.From, input.To)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body tracking.WeeklySummary `json:"body"`
		}{Body: sum}, nil
	})
}
