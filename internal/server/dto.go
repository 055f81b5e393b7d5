package server

import (
	"encoding/json"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/tracking"
)

// Request payloads

type CreateTaskRequest struct {
	Title         string   `json:"title"`
	Description   *string  `json:"description,omitempty"`
	TaskType      *string  `json:"task_type,omitempty" enum:"individual,team"`
	AssigneeID    *string  `json:"assignee_id,omitempty"`
	TeamID        *string  `json:"team_id,omitempty"`
	Collaborators []string `json:"collaborators,omitempty"`
	Stage         *string  `json:"stage,omitempty"`
	Priority      *string  `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	Progress      *float64 `json:"progress,omitempty" minimum:"0" maximum:"100"`
	PlannedHours  *float64 `json:"planned_hours,omitempty" minimum:"0"`
	DateStart     *string  `json:"date_start,omitempty"`
	DateDeadline  *string  `json:"date_deadline,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	AllowTimeLogs *bool    `json:"allow_time_logs,omitempty"`
	Subtasks      []string `json:"subtasks,omitempty"`
}

type UpdateTaskRequest struct {
	Title         *string  `json:"title,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Priority      *string  `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	PlannedHours  *float64 `json:"planned_hours,omitempty" minimum:"0"`
	Progress      *float64 `json:"progress,omitempty" minimum:"0" maximum:"100"`
	DateStart     *string  `json:"date_start,omitempty"`
	DateDeadline  *string  `json:"date_deadline,omitempty"`
	AssigneeID    *string  `json:"assignee_id,omitempty"`
	TeamID        *string  `json:"team_id,omitempty"`
	TaskType      *string  `json:"task_type,omitempty" enum:"individual,team"`
	Stage         *string  `json:"stage,omitempty"`
	KanbanState   *string  `json:"kanban_state,omitempty" enum:"normal,done,blocked"`
	Collaborators []string `json:"collaborators,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	AllowTimeLogs *bool    `json:"allow_time_logs,omitempty"`
}

type SetStageRequest struct {
	Stage string `json:"stage"`
}

// DatePreviewRequest overrides the task's stored dates when set.
type DatePreviewRequest struct {
	DateStart       *string `json:"date_start,omitempty"`
	DateDeadline    *string `json:"date_deadline,omitempty"`
	SubtaskDeadline *string `json:"subtask_deadline,omitempty"`
}

type DatePreviewResponse struct {
	Warnings []tracking.Warning `json:"warnings"`
	OK       bool               `json:"ok"`
}

type SubtaskRequest struct {
	Name        string   `json:"name"`
	Deadline    *string  `json:"deadline,omitempty"`
	Description *string  `json:"description,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

type UpdateSubtaskRequest struct {
	Name        *string  `json:"name,omitempty"`
	Deadline    *string  `json:"deadline,omitempty"`
	Description *string  `json:"description,omitempty"`
	IsDone      *bool    `json:"is_done,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

type TimeLogRequest struct {
	SubtaskID           *string  `json:"subtask_id,omitempty"`
	UserID              *string  `json:"user_id,omitempty"`
	Date                *string  `json:"date,omitempty"`
	Duration            *float64 `json:"duration,omitempty"`
	QuickTime           *string  `json:"quick_time,omitempty"`
	TimeStart           *float64 `json:"time_start,omitempty"`
	TimeEnd             *float64 `json:"time_end,omitempty"`
	Description         *string  `json:"description,omitempty"`
	SkipDurationWarning bool     `json:"skip_duration_warning,omitempty"`
}

type UpdateTimeLogRequest struct {
	SubtaskID           *string  `json:"subtask_id,omitempty"`
	Date                *string  `json:"date,omitempty"`
	Duration            *float64 `json:"duration,omitempty"`
	QuickTime           *string  `json:"quick_time,omitempty"`
	TimeStart           *float64 `json:"time_start,omitempty"`
	TimeEnd             *float64 `json:"time_end,omitempty"`
	Description         *string  `json:"description,omitempty"`
	SkipDurationWarning bool     `json:"skip_duration_warning,omitempty"`
}

type SetStageKindRequest struct {
	Kind string `json:"kind" enum:"open,done,cancelled"`
}

type CreateTeamRequest struct {
	Name         string   `json:"name"`
	ManagerID    string   `json:"manager_id"`
	ParentTeamID *string  `json:"parent_team_id,omitempty"`
	MemberIDs    []string `json:"member_ids,omitempty"`
}

type UpdateTeamRequest struct {
	Name         *string  `json:"name,omitempty"`
	ManagerID    *string  `json:"manager_id,omitempty"`
	ParentTeamID *string  `json:"parent_team_id,omitempty"`
	MemberIDs    []string `json:"member_ids,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

type UpdateUserRequest struct {
	Active *bool `json:"active,omitempty"`
}

// RecurrenceRequest sets a task's repeat rule; empty fields take defaults.
type RecurrenceRequest struct {
	RecurrenceType string `json:"recurrence_type,omitempty" enum:"daily,weekly,monthly,yearly"`
	Interval       int    `json:"interval,omitempty" minimum:"1"`
	EndType        string `json:"end_type,omitempty" enum:"count,end_date,forever"`
	Count          int    `json:"count,omitempty"`
	EndDate        string `json:"end_date,omitempty" format:"date"`
}

type NextRecurrenceResponse struct {
	Created bool         `json:"created"`
	Task    *domain.Task `json:"task,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
	Admin  bool   `json:"admin"`
}

type StageKindResponse struct {
	Stage          string `json:"stage"`
	Kind           string `json:"kind"`
	TasksRefreshed int    `json:"tasks_refreshed"`
}

type PreviewResponse struct {
	tracking.Preview
	OK bool `json:"ok"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedTasks struct {
	Items      []domain.Task `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type timeLogList struct {
	Items      []engine.TimeLogView `json:"items"`
	TotalHours float64              `json:"total_hours"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
