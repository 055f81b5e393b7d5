package tasklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	TaskType       string   `json:"task_type"`
	AssigneeID     *string  `json:"assignee_id,omitempty"`
	TeamID         *string  `json:"team_id,omitempty"`
	StageName      string   `json:"stage_name"`
	StageKind      string   `json:"stage_kind"`
	Priority       string   `json:"priority"`
	Tags           []string `json:"tags,omitempty"`
	Progress       float64  `json:"progress"`
	PlannedHours   float64  `json:"planned_hours"`
	EffectiveHours float64  `json:"effective_hours"`
	RemainingHours float64  `json:"remaining_hours"`
	IsClosed       bool     `json:"is_closed"`
	DateDeadline   *string  `json:"date_deadline,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// NewTask holds the create fields; nil pointers use server defaults.
type NewTask struct {
	Title        string   `json:"title"`
	Description  *string  `json:"description,omitempty"`
	TaskType     *string  `json:"task_type,omitempty"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	TeamID       *string  `json:"team_id,omitempty"`
	Priority     *string  `json:"priority,omitempty"`
	PlannedHours *float64 `json:"planned_hours,omitempty"`
	DateDeadline *string  `json:"date_deadline,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Subtasks     []string `json:"subtasks,omitempty"`
}

// TimeEntry is a time log draft.
type TimeEntry struct {
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

// TimeLog represents a stored entry with its display fields.
type TimeLog struct {
	ID           string  `json:"id"`
	TaskID       string  `json:"task_id"`
	SubtaskID    *string `json:"subtask_id,omitempty"`
	UserID       string  `json:"user_id"`
	Date         string  `json:"date"`
	Duration     float64 `json:"duration"`
	Description  string  `json:"description"`
	HoursDisplay string  `json:"hours_display"`
	DisplayName  string  `json:"display_name"`
	WorkSummary  string  `json:"work_summary"`
}

type Warning struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// LoggedTime is the result of logging time; warnings never block the save.
type LoggedTime struct {
	Entry    TimeLog   `json:"entry"`
	Warnings []Warning `json:"warnings"`
}

type TaskHours struct {
	TaskID  string  `json:"task_id"`
	Task    string  `json:"task"`
	Hours   float64 `json:"hours"`
	Entries int     `json:"entries"`
}

type WeeklySummary struct {
	UserID      string      `json:"user_id"`
	DateFrom    string      `json:"date_from"`
	DateTo      string      `json:"date_to"`
	TotalHours  float64     `json:"total_hours"`
	DaysWorked  int         `json:"days_worked"`
	TasksWorked int         `json:"tasks_worked"`
	Details     []TaskHours `json:"details"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ValidationCode returns the time-entry rule a 422 response reports, if any.
func ValidationCode(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return ""
	}
	code, _ := apiErr.Details["code"].(string)
	return code
}

// PaginatedTasks wraps list responses with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// GetTask fetches a task with its computed fields.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TasksPage returns one page of tasks matching query (e.g. stage, assignee_id).
func (c *Client) TasksPage(ctx context.Context, query url.Values, limit int, cursor string) (PaginatedTasks, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp, err
}

// SetStage moves a task to a stage by id or name.
func (c *Client) SetStage(ctx context.Context, taskID, stage string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/stage", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"stage": stage}, &resp)
	return resp, err
}

// MarkDone moves a task to the first done stage.
func (c *Client) MarkDone(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/done", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// LogTime records a time entry on a task.
func (c *Client) LogTime(ctx context.Context, taskID string, entry TimeEntry) (LoggedTime, error) {
	var resp LoggedTime
	endpoint := fmt.Sprintf("tasks/%s/time-logs", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, entry, &resp)
	return resp, err
}

// TimeLogs lists a task's entries, newest first.
func (c *Client) TimeLogs(ctx context.Context, taskID string) ([]TimeLog, float64, error) {
	var resp struct {
		Items      []TimeLog `json:"items"`
		TotalHours float64   `json:"total_hours"`
	}
	endpoint := fmt.Sprintf("tasks/%s/time-logs", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, resp.TotalHours, err
}

// DeleteTimeLog removes an entry.
func (c *Client) DeleteTimeLog(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "time-logs/"+url.PathEscape(id), nil, nil)
}

// WeeklySummary returns hours per task for a user; empty dates mean the current week.
func (c *Client) WeeklySummary(ctx context.Context, userID, from, to string) (WeeklySummary, error) {
	q := url.Values{}
	for k, v := range map[string]string{"user_id": userID, "from": from, "to": to} {
		if v != "" {
			q.Set(k, v)
		}
	}
	var resp WeeklySummary
	err := c.do(ctx, http.MethodGet, withQuery("summaries/weekly", q), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, url.Values{}, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, query url.Values, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
