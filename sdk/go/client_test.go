package tasklinesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/server"
	"taskline/internal/tracking"
)

const secret = "sdk-secret"

func newClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default("sdk"))
	e.Now = func() time.Time { return time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC) }
	_, err = e.Init(context.Background(), "tester")
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := server.SignToken(secret, "tester", time.Hour)
	require.NoError(t, err)
	c := New(srv.URL)
	c.BearerToken = token
	c.HTTPClient = srv.Client()
	return c
}

func ptr[T any](v T) *T { return &v }

func TestClientTaskAndTimeFlow(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	task, err := c.CreateTask(ctx, NewTask{Title: "Write docs", PlannedHours: ptr(4.0)})
	require.NoError(t, err)
	assert.Equal(t, "To-Do", task.StageName)
	assert.Equal(t, 4.0, task.RemainingHours)

	logged, err := c.LogTime(ctx, task.ID, TimeEntry{
		Date:      ptr("2024-03-12"),
		TimeStart: ptr(9.0),
		TimeEnd:   ptr(10.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.5, logged.Entry.Duration)
	assert.Equal(t, "01:30", logged.Entry.HoursDisplay)
	assert.Empty(t, logged.Warnings)

	got, err := c.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.EffectiveHours)
	assert.Equal(t, 2.5, got.RemainingHours)

	logs, total, err := c.TimeLogs(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1.5, total)

	week, err := c.WeeklySummary(ctx, "", "2024-03-11", "2024-03-17")
	require.NoError(t, err)
	assert.Equal(t, 1.5, week.TotalHours)
	assert.Equal(t, 1, week.TasksWorked)

	done, err := c.MarkDone(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done.IsClosed)
	assert.Equal(t, 100.0, done.Progress)

	require.NoError(t, c.DeleteTimeLog(ctx, logs[0].ID))
	page, err := c.EventsPage(ctx, url.Values{"entity_kind": {"task"}, "entity_id": {task.ID}}, 50, "")
	require.NoError(t, err)
	assert.NotEmpty(t, page.Items)
}

func TestClientValidationError(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	task, err := c.CreateTask(ctx, NewTask{Title: "Review"})
	require.NoError(t, err)
	_, err = c.LogTime(ctx, task.ID, TimeEntry{Duration: ptr(0.0)})
	require.Error(t, err)
	assert.Equal(t, tracking.CodeInvalidDuration, ValidationCode(err))

	_, err = c.GetTask(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Empty(t, ValidationCode(err))
}

func TestClientRejectsMissingCredentials(t *testing.T) {
	c := newClient(t)
	c.BearerToken = ""
	_, err := c.Events(context.Background(), 10)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
