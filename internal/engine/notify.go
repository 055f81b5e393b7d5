package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

// Notifier delivers task notifications. Implementations write inside the
// caller's transaction.
type Notifier interface {
	Subscribe(ctx context.Context, tx *sql.Tx, task domain.Task, actorID string, users []string) error
	PostOverdue(ctx context.Context, tx *sql.Tx, task domain.Task, actorID string) error
}

// EventNotifier keeps followers in SQL and records notifications as events,
// which the webhook dispatcher forwards.
type EventNotifier struct {
	Repo   repo.Repo
	Events events.Writer
}

func (n EventNotifier) Subscribe(ctx context.Context, tx *sql.Tx, task domain.Task, actorID string, users []string) error {
	added, err := n.Repo.AddFollowers(ctx, tx, task.ID, dedupe(users))
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return nil
	}
	return n.Events.Append(ctx, tx, events.TaskSubscribed, "task", task.ID, actorID, events.EventPayload{"users": added})
}

func (n EventNotifier) PostOverdue(ctx context.Context, tx *sql.Tx, task domain.Task, actorID string) error {
	deadline := ""
	if task.DateDeadline != nil {
		deadline = *task.DateDeadline
	}
	return n.Events.Append(ctx, tx, events.TaskOverdue, "task", task.ID, actorID, events.EventPayload{
		"title":    task.Title,
		"deadline": deadline,
		"message":  "Task '" + task.Title + "' is overdue!",
	})
}

// followersFor lists who should follow a task: its assignee, or for team
// tasks the manager and every member down the team tree.
func (e Engine) followersFor(ctx context.Context, tx *sql.Tx, t domain.Task) ([]string, error) {
	var users []string
	if t.AssigneeID != nil {
		users = append(users, *t.AssigneeID)
	}
	if t.TaskType == domain.TaskTypeTeam && t.TeamID != nil {
		team, err := e.Repo.GetTeam(ctx, tx, *t.TeamID)
		if err != nil {
			return nil, err
		}
		users = append(users, team.ManagerID)
		members, err := e.Repo.AllTeamMembers(ctx, tx, team.ID)
		if err != nil {
			return nil, err
		}
		users = append(users, members...)
	}
	return dedupe(users), nil
}

// NotifyOverdue posts an overdue notice on every open active task whose
// deadline has passed and returns those tasks.
func (e Engine) NotifyOverdue(ctx context.Context, actorID string) ([]domain.Task, error) {
	open, active := false, true
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
		Closed:         &open,
		Active:         &active,
		DeadlineBefore: e.stamp(),
	})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []domain.Task{}, nil
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for i := range tasks {
		tasks[i].DaysToDeadline = tracking.DaysToDeadline(tasks[i].DateDeadline, e.now())
		if err := e.notifier().PostOverdue(ctx, tx, tasks[i], actorID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.log().Info("overdue notices posted", zap.Int("count", len(tasks)))
	return tasks, nil
}

// DueSoon lists open active tasks whose deadline falls within the next
// days days. days <= 0 uses settings.deadline_reminder_days. A non-empty
// visibleTo limits the list to tasks that user may see.
func (e Engine) DueSoon(ctx context.Context, days int, visibleTo string) ([]domain.Task, error) {
	if days <= 0 {
		days = e.settings().DeadlineReminderDays
	}
	if days <= 0 {
		days = 1
	}
	now := e.now().UTC()
	open, active := false, true
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
		Closed:         &open,
		Active:         &active,
		DeadlineAfter:  now.Format(time.RFC3339),
		DeadlineBefore: now.AddDate(0, 0, days).Format(time.RFC3339),
		VisibleTo:      visibleTo,
	})
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].DaysToDeadline = tracking.DaysToDeadline(tasks[i].DateDeadline, now)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}
