package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
)

const taskColumns = `t.id,t.title,t.description,t.active,t.task_type,t.assignee_id,t.team_id,t.stage_id,s.name,s.kind,
t.kanban_state,t.priority,t.progress,t.planned_hours,t.effective_hours,t.remaining_hours,t.is_closed,t.allow_time_logs,
t.subtask_count,t.subtask_completed_count,t.days_to_deadline,t.date_start,t.date_deadline,t.date_assign,t.date_end,
COALESCE(t.template_name,''),t.created_by,t.created_at,t.updated_at`

const taskFrom = ` FROM tasks t JOIN stages s ON s.id=t.stage_id `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var assignee, team, start, deadline, assign, end sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Active, &t.TaskType, &assignee, &team, &t.StageID, &t.StageName, &t.StageKind,
		&t.KanbanState, &t.Priority, &t.Progress, &t.PlannedHours, &t.EffectiveHours, &t.RemainingHours, &t.IsClosed, &t.AllowTimeLogs,
		&t.SubtaskCount, &t.SubtaskCompletedCount, &t.DaysToDeadline, &start, &deadline, &assign, &end,
		&t.TemplateName, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.AssigneeID = stringPtr(assignee)
	t.TeamID = stringPtr(team)
	t.DateStart = stringPtr(start)
	t.DateDeadline = stringPtr(deadline)
	t.DateAssign = stringPtr(assign)
	t.DateEnd = stringPtr(end)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,active,task_type,assignee_id,team_id,stage_id,kanban_state,priority,
progress,planned_hours,effective_hours,remaining_hours,is_closed,allow_time_logs,subtask_count,subtask_completed_count,days_to_deadline,
date_start,date_deadline,date_assign,date_end,template_name,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, boolInt(t.Active), t.TaskType, nullableStringPtr(t.AssigneeID), nullableStringPtr(t.TeamID), t.StageID,
		t.KanbanState, t.Priority, t.Progress, t.PlannedHours, t.EffectiveHours, t.RemainingHours, boolInt(t.IsClosed), boolInt(t.AllowTimeLogs),
		t.SubtaskCount, t.SubtaskCompletedCount, t.DaysToDeadline, nullableStringPtr(t.DateStart), nullableStringPtr(t.DateDeadline),
		nullableStringPtr(t.DateAssign), nullableStringPtr(t.DateEnd), nullable(t.TemplateName), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if err := r.SetCollaborators(ctx, tx, t.ID, t.Collaborators); err != nil {
		return err
	}
	return r.SetTags(ctx, tx, t.ID, t.Tags)
}

// UpdateTask writes the stored scalar columns, derived values included.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, active=?, task_type=?, assignee_id=?, team_id=?, stage_id=?,
kanban_state=?, priority=?, progress=?, planned_hours=?, effective_hours=?, remaining_hours=?, is_closed=?, allow_time_logs=?,
subtask_count=?, subtask_completed_count=?, days_to_deadline=?, date_start=?, date_deadline=?, date_assign=?, date_end=?, updated_at=?
WHERE id=?`,
		t.Title, t.Description, boolInt(t.Active), t.TaskType, nullableStringPtr(t.AssigneeID), nullableStringPtr(t.TeamID), t.StageID,
		t.KanbanState, t.Priority, t.Progress, t.PlannedHours, t.EffectiveHours, t.RemainingHours, boolInt(t.IsClosed), boolInt(t.AllowTimeLogs),
		t.SubtaskCount, t.SubtaskCompletedCount, t.DaysToDeadline, nullableStringPtr(t.DateStart), nullableStringPtr(t.DateDeadline),
		nullableStringPtr(t.DateAssign), nullableStringPtr(t.DateEnd), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask loads a task with its collaborators, tags, subtasks and time logs.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

func (r Repo) getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+`WHERE t.id=?`, id))
	if err != nil {
		return t, err
	}
	if t.Collaborators, err = r.listCollaborators(ctx, q, id); err != nil {
		return t, err
	}
	if t.Tags, err = r.listTags(ctx, q, id); err != nil {
		return t, err
	}
	if t.Subtasks, err = r.listSubtasks(ctx, q, id); err != nil {
		return t, err
	}
	if t.TimeLogs, err = r.listTimeLogs(ctx, q, TimeLogFilters{TaskID: id}); err != nil {
		return t, err
	}
	return t, nil
}

type TaskFilters struct {
	AssigneeID string
	TeamID     string
	StageID    string
	TaskType   string
	Tag        string
	Closed     *bool
	Active     *bool
	// DeadlineBefore keeps tasks whose deadline is strictly earlier.
	DeadlineBefore string
	// DeadlineAfter keeps tasks whose deadline is on or after the value.
	DeadlineAfter string
	// VisibleTo keeps tasks the user created, is assigned to or collaborates
	// on, plus team tasks the user manages or belongs to (membership in a sub
	// team counts for every parent team). Empty skips the check.
	VisibleTo       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

const visibleTaskClause = `(t.created_by = ? OR t.assignee_id = ?
	OR EXISTS (SELECT 1 FROM task_collaborators tc WHERE tc.task_id = t.id AND tc.user_id = ?)
	OR t.team_id IN (SELECT id FROM teams WHERE manager_id = ?)
	OR t.team_id IN (
		WITH RECURSIVE up(id) AS (
			SELECT team_id FROM team_members WHERE user_id = ?
			UNION
			SELECT p.parent_team_id FROM teams p JOIN up ON p.id = up.id WHERE p.parent_team_id IS NOT NULL
		)
		SELECT id FROM up))`

func (f TaskFilters) where() (string, []any) {
	var clauses []string
	var args []any
	if f.AssigneeID != "" {
		clauses = append(clauses, "t.assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.TeamID != "" {
		clauses = append(clauses, "t.team_id=?")
		args = append(args, f.TeamID)
	}
	if f.StageID != "" {
		clauses = append(clauses, "t.stage_id=?")
		args = append(args, f.StageID)
	}
	if f.TaskType != "" {
		clauses = append(clauses, "t.task_type=?")
		args = append(args, f.TaskType)
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM task_tags tt WHERE tt.task_id=t.id AND tt.tag=?)")
		args = append(args, f.Tag)
	}
	if f.Closed != nil {
		clauses = append(clauses, "t.is_closed=?")
		args = append(args, boolInt(*f.Closed))
	}
	if f.Active != nil {
		clauses = append(clauses, "t.active=?")
		args = append(args, boolInt(*f.Active))
	}
	if f.DeadlineBefore != "" {
		clauses = append(clauses, "t.date_deadline IS NOT NULL AND t.date_deadline < ?")
		args = append(args, f.DeadlineBefore)
	}
	if f.DeadlineAfter != "" {
		clauses = append(clauses, "t.date_deadline IS NOT NULL AND t.date_deadline >= ?")
		args = append(args, f.DeadlineAfter)
	}
	if f.VisibleTo != "" {
		clauses = append(clauses, visibleTaskClause)
		for i := 0; i < 5; i++ {
			args = append(args, f.VisibleTo)
		}
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(t.created_at < ? OR (t.created_at = ? AND t.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListTasks returns task rows without subtasks or time logs.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	where, args := f.where()
	query := `SELECT ` + taskColumns + taskFrom + where + ` ORDER BY t.created_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Tags, err = r.listTags(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) CountTasks(ctx context.Context, f TaskFilters) (int, error) {
	where, args := f.where()
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*)`+taskFrom+where, args...).Scan(&n)
	return n, err
}

// ListTaskIDsByStage returns ids of every task on the stage.
func (r Repo) ListTaskIDsByStage(ctx context.Context, tx *sql.Tx, stageID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM tasks WHERE stage_id=? ORDER BY id`, stageID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// TaskTitles maps ids to titles; unknown ids are absent.
func (r Repo) TaskTitles(ctx context.Context, ids []string) (map[string]string, error) {
	res := map[string]string{}
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title FROM tasks WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		res[id] = title
	}
	return res, rows.Err()
}

func (r Repo) SetCollaborators(ctx context.Context, tx *sql.Tx, taskID string, users []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_collaborators WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_collaborators(task_id,user_id) VALUES (?,?)`, taskID, u); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listCollaborators(ctx context.Context, q querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM task_collaborators WHERE task_id=? ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) SetTags(ctx context.Context, tx *sql.Tx, taskID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_tags(task_id,tag) VALUES (?,?)`, taskID, tag); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listTags(ctx context.Context, q querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT tag FROM task_tags WHERE task_id=? ORDER BY tag`, taskID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// AddFollowers subscribes users to a task and returns the ones newly added.
func (r Repo) AddFollowers(ctx context.Context, tx *sql.Tx, taskID string, users []string) ([]string, error) {
	var added []string
	for _, u := range users {
		if u == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_followers(task_id,user_id) VALUES (?,?)`, taskID, u)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, u)
		}
	}
	return added, nil
}

func (r Repo) ListFollowers(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_followers WHERE task_id=? ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
