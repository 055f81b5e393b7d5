package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertSubtask(ctx context.Context, tx *sql.Tx, s domain.Subtask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subtasks(id,task_id,name,sequence,is_done,deadline,description) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.Name, s.Sequence, boolInt(s.IsDone), nullableStringPtr(s.Deadline), s.Description)
	if err != nil {
		return err
	}
	return r.setSubtaskAssignees(ctx, tx, s.ID, s.AssigneeIDs)
}

func (r Repo) UpdateSubtask(ctx context.Context, tx *sql.Tx, s domain.Subtask) error {
	res, err := tx.ExecContext(ctx, `UPDATE subtasks SET name=?, sequence=?, is_done=?, deadline=?, description=? WHERE id=?`,
		s.Name, s.Sequence, boolInt(s.IsDone), nullableStringPtr(s.Deadline), s.Description, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.setSubtaskAssignees(ctx, tx, s.ID, s.AssigneeIDs)
}

func (r Repo) DeleteSubtask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSubtask(ctx context.Context, tx *sql.Tx, id string) (domain.Subtask, error) {
	q := r.q(tx)
	var s domain.Subtask
	var deadline sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,task_id,name,sequence,is_done,deadline,description FROM subtasks WHERE id=?`, id).
		Scan(&s.ID, &s.TaskID, &s.Name, &s.Sequence, &s.IsDone, &deadline, &s.Description)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Deadline = stringPtr(deadline)
	s.AssigneeIDs, err = r.listSubtaskAssignees(ctx, q, s.ID)
	return s, err
}

func (r Repo) listSubtasks(ctx context.Context, q querier, taskID string) ([]domain.Subtask, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,task_id,name,sequence,is_done,deadline,description FROM subtasks WHERE task_id=? ORDER BY sequence, id`, taskID)
	if err != nil {
		return nil, err
	}
	var res []domain.Subtask
	for rows.Next() {
		var s domain.Subtask
		var deadline sql.NullString
		if err := rows.Scan(&s.ID, &s.TaskID, &s.Name, &s.Sequence, &s.IsDone, &deadline, &s.Description); err != nil {
			rows.Close()
			return nil, err
		}
		s.Deadline = stringPtr(deadline)
		res = append(res, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// assignees are read after the cursor is closed; the pool holds one connection
	for i := range res {
		if res[i].AssigneeIDs, err = r.listSubtaskAssignees(ctx, q, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// NextSubtaskSequence returns a sequence after the task's last subtask.
func (r Repo) NextSubtaskSequence(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var seq int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence),0)+10 FROM subtasks WHERE task_id=?`, taskID).Scan(&seq)
	return seq, err
}

func (r Repo) setSubtaskAssignees(ctx context.Context, tx *sql.Tx, subtaskID string, users []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subtask_assignees WHERE subtask_id=?`, subtaskID); err != nil {
		return err
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO subtask_assignees(subtask_id,user_id) VALUES (?,?)`, subtaskID, u); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listSubtaskAssignees(ctx context.Context, q querier, subtaskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM subtask_assignees WHERE subtask_id=? ORDER BY user_id`, subtaskID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
