package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

const recurrenceColumns = `id, recurrence_type, repeat_interval, end_type, repeat_count, end_date, created_by, created_at`

func (r Repo) InsertRecurrence(ctx context.Context, tx *sql.Tx, rec domain.Recurrence) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO recurrences(`+recurrenceColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Type, rec.Interval, rec.EndType, rec.Count, nullableStringPtr(rec.EndDate), rec.CreatedBy, rec.CreatedAt)
	return err
}

func (r Repo) UpdateRecurrence(ctx context.Context, tx *sql.Tx, rec domain.Recurrence) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE recurrences SET recurrence_type=?, repeat_interval=?, end_type=?, repeat_count=?, end_date=? WHERE id=?`,
		rec.Type, rec.Interval, rec.EndType, rec.Count, nullableStringPtr(rec.EndDate), rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRecurrence(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM recurrences WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecurrence loads a rule with its task ids, oldest task first.
func (r Repo) GetRecurrence(ctx context.Context, tx *sql.Tx, id string) (domain.Recurrence, error) {
	q := r.q(tx)
	rec, err := scanRecurrence(q.QueryRowContext(ctx, `SELECT `+recurrenceColumns+` FROM recurrences WHERE id=?`, id))
	if err != nil {
		return rec, err
	}
	rec.TaskIDs, err = r.recurrenceTaskIDs(ctx, q, id)
	return rec, err
}

// RecurrenceIDForTask reports the series a task belongs to.
func (r Repo) RecurrenceIDForTask(ctx context.Context, tx *sql.Tx, taskID string) (string, error) {
	var id string
	err := r.q(tx).QueryRowContext(ctx, `SELECT recurrence_id FROM recurrence_tasks WHERE task_id=?`, taskID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

func (r Repo) ListRecurrenceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM recurrences ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) LinkRecurrenceTask(ctx context.Context, tx *sql.Tx, recurrenceID, taskID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO recurrence_tasks(task_id, recurrence_id) VALUES (?,?)`, taskID, recurrenceID)
	return err
}

// LatestRecurrenceTask returns the series task with the latest deadline.
// Series without any deadline report ErrNotFound.
func (r Repo) LatestRecurrenceTask(ctx context.Context, tx *sql.Tx, recurrenceID string) (string, error) {
	var id string
	err := r.q(tx).QueryRowContext(ctx, `SELECT t.id FROM recurrence_tasks rt
		JOIN tasks t ON t.id = rt.task_id
		WHERE rt.recurrence_id=? AND t.date_deadline IS NOT NULL
		ORDER BY t.date_deadline DESC, t.rowid DESC LIMIT 1`, recurrenceID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

func (r Repo) recurrenceTaskIDs(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT rt.task_id FROM recurrence_tasks rt
		JOIN tasks t ON t.id = rt.task_id
		WHERE rt.recurrence_id=? ORDER BY t.created_at, t.rowid`, id)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func scanRecurrence(row *sql.Row) (domain.Recurrence, error) {
	var rec domain.Recurrence
	var end sql.NullString
	err := row.Scan(&rec.ID, &rec.Type, &rec.Interval, &rec.EndType, &rec.Count, &end, &rec.CreatedBy, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	rec.EndDate = stringPtr(end)
	return rec, err
}
