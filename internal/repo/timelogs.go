package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
)

const timeLogColumns = `id,task_id,subtask_id,user_id,description,date,duration,time_start,time_end,created_at,updated_at`

func (r Repo) InsertTimeLog(ctx context.Context, tx *sql.Tx, l domain.TimeLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_logs(`+timeLogColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.TaskID, nullableStringPtr(l.SubtaskID), l.UserID, l.Description, l.Date, l.Duration,
		nullableFloatPtr(l.TimeStart), nullableFloatPtr(l.TimeEnd), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) UpdateTimeLog(ctx context.Context, tx *sql.Tx, l domain.TimeLog) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_logs SET subtask_id=?, description=?, date=?, duration=?, time_start=?, time_end=?, updated_at=? WHERE id=?`,
		nullableStringPtr(l.SubtaskID), l.Description, l.Date, l.Duration, nullableFloatPtr(l.TimeStart), nullableFloatPtr(l.TimeEnd), l.UpdatedAt, l.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTimeLog(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_logs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTimeLog(ctx context.Context, tx *sql.Tx, id string) (domain.TimeLog, error) {
	l, err := scanTimeLog(r.q(tx).QueryRowContext(ctx, `SELECT `+timeLogColumns+` FROM time_logs WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

type TimeLogFilters struct {
	TaskID   string
	UserID   string
	DateFrom string
	DateTo   string
}

func (r Repo) ListTimeLogs(ctx context.Context, f TimeLogFilters) ([]domain.TimeLog, error) {
	return r.listTimeLogs(ctx, r.DB, f)
}

// listTimeLogs orders newest date first, then newest id.
func (r Repo) listTimeLogs(ctx context.Context, q querier, f TimeLogFilters) ([]domain.TimeLog, error) {
	var clauses []string
	var args []any
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.DateTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := q.QueryContext(ctx, `SELECT `+timeLogColumns+` FROM time_logs `+where+` ORDER BY date DESC, created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeLog
	for rows.Next() {
		l, err := scanTimeLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func scanTimeLog(row rowScanner) (domain.TimeLog, error) {
	var l domain.TimeLog
	var subtask sql.NullString
	var start, end sql.NullFloat64
	if err := row.Scan(&l.ID, &l.TaskID, &subtask, &l.UserID, &l.Description, &l.Date, &l.Duration, &start, &end, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return l, err
	}
	l.SubtaskID = stringPtr(subtask)
	l.TimeStart = floatPtr(start)
	l.TimeEnd = floatPtr(end)
	return l, nil
}
