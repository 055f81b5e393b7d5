package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO stages(id,name,kind,sequence,fold) VALUES (?,?,?,?,?)`,
		s.ID, s.Name, s.Kind, s.Sequence, boolInt(s.Fold))
	return err
}

// EnsureStage inserts the stage unless one with the same name exists.
func (r Repo) EnsureStage(ctx context.Context, tx *sql.Tx, s domain.Stage) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO stages(id,name,kind,sequence,fold) VALUES (?,?,?,?,?)`,
		s.ID, s.Name, s.Kind, s.Sequence, boolInt(s.Fold))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) UpdateStageKind(ctx context.Context, tx *sql.Tx, id, kind string) error {
	res, err := tx.ExecContext(ctx, `UPDATE stages SET kind=? WHERE id=?`, kind, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListStages(ctx context.Context, tx *sql.Tx) ([]domain.Stage, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,name,kind,sequence,fold FROM stages ORDER BY sequence, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.Name, &s.Kind, &s.Sequence, &s.Fold); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetStage(ctx context.Context, tx *sql.Tx, id string) (domain.Stage, error) {
	return scanStage(r.q(tx).QueryRowContext(ctx, `SELECT id,name,kind,sequence,fold FROM stages WHERE id=?`, id))
}

func (r Repo) GetStageByName(ctx context.Context, tx *sql.Tx, name string) (domain.Stage, error) {
	return scanStage(r.q(tx).QueryRowContext(ctx, `SELECT id,name,kind,sequence,fold FROM stages WHERE name=?`, name))
}

func scanStage(row *sql.Row) (domain.Stage, error) {
	var s domain.Stage
	err := row.Scan(&s.ID, &s.Name, &s.Kind, &s.Sequence, &s.Fold)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}
