package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

// EnsureUser inserts the user when missing and reports whether it did.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) (bool, error) {
	if u.Name == "" {
		u.Name = u.ID
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO users(id,name,active,admin,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, boolInt(u.Active), boolInt(u.Admin), u.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) SetUserAdmin(ctx context.Context, tx *sql.Tx, id string, admin bool) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET admin=? WHERE id=?`, boolInt(admin), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetUserActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	var u domain.User
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,active,admin,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Active, &u.Admin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,active,admin,created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Active, &u.Admin, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
