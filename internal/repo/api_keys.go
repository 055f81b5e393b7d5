package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"taskline/internal/domain"
)

const apiKeyColumns = `id, user_id, COALESCE(name,''), created_at, last_used_at, revoked_at`

// HashAPIKey is the stored form of a raw key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func scanAPIKey(row interface{ Scan(...any) error }) (domain.APIKey, error) {
	var k domain.APIKey
	var used, revoked sql.NullString
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.CreatedAt, &used, &revoked); err != nil {
		if err == sql.ErrNoRows {
			return k, ErrNotFound
		}
		return k, err
	}
	k.LastUsedAt = stringPtr(used)
	k.RevokedAt = stringPtr(revoked)
	return k, nil
}

func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, k domain.APIKey) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO api_keys(id,user_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.UserID, nullable(k.Name), k.KeyHash, k.CreatedAt)
	return err
}

// UseAPIKey resolves a hashed key to its owner and stamps last_used_at.
// Revoked keys and keys of inactive users report ErrNotFound.
func (r Repo) UseAPIKey(ctx context.Context, hash, at string) (domain.APIKey, error) {
	return scanAPIKey(r.DB.QueryRowContext(ctx, `UPDATE api_keys SET last_used_at=?
		WHERE key_hash=? AND revoked_at IS NULL
		  AND user_id IN (SELECT id FROM users WHERE active=1)
		RETURNING `+apiKeyColumns, at, hash))
}

func (r Repo) GetAPIKey(ctx context.Context, tx *sql.Tx, id string) (domain.APIKey, error) {
	return scanAPIKey(r.q(tx).QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id=?`, id))
}

// ListAPIKeys returns a user's keys, newest first, revoked ones included.
func (r Repo) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id=? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []domain.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r Repo) RevokeAPIKey(ctx context.Context, tx *sql.Tx, id, at string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE api_keys SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
