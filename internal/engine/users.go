package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

type UserOptions struct {
	ID      string
	Name    string
	Admin   bool
	ActorID string
}

// AddUser registers a user. Adding an existing id only updates its admin flag.
func (e Engine) AddUser(ctx context.Context, opts UserOptions) (domain.User, error) {
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		return domain.User{}, invalidInput("user id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	created, err := e.Repo.EnsureUser(ctx, tx, domain.User{ID: id, Name: opts.Name, Active: true, Admin: opts.Admin, CreatedAt: e.stamp()})
	if err != nil {
		return domain.User{}, err
	}
	if !created {
		if err := e.Repo.SetUserAdmin(ctx, tx, id, opts.Admin); err != nil {
			return domain.User{}, err
		}
	} else if err := e.appendEvent(ctx, tx, events.UserCreated, "user", id, opts.ActorID, events.EventPayload{"admin": opts.Admin}); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, id)
	if err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return u, nil
}

// SetUserActive toggles a user. Keys of an inactive user stop authenticating
// but stay listed, and reactivation restores them.
func (e Engine) SetUserActive(ctx context.Context, id string, active bool, actorID string) (domain.User, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetUserActive(ctx, tx, id, active); err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.UserUpdated, "user", id, actorID, events.EventPayload{"active": active}); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, id)
	if err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	e.log().Info("user updated", zap.String("user_id", id), zap.Bool("active", active))
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx)
	if users == nil {
		users = []domain.User{}
	}
	return users, err
}

// CreatedAPIKey carries the raw key, which is shown once and never stored.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

// CreateAPIKey issues a key for a registered user.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (CreatedAPIKey, error) {
	if userID == "" {
		return CreatedAPIKey{}, invalidInput("user_id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return CreatedAPIKey{}, fmt.Errorf("user %s: %w", userID, err)
	}
	if !u.Active {
		return CreatedAPIKey{}, invalidInput("user %s is inactive", userID)
	}
	raw := "tl_" + strings.ReplaceAll(newID(), "-", "")
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := e.appendEvent(ctx, tx, events.APIKeyCreated, "user", userID, actorID, events.EventPayload{"key_id": key.ID, "name": name}); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreatedAPIKey{}, err
	}
	e.log().Info("api key created", zap.String("user_id", userID), zap.String("key_id", key.ID))
	key.KeyHash = ""
	return CreatedAPIKey{APIKey: key, Key: raw}, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, nil, userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

// GetAPIKey returns key metadata; the hash never leaves the repo.
func (e Engine) GetAPIKey(ctx context.Context, id string) (domain.APIKey, error) {
	return e.Repo.GetAPIKey(ctx, nil, id)
}

// RevokeAPIKey stamps revoked_at. A key is revoked once; repeating it is invalid.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) (domain.APIKey, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.APIKey{}, err
	}
	defer tx.Rollback()

	key, err := e.Repo.GetAPIKey(ctx, tx, id)
	if err != nil {
		return key, fmt.Errorf("api key %s: %w", id, err)
	}
	if key.Revoked() {
		return key, invalidInput("api key %s is already revoked", id)
	}
	at := e.stamp()
	if err := e.Repo.RevokeAPIKey(ctx, tx, id, at); err != nil {
		return key, err
	}
	key.RevokedAt = &at
	if err := e.appendEvent(ctx, tx, events.APIKeyRevoked, "user", key.UserID, actorID, events.EventPayload{"key_id": id}); err != nil {
		return key, err
	}
	if err := tx.Commit(); err != nil {
		return key, err
	}
	e.log().Info("api key revoked", zap.String("user_id", key.UserID), zap.String("key_id", id))
	return key, nil
}
