package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

// ErrInvalidInput marks malformed requests that are not domain validation failures.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Auth     auth.Service
	Notifier Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	e := Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Auth:   auth.Service{Repo: r},
		Log:    zap.NewNop(),
		Now:    time.Now,
	}
	e.Notifier = EventNotifier{Repo: r, Events: e.Events}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) settings() config.Settings {
	if e.Config == nil {
		return config.Settings{}
	}
	return e.Config.Settings
}

func (e Engine) notifier() Notifier {
	if e.Notifier != nil {
		return e.Notifier
	}
	return EventNotifier{Repo: e.Repo, Events: e.Events}
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	return e.DB.BeginTx(ctx, nil)
}

// appendEvent stamps events with the engine clock unless the writer has its own.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, kind, id, actor string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w.Append(ctx, tx, evtType, kind, id, actor, payload)
}

func newID() string {
	return uuid.NewString()
}

// InitResult reports what Init seeded.
type InitResult struct {
	StagesCreated int `json:"stages_created"`
	UsersCreated  int `json:"users_created"`
}

// Init seeds stages and users from config. It is safe to call repeatedly.
func (e Engine) Init(ctx context.Context, actorID string) (InitResult, error) {
	var res InitResult
	if e.Config == nil {
		return res, errors.New("config not loaded")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, seed := range e.Config.Stages {
		created, err := e.Repo.EnsureStage(ctx, tx, domain.Stage{
			ID:       newID(),
			Name:     seed.Name,
			Kind:     seed.Kind,
			Sequence: seed.Sequence,
			Fold:     seed.Fold,
		})
		if err != nil {
			return res, fmt.Errorf("seed stage %s: %w", seed.Name, err)
		}
		if created {
			res.StagesCreated++
		}
	}
	now := e.stamp()
	seedUsers := map[string]config.UserSeed{}
	for id, u := range e.Config.Users {
		seedUsers[id] = u
	}
	if actorID != "" {
		if _, ok := seedUsers[actorID]; !ok {
			// the initializing actor administers the workspace
			seedUsers[actorID] = config.UserSeed{Name: actorID, Admin: true}
		}
	}
	for id, u := range seedUsers {
		created, err := e.Repo.EnsureUser(ctx, tx, domain.User{ID: id, Name: u.Name, Active: true, Admin: u.Admin, CreatedAt: now})
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", id, err)
		}
		if created {
			res.UsersCreated++
			if err := e.appendEvent(ctx, tx, events.UserCreated, "user", id, actorID, events.EventPayload{"admin": u.Admin}); err != nil {
				return res, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	e.log().Info("workspace initialized", zap.Int("stages_created", res.StagesCreated), zap.Int("users_created", res.UsersCreated))
	return res, nil
}

func (e Engine) resolveStage(ctx context.Context, tx *sql.Tx, ref string) (domain.Stage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		stages, err := e.Repo.ListStages(ctx, tx)
		if err != nil {
			return domain.Stage{}, err
		}
		s, ok := tracking.DefaultStage(stages)
		if !ok {
			return domain.Stage{}, errors.New("no open stage configured; run taskline init")
		}
		return s, nil
	}
	s, err := e.Repo.GetStage(ctx, tx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		s, err = e.Repo.GetStageByName(ctx, tx, ref)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return s, fmt.Errorf("stage %s: %w", ref, repo.ErrNotFound)
	}
	return s, err
}

// normalizeTimestamp parses a date or RFC3339 timestamp and renders it in UTC.
func normalizeTimestamp(field, in string) (*string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return nil, nil
	}
	t, err := tracking.ParseDateTime(in)
	if err != nil {
		if ve, ok := tracking.AsValidation(err); ok {
			ve.Field = field
		}
		return nil, err
	}
	s := t.UTC().Format(time.RFC3339)
	return &s, nil
}

func normalizeDate(field, in string) (*string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return nil, nil
	}
	d, err := tracking.ParseDate(in)
	if err != nil {
		if ve, ok := tracking.AsValidation(err); ok {
			ve.Field = field
		}
		return nil, err
	}
	s := tracking.FormatDate(d)
	return &s, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
