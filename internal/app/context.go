package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/migrate"
)

// Workspace is an open workspace database with its engine.
type Workspace struct {
	Dir    string
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	return w.Engine.DB.Close()
}

// ResolveConfig loads taskline.yml from the workspace, falling back to the
// default config named after the directory.
func ResolveConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return config.Default(filepath.Base(abs)), nil
}

// Open migrates the workspace database and seeds it on first use. The
// returned workspace must be closed by the caller.
func Open(ctx context.Context, dir, actorID string, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := ResolveConfig(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Log = log
	e.Notifier = engine.EventNotifier{Repo: e.Repo, Events: e.Events}
	stages, err := e.Repo.ListStages(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(stages) == 0 {
		res, err := e.Init(ctx, actorID)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed workspace: %w", err)
		}
		log.Debug("seeded workspace", zap.String("dir", dir), zap.Int("stages", res.StagesCreated))
	}
	return &Workspace{Dir: dir, Engine: e}, nil
}
