// Package app wires a workspace together and runs scenarios against it.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"

	"contagion/internal/artifact"
	"contagion/internal/config"
	"contagion/internal/db"
	"contagion/internal/migrate"
	"contagion/internal/repo"
)

// Env is an opened workspace.
type Env struct {
	Workspace string
	Config    *config.Config
	Logger    *log.Logger
	DB        *sqlx.DB
	Repo      repo.Repo
	Artifacts artifact.Store
}

// Open connects the configured store, applies pending migrations and opens
// the artifact store. A nil cfg loads contagion.yml from the workspace, or
// the defaults when there is none.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *log.Logger) (*Env, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(workspace); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("store ready", "driver", conn.DriverName(), "schema", version)
	store, err := artifact.Open(ctx, workspace, cfg.Artifacts)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("artifacts: %w", err)
	}
	return &Env{
		Workspace: workspace,
		Config:    cfg,
		Logger:    logger,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Artifacts: store,
	}, nil
}

func (e *Env) Close() error {
	return e.DB.Close()
}
