package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/cache"
	"github.com/DukeRupert/quotaledger/internal/catalog"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// environment holds what every subcommand needs. Close releases it.
type environment struct {
	cfg    *internal.Config
	logger *slog.Logger
	db     *sql.DB
	store  *repository.SQLStore
}

func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}

	// Logs go to stderr so command output stays pipeable.
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &environment{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  repository.NewStore(db),
	}, nil
}

func (e *environment) Close() error {
	return e.db.Close()
}

func (e *environment) planService() (service.PlanService, error) {
	c, err := catalog.Default()
	if e.cfg.PlanCatalogPath != "" {
		c, err = catalog.Load(e.cfg.PlanCatalogPath)
	}
	if err != nil {
		return nil, fmt.Errorf("plan catalog: %w", err)
	}
	return service.NewPlanService(e.store, c, cache.NopPlanCache{}, e.logger), nil
}

// withEnvironment adapts a subcommand body to cobra's RunE.
func withEnvironment(fn func(cmd *cobra.Command, env *environment, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(cmd, env, args)
	}
}
