package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ArionMiles/foodspend/internal/plugins"
	"github.com/ArionMiles/foodspend/pkg/analytics"
	"github.com/ArionMiles/foodspend/pkg/config"
	"github.com/ArionMiles/foodspend/pkg/extractor"
	"github.com/ArionMiles/foodspend/pkg/logging"
	"github.com/ArionMiles/foodspend/pkg/report"
	"github.com/ArionMiles/foodspend/pkg/store"
	"github.com/ArionMiles/foodspend/pkg/store/postgres"
	"github.com/ArionMiles/foodspend/pkg/store/sqlite"
)

const configHint = config.DefaultFile + " when present"

type globalFlags struct {
	db     string
	config string
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	loc      *time.Location
	logger   *slog.Logger
	registry *plugins.Registry
	store    store.Store
	render   *report.Renderer
}

// setup loads configuration, builds the plugin registry and opens the
// migrated store. Callers must call close.
func setup(ctx context.Context, e *env, g *globalFlags) (*app, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	if g.db != "" {
		cfg.Driver = config.DriverSQLite
		cfg.DBPath = g.db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Setup(logging.FromSettings(cfg.LogLevel, cfg.LogJSON, e.stderr))

	ruleSet, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := plugins.NewDefault(ruleSet)
	if err != nil {
		return nil, fmt.Errorf("registering plugins: %w", err)
	}
	logger.Debug("plugins registered",
		"extractors", len(registry.ListExtractors()),
		"exporters", len(registry.ListExporters()),
	)

	money, err := report.NewMoney(cfg.Locale)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	st, err := openStore(ctx, cfg, loc, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	return &app{
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		registry: registry,
		store:    st,
		render:   report.New(e.stdout, money),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

func (a *app) analytics() *analytics.Service {
	return analytics.NewService(a.store, a.loc)
}

// database names the configured store for display.
func (a *app) database() string {
	if a.cfg.Driver == config.DriverPostgres {
		return fmt.Sprintf("postgres://%s@%s:%d/%s", a.cfg.PostgresUser, a.cfg.PostgresHost, a.cfg.PostgresPort, a.cfg.PostgresDB)
	}
	return a.cfg.DBPath
}

func loadRules(cfg config.Config) ([]extractor.Rule, error) {
	if cfg.RulesFile == "" {
		return extractor.DefaultRules()
	}
	return extractor.LoadRules(cfg.RulesFile)
}

func openStore(ctx context.Context, cfg config.Config, loc *time.Location, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, postgres.Config{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			Database:        cfg.PostgresDB,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPassword,
			SSLMode:         cfg.PostgresSSLMode,
			ConnectAttempts: cfg.ConnectAttempts,
		}, loc, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(ctx, cfg.DBPath, loc, logger)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return st, nil
	}
}

// lastRun returns nil when nothing was ingested yet.
func lastRun(ctx context.Context, st store.Store) (*store.Run, error) {
	run, err := st.LastRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return run, err
}
