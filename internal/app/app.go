package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/observability"
	"github.com/prepcoach/backend/internal/pipeline"
)

type App struct {
	Log          *logger.Logger
	DB           *gorm.DB
	Cfg          Config
	Repos        Repos
	Services     Services
	Orchestrator *pipeline.Orchestrator

	shutdownTracing func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if err := cfg.LLM.Validate(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("llm config: %w", err)
	}

	shutdownTracing, err := observability.Setup(ctx, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pg, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(ctx, theDB, cfg, reposet, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:             log,
		DB:              theDB,
		Cfg:             cfg,
		Repos:           reposet,
		Services:        serviceset,
		Orchestrator:    wireOrchestrator(cfg, reposet, serviceset, log),
		shutdownTracing: shutdownTracing,
	}, nil
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("Tracing shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
