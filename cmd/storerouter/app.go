package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/drive"
	"github.com/liliang-cn/storerouter/internal/export"
	"github.com/liliang-cn/storerouter/internal/filesearch"
	"github.com/liliang-cn/storerouter/internal/llm"
	"github.com/liliang-cn/storerouter/internal/logger"
	"github.com/liliang-cn/storerouter/internal/repository"
	"github.com/liliang-cn/storerouter/internal/service"
	"go.uber.org/zap"
)

// app wires every component of the store router
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *service.Registry
	ingest   *service.IngestService
	admin    *service.AdminService
	pipeline *service.Pipeline
	exporter *export.Exporter
	memory   service.ConversationStore

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	// Repositories
	storeRepo := repository.NewStoreRepository(db)
	selectionRepo := repository.NewSelectionRepository(db)

	switch cfg.Memory.Backend {
	case "redis":
		redisStore, err := repository.NewRedisConversationStore(cfg.Memory.Redis, cfg.Memory.MaxMessages)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect conversation memory: %w", err)
		}
		a.closers = append(a.closers, redisStore.Close)
		a.memory = redisStore
	default:
		a.memory = repository.NewConversationRepository(db, cfg.Memory.MaxMessages)
	}

	// Hosted backends. The model client is optional: without it the
	// pipeline falls back to heuristics and the first store.
	var (
		gen service.Generator
		web service.WebSearcher
	)
	if client, err := llm.New(ctx, cfg.Gemini); err != nil {
		log.Warn("model client unavailable, running with heuristics only", zap.Error(err))
	} else {
		gen, web = client, client
	}

	var fetcher service.DriveFetcher
	if f, err := drive.New(ctx, cfg.Drive, log); err != nil {
		log.Warn("drive fetcher unavailable", zap.Error(err))
	} else {
		fetcher = f
	}

	backend := filesearch.New(cfg.Gemini, log)
	a.exporter = export.New(cfg.Storage.Exports, cfg.Export.FontPath, log)

	// Services
	sessions := service.NewSessions(cfg.Wizard.TTL)
	wizard := service.NewWizard(sessions)
	a.registry = service.NewRegistry(storeRepo, selectionRepo, backend, cfg, log)
	a.ingest = service.NewIngestService(a.registry, fetcher, cfg, log)
	memory := service.NewMemoryService(a.memory, log)
	exports := service.NewExportService(a.exporter, sessions)
	actions := service.NewActionService(cfg, a.registry, selectionRepo, memory, sessions, wizard, a.ingest, exports, log)

	a.admin = service.NewAdminService(a.registry, a.ingest, selectionRepo, a.memory, cfg.MemoryRetention())

	a.pipeline = service.NewPipeline(service.PipelineDeps{
		Config:     cfg,
		Registry:   a.registry,
		Classifier: service.NewClassifier(gen, cfg, log),
		Router:     service.NewRouter(a.registry, gen, cfg, log),
		Memory:     memory,
		Selections: selectionRepo,
		Actions:    actions,
		Sessions:   sessions,
		Wizard:     wizard,
		Ingest:     a.ingest,
		Exports:    exports,
		Web:        web,
		Generator:  gen,
		Logger:     log,
	})

	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() error {
	var errs *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
