package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/db"
	"github.com/docvault/docvault-backend/internal/data/repos"
	"github.com/docvault/docvault-backend/internal/jobs/pipeline"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/jobs/worker"
	"github.com/docvault/docvault-backend/internal/platform/cryptobox"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
	"github.com/docvault/docvault-backend/internal/platform/observability"
)

type App struct {
	Log          *logger.Logger
	DB           *gorm.DB
	Router       *gin.Engine
	Cfg          Config
	Repos        repos.Set
	Services     Services
	Worker       *worker.Worker
	cancel       context.CancelFunc
	traceCleanup func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()

	traceCleanup := observability.InitTracing(context.Background(), log, observability.Config{
		ServiceName: "docvault",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	keyring, err := cryptobox.LoadKeyring()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load chunk keyring: %w", err)
	}

	bucket, err := gcs.NewBucketService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log, cfg)
	serviceset := wireServices(theDB, log, cfg, reposet, bucket, clientset.Bus, keyring, clientset)

	if _, err := serviceset.Keys.EnsureActiveKey(dbctx.Context{Ctx: context.Background()}); err != nil {
		log.Sync()
		return nil, fmt.Errorf("bootstrap encryption key: %w", err)
	}

	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		pipeline.NewParseDocument(log, bucket),
		pipeline.NewChunkDocument(log, bucket, reposet.Documents, reposet.RegulatoryDocuments),
		pipeline.NewEmbedChunks(log, bucket, serviceset.Embedder, serviceset.Keys, reposet.DocumentChunks, reposet.Documents, reposet.RegulatoryDocuments),
		pipeline.NewCompleteDocument(log, reposet.DocumentChunks, reposet.Documents, reposet.RegulatoryDocuments),
		pipeline.NewNotifyDocument(log, reposet.Documents, reposet.RegulatoryDocuments, serviceset.Notifier),
	} {
		if err := registry.Register(h); err != nil {
			log.Sync()
			return nil, fmt.Errorf("register pipeline: %w", err)
		}
	}
	jobWorker := worker.NewWorker(theDB, log, serviceset.Queue, serviceset.Orchestrator, registry, serviceset.Notifier)

	mw, err := wireMiddleware(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(serviceset)
	router := wireRouter(handlerset, mw)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Worker:       jobWorker,
		traceCleanup: traceCleanup,
	}, nil
}

// Start launches the worker pool and the queue maintenance loops.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Worker.Start(ctx)
	go a.maintenanceLoop(ctx)
}

func (a *App) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dbc := dbctx.Context{Ctx: ctx}
			if _, err := a.Services.Queue.Cleanup(dbc, a.Cfg.JobRetention); err != nil {
				a.Log.Warn("Queue cleanup failed", "error", err)
			}
			if _, err := a.Services.Orchestrator.FlagStuck(ctx, a.Cfg.StuckThreshold); err != nil {
				a.Log.Warn("Stuck-job scan failed", "error", err)
			}
		}
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(a.Cfg.ListenAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.traceCleanup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.traceCleanup(ctx); err != nil && a.Log != nil {
			a.Log.Warn("Trace provider shutdown failed", "error", err)
		}
		cancel()
		a.traceCleanup = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
