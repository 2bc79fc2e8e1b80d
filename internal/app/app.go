package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/markdave123-py/docloader/internal/config"
	"github.com/markdave123-py/docloader/internal/core"
	db "github.com/markdave123-py/docloader/internal/core/database"
	"github.com/markdave123-py/docloader/internal/loader"
	"github.com/markdave123-py/docloader/internal/worker"
)

// InProcessWorker is the name the bundled docconv worker registers under.
const InProcessWorker = "docconv"

type App struct {
	DBClient core.DbClient
	Loader   *loader.Loader
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	dbClient, err := newDBClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Load history initialized and ready.")

	docWorker := worker.NewFromConfig(appCtx, cfg, logger.With("component", "worker"))
	loader.RegisterInProcessWorker(InProcessWorker, docWorker.Serve)

	if err := loader.Configure(cfg.WorkerSrc); err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("configure worker: %w", err)
	}
	log.Printf("Worker configured as %q.", cfg.WorkerSrc)

	docLoader := loader.DefaultLoader()
	server := NewServer(cfg, dbClient, docLoader)

	return &App{DBClient: dbClient, Loader: docLoader, Server: server}, nil
}

// newDBClient picks Postgres when DATABASE_URL is set and an in-memory history otherwise.
func newDBClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg.DatabaseURL == "" {
		log.Println("WARN: DATABASE_URL not set, load history is kept in memory")
		return db.NewMemoryClient(), nil
	}
	client, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *App) Close() {
	if a.Loader != nil {
		if err := a.Loader.Dispatcher().Close(); err != nil {
			log.Printf("close worker: %v", err)
		}
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
