package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/pdfmend/internal/core/config"
	redisclient "github.com/vietddude/pdfmend/internal/infra/redis"
	"github.com/vietddude/pdfmend/internal/infra/storage"
	"github.com/vietddude/pdfmend/internal/infra/storage/memory"
	"github.com/vietddude/pdfmend/internal/infra/storage/postgres"
)

// Archive is an opened report repository and the connections behind it.
type Archive struct {
	Repo        storage.ReportRepository
	db          *postgres.DB
	redisClient *redisclient.Client
}

// OpenArchive connects the backend named in cfg.Archive. The none backend
// yields an Archive with a nil Repo.
func OpenArchive(ctx context.Context, cfg *config.AppConfig) (*Archive, error) {
	a := &Archive{}
	switch cfg.Archive.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.Repo = storage.WithRetry(postgres.NewReportRepo(db), cfg.Archive.Retry)
		slog.Info("Using PostgreSQL archive")
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.Repo = storage.WithRetry(redisclient.NewReportRepo(client), cfg.Archive.Retry)
		slog.Info("Using Redis archive")
	case config.BackendMemory:
		a.Repo = memory.NewReportRepo(memory.NewMemoryStorage())
		slog.Info("Using Memory archive")
	default:
		slog.Info("Report archive disabled")
	}
	return a, nil
}

// Health pings the archive connection, if any.
func (a *Archive) Health(ctx context.Context) error {
	switch {
	case a.db != nil:
		return a.db.Health(ctx)
	case a.redisClient != nil:
		return a.redisClient.Health(ctx)
	}
	return nil
}

// Close releases the archive connections.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	if a.redisClient != nil {
		return a.redisClient.Close()
	}
	return nil
}

// App is the long-running HTTP service.
type App struct {
	cfg     *config.AppConfig
	archive *Archive
	service *Service
	server  *Server
	log     *slog.Logger
}

// NewApp opens the archive and builds the service and HTTP server.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	archive, err := OpenArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	service := NewService(cfg, archive.Repo, logger)
	return &App{
		cfg:     cfg,
		archive: archive,
		service: service,
		server:  NewServer(service, archive, cfg.Server, logger),
		log:     logger.With("component", "app"),
	}, nil
}

// Start starts the HTTP server and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.archive.db != nil {
		a.archive.db.StartMetricsCollector(ctx)
	}
	return nil
}

// Stop shuts the server down and closes the archive.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping pdfmend...")

	err := a.server.Stop(ctx)
	if cerr := a.archive.Close(); cerr != nil {
		a.log.Warn("Failed to close archive", "error", cerr)
	}
	return err
}
