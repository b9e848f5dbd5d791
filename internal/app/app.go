// Package app initializes and holds long-lived application services, acting
// as a dependency injection container. It is initialized once at startup and
// handed to the components that need it.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/archive"
	archivegcs "github.com/JakeFAU/harvester/internal/archive/gcs"
	archivelocal "github.com/JakeFAU/harvester/internal/archive/local"
	archivememory "github.com/JakeFAU/harvester/internal/archive/memory"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/logging"
	"github.com/JakeFAU/harvester/internal/progress"
	"github.com/JakeFAU/harvester/internal/progress/sinks"
	publishermemory "github.com/JakeFAU/harvester/internal/publisher/memory"
	publishernoop "github.com/JakeFAU/harvester/internal/publisher/noop"
	publisherpubsub "github.com/JakeFAU/harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/harvester/internal/snapshot"
)

const memorySinkCapacity = 1024

// App holds the shared, long-lived services for the harvester: the logger,
// the progress hub with its sinks, the metrics registry, and the configured
// snapshot, archive, and publisher backends.
type App struct {
	logger    *zap.Logger
	registry  *prometheus.Registry
	hub       *progress.Hub
	recent    *sinks.MemorySink
	snapshots snapshot.Store
	archive   archive.Store
	publisher harvest.Publisher
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Hub returns the progress event hub.
func (a *App) Hub() *progress.Hub { return a.hub }

// Recent returns the in-memory ring of recent progress events.
func (a *App) Recent() *sinks.MemorySink { return a.recent }

// Snapshots returns the completed-job snapshot store.
func (a *App) Snapshots() snapshot.Store { return a.snapshots }

// Archive returns the artifact archive backend.
func (a *App) Archive() archive.Store { return a.archive }

// Publisher returns the notification publisher.
func (a *App) Publisher() harvest.Publisher { return a.publisher }

// New creates and initializes an App from configuration. It is the central
// point for service initialization and fails fast if any backend cannot be
// built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Info("initializing application services")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	recent := sinks.NewMemorySink(memorySinkCapacity)
	hub := progress.NewHub(progress.Config{Logger: logging.Named(logger, "progress")},
		sinks.NewLogSink(logging.Named(logger, "events")), promSink, recent)

	snapshots, err := buildSnapshotStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	archiveStore, err := buildArchiveStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("application services initialized")
	return &App{
		logger:    logger,
		registry:  registry,
		hub:       hub,
		recent:    recent,
		snapshots: snapshots,
		archive:   archiveStore,
		publisher: publisher,
	}, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (snapshot.Store, error) {
	switch cfg.Snapshot.Provider {
	case "file":
		logger.Info("using file snapshot store", zap.String("path", cfg.Snapshot.Path))
		store, err := snapshot.NewFileStore(cfg.Snapshot.Path)
		if err != nil {
			return nil, fmt.Errorf("init file snapshot store: %w", err)
		}
		return store, nil
	case "postgres":
		logger.Info("using postgres snapshot store")
		store, err := snapshot.NewPostgresStore(ctx, snapshot.PostgresConfig{
			DSN:   cfg.Snapshot.Postgres.DSN,
			Table: cfg.Snapshot.Postgres.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres snapshot store: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("using in-memory snapshot store, restarts lose progress")
		return snapshot.NewMemoryStore(), nil
	case "noop":
		logger.Info("snapshot persistence disabled")
		return snapshot.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider: %s", cfg.Snapshot.Provider)
	}
}

func buildArchiveStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Store, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		logger.Info("using GCS archive", zap.String("bucket", cfg.Archive.Bucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, nil
	case "local":
		logger.Info("using local archive", zap.String("base_dir", cfg.Archive.BaseDir))
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case "memory":
		return archivememory.New(), nil
	case "noop":
		logger.Info("artifact archiving disabled")
		return archive.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (harvest.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		logger.Info("using GCP Pub/Sub publisher",
			zap.String("project", cfg.Publisher.ProjectID),
			zap.String("topic", cfg.Publisher.Topic))
		client, err := pubsub.NewClient(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		return publisherpubsub.New(client), nil
	case "memory":
		return publishermemory.New(), nil
	case "noop":
		logger.Info("notifications disabled")
		return publishernoop.New(), nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
}

// Close gracefully shuts down the shared services. The hub is drained first
// so in-flight progress events still reach their sinks.
func (a *App) Close() {
	a.logger.Info("shutting down application services")

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("error closing progress hub", zap.Error(err))
	}
	a.snapshots.Close()

	// Best-effort flush; stderr sync failures on shutdown are expected on
	// some platforms.
	_ = a.logger.Sync()
}
