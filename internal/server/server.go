// Package server wires the stores, the collector and the MCP tool server
// together and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/librus_mcp/internal/analysis"
	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/collector"
	appconfig "github.com/lewisedginton/librus_mcp/internal/config"
	"github.com/lewisedginton/librus_mcp/internal/librus"
	"github.com/lewisedginton/librus_mcp/internal/mcp_server"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/monitoring"
	"github.com/lewisedginton/librus_mcp/internal/query"
	"github.com/lewisedginton/librus_mcp/internal/report"
	"github.com/lewisedginton/librus_mcp/internal/scheduler"
	"github.com/lewisedginton/librus_mcp/internal/state_manager"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/lewisedginton/librus_mcp/pkg/metrics"
	"github.com/lewisedginton/librus_mcp/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// Server encapsulates all components and their lifecycle
type Server struct {
	cfg *appconfig.AppConfig
	log logger.Logger

	storageManager *storage_manager.StorageManager
	provider       storage_manager.FileProvider
	resolver       *children.Resolver

	state    *state_manager.Manager
	memory   *memory_service.Service
	archive  archive.Store
	tasks    *task_manager.Manager
	reports  *report.Writer
	analysis *analysis.Store
	query    *query.Service

	sessions  *librus.SessionProvider
	collector *collector.Collector
	mcp       *mcp_server.Server
	metrics   *metrics.Metrics
	health    *monitoring.HealthMonitor
	scheduler *scheduler.Scheduler

	// set when the backend holds a connection
	archivePinger monitoring.Pinger
	redis         *redis.Client
	closers       []func() error
}

// New creates a Server with every component initialized. Nothing is started;
// call Run to serve, or use the accessors for one-shot commands.
//
//nolint:revive // cognitive-complexity: initialization requires sequential component setup
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	var err error
	s.resolver, err = cfg.Resolver()
	if err != nil {
		return nil, fmt.Errorf("failed to build children resolver: %w", err)
	}

	s.storageManager, err = s.createStorageManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	// All per-child directories live under one namespace
	s.provider = s.storageManager.GetProvider(cfg.Storage.Namespace)

	s.state = state_manager.New(state_manager.Config{FileProvider: s.provider, Logger: log})
	s.memory = memory_service.New(memory_service.Config{FileProvider: s.provider, Logger: log})
	s.tasks = task_manager.New(task_manager.Config{FileProvider: s.provider, Logger: log})
	s.reports = report.NewWriter(s.provider)
	s.analysis = analysis.NewStore(s.provider, time.Now)

	s.archive, err = s.createArchive(ctx)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	s.query = query.New(query.Config{
		Archive:      s.archive,
		Memory:       s.memory,
		Tasks:        s.tasks,
		HomeworkDays: cfg.Query.HomeworkDays,
	})

	s.sessions = librus.NewSessionProvider(librus.SessionProviderConfig{
		Portal:       cfg.LibrusConfig(),
		FileProvider: s.provider,
		Credentials:  s.resolver,
		Setup:        s.state,
		Logger:       log,
		AutoLogin:    cfg.Portal.AutoLogin,
	})

	s.metrics = metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableScrapeMetrics, log)

	s.collector = collector.New(collector.Config{
		Open:     collector.PortalOpener(s.sessions),
		Children: s.resolver,
		State:    s.state,
		Memory:   s.memory,
		Archive:  s.archive,
		Reports:  s.reports,
		Tasks:    s.tasks,
		Metrics:  s.metrics,
		Logger:   log,
	})

	s.mcp = mcp_server.New(mcp_server.Config{
		Name:          cfg.MCP.Name,
		Version:       cfg.Version,
		Children:      s.resolver,
		Scraper:       s.collector,
		State:         s.state,
		Memory:        s.memory,
		Archive:       s.archive,
		Tasks:         s.tasks,
		Query:         s.query,
		Analysis:      s.analysis,
		Logger:        log,
		ToolTimeout:   cfg.MCP.ToolTimeout,
		ScrapeTimeout: cfg.Scraping.RunTimeout,
	})

	if cfg.Schedule.Cron != "" {
		s.scheduler, err = scheduler.New(scheduler.Config{
			Spec:       cfg.Schedule.Cron,
			ForceFull:  cfg.Schedule.ForceFull,
			RunTimeout: cfg.Scraping.RunTimeout,
			Runner:     s.collector,
			Logger:     log,
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	if cfg.Health.Enabled {
		portalURL := ""
		if cfg.Health.CheckPortal {
			portalURL = cfg.Portal.BaseURL
		}
		hcfg := monitoring.Config{
			Logger:           log,
			Version:          cfg.Version,
			PortalURL:        portalURL,
			Storage:          s.provider,
			Archive:          s.archivePinger,
			Timeout:          cfg.Health.Timeout,
			FailureThreshold: cfg.Health.FailureThreshold,
		}
		if s.redis != nil {
			hcfg.Redis = s.redis
		}
		s.health = monitoring.NewHealthMonitor(hcfg)
	}

	return s, nil
}

// Accessors for one-shot commands.

func (s *Server) Collector() *collector.Collector { return s.collector }
func (s *Server) Sessions() *librus.SessionProvider { return s.sessions }
func (s *Server) Memory() *memory_service.Service { return s.memory }
func (s *Server) State() *state_manager.Manager { return s.state }
func (s *Server) Resolver() *children.Resolver { return s.resolver }

// Run starts the enabled listeners, the scheduler and the configured MCP
// transport, and blocks until a shutdown signal, ctx ending, a component
// failing or the stdio client disconnecting.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var errChans []<-chan error

	if s.cfg.Metrics.ExposeMetrics {
		s.metrics.Listen(s.cfg.Metrics.Port)
	}
	if s.health != nil {
		s.log.Info("Starting health check server",
			logger.IntField("port", s.cfg.Health.Port),
			logger.StringField("liveness_path", s.cfg.Health.LivenessPath),
			logger.StringField("readiness_path", s.cfg.Health.ReadinessPath))
		errChans = append(errChans, s.serveHTTP(ctx, "health", s.healthServer()))
	}
	if s.scheduler != nil {
		s.scheduler.Start(ctx)
	}

	switch s.cfg.MCP.Transport {
	case appconfig.TransportHTTP:
		errChans = append(errChans, s.serveHTTP(ctx, "mcp", s.mcpServer()))
	default:
		errChans = append(errChans, s.serveStdio(ctx))
	}

	errs := utils.MergeErrorChans(errChans...)

	var result error
	select {
	case <-ctx.Done():
		s.log.Info("Received shutdown signal")
	case err := <-errs:
		// nil means the stdio client disconnected
		if err != nil {
			s.log.Error("Component failed, shutting down", logger.ErrorField(err))
			result = multierror.Append(result, err)
		}
	}

	if s.health != nil {
		s.health.MarkShuttingDown()
	}
	stop()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	drain := time.After(shutdownTimeout + 5*time.Second)
loop:
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				break loop
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				result = multierror.Append(result, err)
			}
		case <-drain:
			s.log.Warn("Timed out waiting for components to stop")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout) //nolint:contextcheck // New context needed for shutdown
	defer cancel()
	if err := s.metrics.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // Using new context for graceful shutdown
		s.log.Error("Metrics listener shutdown error", logger.ErrorField(err))
	}

	s.log.Info("Server stopped")
	return result
}

// Close releases database and cache connections.
func (s *Server) Close() error {
	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result
}

// createStorageManager creates a storage manager based on configuration
func (s *Server) createStorageManager(ctx context.Context) (*storage_manager.StorageManager, error) {
	cfg := &s.cfg.Storage

	switch cfg.Backend {
	case "local":
		s.log.Info("Using local file-based storage", logger.StringField("directory", cfg.LocalDir))

		// 0750 needed for directory traversal
		if err := os.MkdirAll(cfg.LocalDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage_manager.New(storage_manager.Config{
			Backend:     storage_manager.BackendLocal,
			LocalConfig: &storage_manager.LocalConfig{BaseDir: cfg.LocalDir},
		})

	case "s3":
		s.log.Info("Using S3-based storage",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		configOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3Profile != "" {
			configOptions = append(configOptions, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			configOptions = append(configOptions, awsconfig.WithRegion(cfg.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendS3,
			S3Config: &storage_manager.S3Config{
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3Prefix,
				Client: s3.NewFromConfig(awsCfg),
			},
		})

	case "git":
		s.log.Info("Using git-backed storage", logger.StringField("path", cfg.GitPath))
		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendGit,
			GitConfig: &storage_manager.GitProviderOptions{
				Path:          cfg.GitPath,
				AuthorName:    cfg.GitAuthorName,
				AuthorEmail:   cfg.GitAuthorEmail,
				InitIfMissing: true,
			},
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 's3' or 'git')", cfg.Backend)
	}
}

// createArchive opens the snapshot store, optionally behind the Redis cache.
func (s *Server) createArchive(ctx context.Context) (archive.Store, error) {
	var store archive.Store

	switch s.cfg.Archive.Backend {
	case appconfig.ArchiveBackendSQLite:
		path := s.cfg.Archive.SQLitePath
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		db, err := archive.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		s.archivePinger = db
		store = db
		s.log.Info("Using SQLite archive", logger.StringField("path", path))
	default:
		store = archive.NewFileStore(s.provider)
	}

	if !s.cfg.Cache.Enabled {
		return store, nil
	}
	client, err := archive.DialRedis(ctx, s.cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = client
	s.closers = append(s.closers, client.Close)
	s.log.Info("Archive cache enabled",
		logger.StringField("prefix", s.cfg.Cache.Prefix),
		logger.DurationField("ttl", s.cfg.Cache.TTL))
	return archive.NewCachedStore(store, archive.NewRedisCache(client, s.cfg.Cache.Prefix), s.cfg.Cache.TTL, s.log), nil
}
