package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/admission"
	"github.com/jonathan/hiring-intake/internal/blob"
	"github.com/jonathan/hiring-intake/internal/config"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/db/memory"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/observability"
	"github.com/jonathan/hiring-intake/internal/retention"
	"github.com/jonathan/hiring-intake/internal/server"
	"github.com/jonathan/hiring-intake/internal/server/ratelimit"
	"github.com/jonathan/hiring-intake/internal/submission"
	"github.com/jonathan/hiring-intake/internal/workflow"
)

// recordStore is everything the service needs from a record store. Both
// *db.DB and *memory.Store satisfy it.
type recordStore interface {
	server.Store
	admission.ApplicationFinder
	submission.RecordInserter
	workflow.Store
	retention.RecordStore
	CountExpiredApplications(ctx context.Context, cutoff time.Time) (int64, error)
}

// app holds the wired services of one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	records  recordStore
	blobs    blob.Store
	locker   retention.Locker
	limiter  *ratelimit.Limiter
	purge    *retention.Job
	closers  []func()
}

// newLogger builds the process logger from the configuration.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// openStores connects the record and blob stores named by cfg. The returned
// app owns them until close.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.records = database
		a.locker = database
		a.closers = append(a.closers, database.Close)
	default:
		logger.Warn("using in-memory record store; data is lost on exit")
		a.records = memory.New()
	}

	switch cfg.BlobBackend {
	case config.BackendS3:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.AWSEndpointURL,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		warnPresignClamp(logger, cfg.SignedURLTTL)
		a.blobs = store
	default:
		logger.Warn("using in-memory blob store; attachments are lost on exit")
		a.blobs = blob.NewMemoryStore("attachments")
	}

	a.purge = retention.NewJob(a.records, a.blobs, cfg.Retention(), logger, a.metrics)
	return a, nil
}

// warnPresignClamp reports a SIGNED_URL_TTL longer than S3 can presign. It
// returns whether the TTL will be clamped.
func warnPresignClamp(logger *zap.Logger, ttl time.Duration) bool {
	if ttl <= blob.MaxPresignTTL {
		return false
	}
	logger.Warn("SIGNED_URL_TTL exceeds the S3 presign limit; attachment URLs will expire sooner",
		zap.Duration("configured", ttl), zap.Duration("effective", blob.MaxPresignTTL))
	return true
}

// newLimiter builds the submission rate limiter, sharing windows through
// Redis when RATE_LIMIT_REDIS_URL is set.
func (a *app) newLimiter() (*ratelimit.Limiter, error) {
	var counter ratelimit.Counter
	if a.cfg.RateLimitRedisURL != "" {
		rc, err := ratelimit.NewRedisCounterFromURL(a.cfg.RateLimitRedisURL, "intake:ratelimit:")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		counter = rc
	}

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         a.cfg.RateLimitEnabled,
		CleanupInterval: a.cfg.RateLimitCleanupInterval,
		Whitelist:       ratelimit.ParseIPList(a.cfg.RateLimitWhitelist),
		Blacklist:       ratelimit.ParseIPList(a.cfg.RateLimitBlacklist),
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(a.cfg.RateLimitRequests, a.cfg.RateLimitWindow),
	}, counter, a.logger.Named("ratelimit"))
	a.closers = append(a.closers, limiter.Stop)
	a.limiter = limiter
	return limiter, nil
}

// newServer wires the HTTP server over the opened stores.
func (a *app) newServer() (*server.Server, error) {
	limiter, err := a.newLimiter()
	if err != nil {
		return nil, err
	}

	purgeSecret, err := a.cfg.PurgeSecretVerifier()
	if err != nil {
		return nil, err
	}
	if purgeSecret == nil {
		a.logger.Warn("no purge secret configured; manual purges are disabled")
	}

	var jwtService *server.JWTService
	if a.cfg.JWTSecret != "" {
		jwtCfg, err := a.cfg.JWT()
		if err != nil {
			return nil, err
		}
		jwtService = server.NewJWTService(jwtCfg)
	} else {
		a.logger.Warn("no JWT secret configured; admin routes are disabled")
	}

	pipeline := admission.New(
		limiter.For(http.MethodPost, ratelimit.SubmissionEndpoint),
		a.records,
		admission.Options{
			Retention:           a.cfg.Retention(),
			MaxUploadBytes:      a.cfg.MaxUploadBytes,
			AllowedContentTypes: a.cfg.AllowedContentTypes,
			StoreTimeout:        a.cfg.StoreTimeout,
		},
		a.logger.Named("admission"),
		a.metrics,
	)
	coordinator := submission.NewCoordinator(a.blobs, a.records, submission.Options{
		SignedURLTTL: a.cfg.SignedURLTTL,
		StoreTimeout: a.cfg.StoreTimeout,
	}, a.logger.Named("submission"), a.metrics)

	return server.New(server.Config{
		Addr:           a.cfg.Addr(),
		MaxUploadBytes: a.cfg.MaxUploadBytes,
		StoreTimeout:   a.cfg.StoreTimeout,
	}, server.Deps{
		Store:       a.records,
		Admission:   pipeline,
		Coordinator: coordinator,
		Workflow:    workflow.NewEngine(a.records, a.cfg.StoreTimeout, a.logger.Named("workflow"), a.metrics),
		Purge:       a.purge,
		PurgeSecret: purgeSecret,
		JWT:         jwtService,
		Registry:    a.registry,
		Logger:      a.logger,
	}), nil
}

// newScheduler wires the periodic retention purge.
func (a *app) newScheduler() *retention.Scheduler {
	return retention.NewScheduler(a.purge, a.locker, a.cfg.PurgeInterval, a.logger.Named("retention"), a.metrics)
}

// migrate applies pending migrations when the record store is PostgreSQL.
func (a *app) migrate(ctx context.Context) error {
	database, ok := a.records.(*db.DB)
	if !ok {
		return nil
	}
	versions, err := database.MigrateUp(ctx)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		a.logger.Info("applied migrations", zap.Int64s("versions", versions))
	}
	return nil
}

// close releases everything the app opened, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadApp loads the configuration and opens the stores.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return openStores(ctx, cfg, logger)
}
