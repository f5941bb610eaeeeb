// Package app wires the stores, clients and orchestrator shared by the api
// and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"campusgate/internal/audit"
	"campusgate/internal/biostar"
	"campusgate/internal/config"
	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/mirror"
	"campusgate/internal/queue"
	"campusgate/internal/roster"
	"campusgate/internal/schedule"
	"campusgate/internal/source"
	"campusgate/internal/store"
	"campusgate/internal/syncer"
)

const (
	queueKey    = "campusgate:sync:queue"
	registryKey = "campusgate:sync:active"
)

// Services holds every long-lived dependency of a process.
type Services struct {
	DB           *store.DB
	Redis        *store.Redis
	Jobs         *jobs.PostgresStore
	Registry     jobs.Registry
	Queue        queue.Queue
	Schedules    *schedule.PostgresStore
	Mirror       *mirror.Repository
	Audit        *audit.Writer
	Biostar      *biostar.Client
	Orchestrator *syncer.Orchestrator
}

// Build connects to Postgres (and Redis for the redis backend), runs
// migrations and assembles the orchestrator.
func Build(ctx context.Context, cfg config.App, reg prometheus.Registerer) (*Services, error) {
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("mirror db: %w", err)
	}
	s := &Services{
		DB:        db,
		Jobs:      jobs.NewPostgresStore(db.Client),
		Schedules: schedule.NewPostgresStore(db.Client),
		Mirror:    mirror.NewRepository(db.Client),
		Audit:     audit.NewWriter(cfg.AuditDir),
	}
	for name, migrate := range map[string]func(context.Context) error{
		"student_mirror": s.Mirror.Migrate,
		"sync_schedules": s.Schedules.Migrate,
		"sync_jobs":      s.Jobs.Migrate,
	} {
		if err := migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate %s: %w", name, err)
		}
	}

	switch cfg.QueueBackend {
	case "redis":
		s.Redis = store.NewRedis(cfg.RedisAddr)
		s.Queue = queue.NewRedisQueue(s.Redis.Client, queueKey)
		s.Registry = jobs.NewRedisRegistry(s.Redis.Client, registryKey, cfg.RegistryTTL)
	case "memory":
		s.Queue = queue.NewInMemory(16)
		s.Registry = jobs.NewMemoryRegistry()
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	s.Biostar = biostar.New(biostar.Config{
		BaseURL:     cfg.BiostarURL,
		LoginID:     cfg.BiostarLoginID,
		Password:    cfg.BiostarPassword,
		Timeout:     cfg.BiostarTimeout,
		RetryDelay:  cfg.BiostarRetryDelay,
		MaxAttempts: cfg.BiostarMaxAttempts,
		InsecureTLS: cfg.BiostarInsecureTLS,
	})

	photos := roster.NewPhotoNormalizer(cfg.DefaultPhotoPath)
	zone := time.FixedZone(cfg.CampusTZLabel, cfg.CampusUTCOffset*3600)
	tr := roster.NewTransformer(cfg.ExportDepartment, cfg.ExportTitle, cfg.ExportGroup, photos)
	tr.Now = func() time.Time { return time.Now().In(zone) }

	s.Orchestrator = syncer.New(syncer.Deps{
		Open: func(ctx context.Context) (syncer.Source, error) {
			c, err := source.Connect(ctx, cfg.SourceDriver, cfg.SourceDSN, cfg.SourceTable, photos)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Mirror:      s.Mirror,
		Transformer: tr,
		Uploader:    s.Biostar,
		Audit:       s.Audit,
		Slots:       s.Schedules,
		Jobs:        s.Jobs,
		Registry:    s.Registry,
		Metrics:     syncer.NewMetrics(reg),
		ExportDir:   cfg.ExportDir,
		MirrorHealth: func(ctx context.Context) error {
			return db.Client.PingContext(ctx)
		},
		RegistryRefresh: cfg.RegistryTTL / 3,
	})

	logging.Info().Str("queue", cfg.QueueBackend).Str("source", cfg.SourceDriver).Msg("services ready")
	return s, nil
}

// Close releases database and redis connections.
func (s *Services) Close() {
	if err := s.Redis.Close(); err != nil {
		logging.Warn().Err(err).Msg("close redis failed")
	}
	if err := s.DB.Close(); err != nil {
		logging.Warn().Err(err).Msg("close db failed")
	}
}
