package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusgate/internal/app"
	"campusgate/internal/auth"
	"campusgate/internal/config"
	"campusgate/internal/handler"
	"campusgate/internal/httpmiddleware"
	"campusgate/internal/logging"
	"campusgate/internal/schedule"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("api failed")
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer svc.Close()

	if n, err := svc.Jobs.RecoverInterrupted(ctx, time.Now()); err != nil {
		logging.Warn().Err(err).Msg("recover interrupted jobs failed")
	} else if n > 0 {
		logging.Warn().Int("jobs", n).Msg("marked interrupted jobs as failed")
	}
	if n, err := svc.Audit.Cleanup(cfg.AuditRetention); err != nil {
		logging.Warn().Err(err).Str("dir", svc.Audit.Dir()).Msg("audit cleanup failed")
	} else {
		logging.Info().Int("removed", n).Msg("audit cleanup done")
	}

	mgr := schedule.NewManager(schedule.Options{
		Store:     svc.Schedules,
		Jobs:      svc.Jobs,
		Registry:  svc.Registry,
		Queue:     svc.Queue,
		Runner:    svc.Orchestrator,
		UTCOffset: cfg.CampusUTCOffset,
		TZLabel:   cfg.CampusTZLabel,
		Window:    cfg.AdmissionWindow,
		Defaults:  map[int]string{1: cfg.Slot1Time, 2: cfg.Slot2Time},
	})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer func() { <-mgr.Stop().Done() }()

	// The redis backend is drained by cmd/worker.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := svc.Orchestrator.Consume(ctx, svc.Queue); err != nil {
				logging.Error().Err(err).Msg("in-process consumer stopped")
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := svc.DB.Healthy(c.Request.Context())
		redisHealthy := cfg.QueueBackend != "redis" || svc.Redis.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	v1 := r.Group("/v1", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	handler.New(mgr, svc.Orchestrator, svc.Jobs).Register(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server forced shutdown")
	}
	logging.Info().Msg("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
