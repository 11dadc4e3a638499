package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/physio/internal/config"
	"github.com/ehr/physio/internal/domain/evolution"
	"github.com/ehr/physio/internal/platform/auth"
	"github.com/ehr/physio/internal/platform/db"
	"github.com/ehr/physio/internal/platform/metrics"
	"github.com/ehr/physio/internal/platform/middleware"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the comparison API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// snapshotInvalidator drops the cached snapshot.
type snapshotInvalidator interface {
	Invalidate()
}

type serverDeps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	svc     *evolution.Service
	metrics *metrics.Metrics
	pool    *pgxpool.Pool
	cache   snapshotInvalidator
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: unauthenticated requests get admin access")
	}

	taxonomy, err := loadTaxonomy(cfg)
	if err != nil {
		logger.Error().Err(err).Str("file", cfg.TaxonomyFile).Msg("failed to load taxonomy")
		return err
	}

	m := metrics.New()
	ctx := context.Background()
	stack, err := buildSource(ctx, cfg, logger, m)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build record source")
		return err
	}
	defer stack.Close()

	svc := evolution.NewService(stack, taxonomy, logger.With().Str("component", "evolution").Logger())
	svc.SetObserver(m)

	e := newServer(serverDeps{cfg: cfg, logger: logger, svc: svc, metrics: m, pool: stack.pool, cache: stack.cache})

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("data_source", cfg.DataSource).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(d.metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":      "ok",
			"version":     version,
			"data_source": d.cfg.DataSource,
		})
	})
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
	}
	e.GET("/metrics", d.metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))

	jwtCfg := auth.JWTConfig{
		Issuer:     d.cfg.AuthIssuer,
		Audience:   d.cfg.AuthAudience,
		SigningKey: []byte(d.cfg.AuthSigningKey),
	}
	if d.cfg.ResolvedAuthMode() == "development" {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Rate limiting runs after auth so callers are keyed by user.
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if d.cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = d.cfg.RateLimitRPS
		rateLimitCfg.BurstSize = d.cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	evolution.NewHandler(d.svc).RegisterRoutes(apiV1)

	if d.cache != nil {
		apiV1.POST("/evolution/snapshot/refresh", func(c echo.Context) error {
			d.cache.Invalidate()
			d.logger.Info().Str("user_id", auth.UserIDFromContext(c.Request().Context())).Msg("snapshot cache invalidated")
			return c.NoContent(http.StatusNoContent)
		}, auth.RequireRole(auth.RoleAdmin))
	}

	return e
}
