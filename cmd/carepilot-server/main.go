package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
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

	"github.com/Yagbe/CarePilot-Urgent/internal/config"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/forecast"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/queue"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/auth"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/broadcast"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/db"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/middleware"
)

const appName = "CarePilot Urgent"

var version = "0.4.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "carepilot-server",
		Short: "Clinic triage queue and wait-time server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage queue server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the write-behind database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool)
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	// Database is optional: without DATABASE_URL the server runs
	// memory-only and loses state on restart.
	ctx := context.Background()
	var (
		recorder   queue.Recorder    = queue.NewNoopRecorder()
		vitalsRepo vitals.Repository = vitals.NewMemoryRepo()
		auditSink  audit.Sink
		pool       *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		recorder = queue.NewRecorderPG(pool)
		vitalsRepo = vitals.NewRepoPG(pool)
		auditSink = audit.NewSinkPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, running memory-only")
	}

	auditLog := audit.New(logger, auditSink)
	store := queue.NewStore(recorder, vitalsRepo, auditLog, logger)
	hub := broadcast.NewHub(func() interface{} { return store.QueueSnapshot() }, logger)

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		// dev convenience: sessions do not survive a restart
		buf := make([]byte, 32)
		if _, err := crypto_rand.Read(buf); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate session secret")
		}
		sessionSecret = hex.EncodeToString(buf)
	}
	staffAuth := auth.NewStaff(sessionSecret, cfg.StaffPassword,
		time.Duration(cfg.SessionTTLMinutes)*time.Minute, cfg.IsProduction())

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	// API groups
	api := e.Group("/api")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	staffAuth.RegisterRoutes(api)
	staff := api.Group("", staffAuth.RequireStaff)
	demo := e.Group("/demo", staffAuth.RequireStaff)

	queueHandler := queue.NewHandler(store, hub, logger)
	queueHandler.RegisterRoutes(api, staff, demo)

	vitalsHandler := vitals.NewHandler(vitalsRepo, store, hub, auditLog, cfg.SimulatedVitals)
	vitalsHandler.RegisterRoutes(api, staff)

	forecast.NewHandler(store).RegisterRoutes(staff)
	audit.NewHandler(auditLog).RegisterRoutes(staff)

	wsHandler := broadcast.NewHandler(hub)
	wsHandler.RegisterRoutes(e)

	// Liveness and readiness
	e.GET("/api/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"app":     appName,
			"version": version,
			"env":     cfg.Env,
		})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/readyz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":          "ready",
			"patients_loaded": store.PatientCount(),
			"queue_size":      store.ActiveCount(),
		})
	})

	if cfg.DemoMode {
		seeded := store.SeedDemo(ctx)
		logger.Info().Int("patients", seeded).Msg("demo queue seeded")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
