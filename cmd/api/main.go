package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/config"
	"github.com/ritetech/rcm-intake/internal/email"
	auditlogHandler "github.com/ritetech/rcm-intake/internal/handler/auditlog"
	authHandler "github.com/ritetech/rcm-intake/internal/handler/auth"
	intakeHandler "github.com/ritetech/rcm-intake/internal/handler/intake"
	referenceHandler "github.com/ritetech/rcm-intake/internal/handler/reference"
	reportHandler "github.com/ritetech/rcm-intake/internal/handler/report"
	"github.com/ritetech/rcm-intake/internal/messaging"
	"github.com/ritetech/rcm-intake/internal/middleware"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/router"
	auditService "github.com/ritetech/rcm-intake/internal/service/audit"
	authService "github.com/ritetech/rcm-intake/internal/service/auth"
	"github.com/ritetech/rcm-intake/internal/service/dedup"
	intakeService "github.com/ritetech/rcm-intake/internal/service/intake"
	referenceService "github.com/ritetech/rcm-intake/internal/service/reference"
	reportService "github.com/ritetech/rcm-intake/internal/service/report"
	"github.com/ritetech/rcm-intake/internal/store"
	"github.com/ritetech/rcm-intake/internal/store/postgres"
	"github.com/ritetech/rcm-intake/internal/store/sheets"
	"github.com/ritetech/rcm-intake/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.Setup(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	// Backing store, selected once at startup.
	var st store.Store
	switch cfg.Store.Backend {
	case config.BackendSheets:
		st = sheets.New(cfg.Store.Sheets)
	default:
		pg := postgres.New(cfg.Store.Postgres)
		defer pg.Close()
		st = pg
	}

	var cacheBackend cache.Backend
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis cache")
		}
		defer rc.Close()
		cacheBackend = rc
	default:
		cacheBackend = cache.NewMemory(cfg.Cache.TTL)
	}
	reader := cache.NewReader(st, cacheBackend, nil, lg)

	// Schemas are ensured once here; the write paths keep them fresh.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ensureSchemas(ctx, st)
	cancel()

	auditSvc := auditService.NewService(st, reader, lg)
	authSvc := authService.NewService(authService.Config{
		Secret:      cfg.Auth.Secret,
		TokenExpiry: cfg.Auth.TokenExpiry,
	}, reader, auditSvc, lg)
	intakeSvc := intakeService.NewService(st, reader, dedup.New(), auditSvc, intakeService.Options{
		StrictEmiratesID: cfg.Intake.StrictEmiratesID,
	}, lg)
	referenceSvc := referenceService.NewService(st, reader, auditSvc, lg)

	deliverer := messaging.NewClient(cfg.Messaging, lg)
	mailer := email.NewService(cfg.Email)
	reportSvc := reportService.NewService(reader, auditSvc, deliverer, mailer, lg)

	authMw := middleware.NewAuthMiddleware(authSvc)

	r := router.New(
		router.Config{
			RateLimitRPS:   cfg.RateLimit.RPS,
			RateLimitBurst: cfg.RateLimit.Burst,
		},
		authMw,
		[]router.Handler{
			authHandler.NewHandler(authSvc),
		},
		[]router.Handler{
			intakeHandler.NewHandler(intakeSvc),
			reportHandler.NewHandler(reportSvc),
			referenceHandler.NewHandler(referenceSvc, authMw),
			auditlogHandler.NewHandler(auditSvc),
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store.Backend).Msg("intake API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func ensureSchemas(ctx context.Context, st store.Store) {
	for table, columns := range map[string][]string{
		model.DataTable:      model.DataColumns,
		model.LogsTable:      model.LogsColumns,
		model.ReferenceTable: model.ReferenceColumns,
		model.UsersTable:     model.UsersColumns,
	} {
		if err := st.EnsureSchema(ctx, table, columns); err != nil {
			log.Warn().Err(err).Str("table", table).Msg("schema ensure failed at startup, will retry on write")
		}
	}
}
