// The report worker periodically builds the recent-rows CSV and pushes
// it to the configured recipients, falling back to email when the
// messaging gateway rejects the document.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/config"
	"github.com/ritetech/rcm-intake/internal/email"
	"github.com/ritetech/rcm-intake/internal/messaging"
	auditService "github.com/ritetech/rcm-intake/internal/service/audit"
	reportService "github.com/ritetech/rcm-intake/internal/service/report"
	"github.com/ritetech/rcm-intake/internal/store"
	"github.com/ritetech/rcm-intake/internal/store/postgres"
	"github.com/ritetech/rcm-intake/internal/store/sheets"
	"github.com/ritetech/rcm-intake/pkg/logger"
)

// WorkerConfig is environment-only; the worker shares the service
// config file for store and delivery settings.
type WorkerConfig struct {
	Interval   time.Duration `envconfig:"REPORT_INTERVAL" default:"24h"`
	PeriodDays int           `envconfig:"REPORT_PERIOD_DAYS" default:"1"`
	SkipEmpty  bool          `envconfig:"REPORT_SKIP_EMPTY" default:"true"`
	User       string        `envconfig:"REPORT_USER" default:"report-worker"`
	HealthAddr string        `envconfig:"HEALTH_ADDR" default:":8081"`
}

func main() {
	var wcfg WorkerConfig
	if err := envconfig.Process("rcm", &wcfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read worker environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	lg := logger.Setup(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	var st store.Store
	switch cfg.Store.Backend {
	case config.BackendSheets:
		st = sheets.New(cfg.Store.Sheets)
	default:
		pg := postgres.New(cfg.Store.Postgres)
		defer pg.Close()
		st = pg
	}

	reader := cache.NewReader(st, cache.NewMemory(cfg.Cache.TTL), nil, lg)
	auditSvc := auditService.NewService(st, reader, lg)
	deliverer := messaging.NewClient(cfg.Messaging, lg)
	mailer := email.NewService(cfg.Email)
	reportSvc := reportService.NewService(reader, auditSvc, deliverer, mailer, lg)

	setupHealthCheck(wcfg.HealthAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	log.Info().Dur("interval", wcfg.Interval).Int("period_days", wcfg.PeriodDays).Msg("report worker started")
	ticker := time.NewTicker(wcfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runOnce(ctx, reportSvc, wcfg); err != nil {
				log.Error().Err(err).Msg("report run failed")
			}
		}
	}
}

func runOnce(ctx context.Context, svc *reportService.Service, wcfg WorkerConfig) error {
	rep, err := svc.BuildReport(ctx, wcfg.PeriodDays)
	if err != nil {
		return err
	}
	if wcfg.SkipEmpty && rep.RowCount == 0 {
		log.Info().Msg("no rows in period, delivery suppressed")
		return nil
	}

	_, err = svc.Send(ctx, wcfg.User, rep)
	if err == nil {
		log.Info().Int("rows", rep.RowCount).Msg("report delivered")
		return nil
	}

	var dErr *reportService.DeliveryError
	if errors.As(err, &dErr) {
		log.Warn().Err(err).Msg("messaging delivery failed, falling back to email")
		if mailErr := svc.SendEmail(ctx, wcfg.User, rep); mailErr != nil {
			return mailErr
		}
		log.Info().Int("rows", rep.RowCount).Msg("report delivered by email")
		return nil
	}
	return err
}

func setupHealthCheck(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
