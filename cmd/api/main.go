package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/solmedica/clinic-ops/internal/api/router"
	"github.com/solmedica/clinic-ops/internal/appointments"
	"github.com/solmedica/clinic-ops/internal/clinic"
	"github.com/solmedica/clinic-ops/internal/clinictime"
	appconfig "github.com/solmedica/clinic-ops/internal/config"
	"github.com/solmedica/clinic-ops/internal/observability/metrics"
	"github.com/solmedica/clinic-ops/internal/patients"
	"github.com/solmedica/clinic-ops/internal/reporting"
	"github.com/solmedica/clinic-ops/internal/schedule"
	"github.com/solmedica/clinic-ops/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-ops API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_tz", cfg.ClinicTimezone,
	)

	zone, err := clinictime.Load(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// History and patient stores run over database/sql via the pgx stdlib
	// driver; the hot appointment path stays on the native pool.
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	apptMetrics := metrics.NewAppointmentMetrics(registry)

	settingsStore := clinic.NewStore(redisClient)
	rules := schedule.NewRules(settingsStore, zone)

	apptRepo := appointments.NewRepository(pool)
	historyStore := appointments.NewHistoryStore(db)
	patientStore := patients.NewStore(db)

	service := appointments.NewService(appointments.ServiceConfig{
		Store:     apptRepo,
		Conflicts: appointments.NewSlotConflictDetector(apptRepo),
		Recorder:  historyStore,
		History:   historyStore,
		Rules:     rules,
		Patients:  patientStore,
		Policy:    settingsStore,
		Zone:      zone,
		Logger:    logger,
		Metrics:   apptMetrics,

		CheckinOpenLead: time.Duration(cfg.CheckinOpenLeadMinutes) * time.Minute,
		CheckinCloseLag: time.Duration(cfg.CheckinCloseLagMinutes) * time.Minute,
	})

	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(service, logger),
		ClinicHandler:       clinic.NewHandler(settingsStore, logger),
		ReportingHandler:    reporting.NewHandler(reporting.NewRepository(pool), zone, logger),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		StaffJWTSecret:      cfg.StaffJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
