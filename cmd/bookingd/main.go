package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tabletime/bookingd/internal/booking"
	"github.com/tabletime/bookingd/internal/config"
	"github.com/tabletime/bookingd/internal/metrics"
	"github.com/tabletime/bookingd/internal/report"
	"github.com/tabletime/bookingd/internal/store/postgres"
	"github.com/tabletime/bookingd/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	var (
		configPath = flag.String("config", os.Getenv("BOOKINGD_CONFIG_PATH"), "path to config file")
		exportPath = flag.String("export", "", "export appointments to this .xlsx file and exit")
		exportFrom = flag.String("from", "", "export range start (YYYY-MM-DD)")
		exportTo   = flag.String("to", "", "export range end (YYYY-MM-DD)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Primary.DSN == "" {
		logger.Fatal().Msg("set primary.dsn in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.Primary.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse primary dsn")
	}
	if cfg.Primary.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.Primary.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("create primary pool")
	}

	primaryStore := postgres.New(pool, &logger)
	defer primaryStore.Close()

	backupStore, err := sqlite.New(cfg.Backup.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open backup store")
	}
	defer backupStore.Close()

	m := metrics.New("bookingd", prometheus.DefaultRegisterer)

	primaryEngine := booking.NewEngine(primaryStore, cfg.Booking.ReferenceAttempts, &logger)
	backupEngine := booking.NewEngine(backupStore, cfg.Booking.ReferenceAttempts, &logger)

	coordinator := booking.NewCoordinator(primaryEngine, backupEngine, booking.CoordinatorConfig{
		RecoveryBackoff:   cfg.RecoveryBackoff(),
		HealthInterval:    cfg.HealthInterval(),
		ExpectedSlotCount: cfg.Failover.ExpectedSlotCount,
	}, m, &logger)

	if err := coordinator.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize stores")
	}

	if *exportPath != "" {
		runExport(ctx, coordinator, &logger, *exportFrom, *exportTo, *exportPath)
		return
	}

	go coordinator.Run(ctx)

	snapshots := sqlite.NewSnapshotService(backupStore.Path(), sqlite.SnapshotConfig{
		Enabled:       cfg.Snapshot.Enabled,
		Interval:      cfg.SnapshotInterval(),
		StoragePath:   cfg.Snapshot.Path,
		RetentionDays: cfg.Snapshot.RetentionDays,
	}, &logger)
	go snapshots.Run(ctx)

	go runRetention(ctx, coordinator, cfg.Booking.RetentionDays, &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthPort, coordinator, backupStore, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		port := cfg.Monitoring.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go startMetricsServer(ctx, port, &logger)
	}

	logger.Info().Msg("booking coordinator started")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

func runExport(ctx context.Context, coordinator *booking.Coordinator, logger *zerolog.Logger, from, to, path string) {
	if from == "" || to == "" {
		logger.Fatal().Msg("-export requires -from and -to dates")
	}

	exporter := report.NewExporter(coordinator, logger)
	rows, err := exporter.Export(ctx, from, to, path)
	if err != nil {
		logger.Fatal().Err(err).Msg("export failed")
	}
	logger.Info().Int("rows", rows).Str("path", path).Msg("export written")
}

// runRetention deletes terminal appointments past the retention window
// once a day.
func runRetention(ctx context.Context, coordinator *booking.Coordinator, daysToKeep int, logger *zerolog.Logger) {
	if daysToKeep <= 0 {
		daysToKeep = 365
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := coordinator.CleanupExpired(ctx, daysToKeep); err != nil {
				logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, coordinator *booking.Coordinator, backup *sqlite.Store, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := backup.Ping(ctxPing); err != nil {
			http.Error(w, "backup store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) {
		status := coordinator.Status()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"primary":%q,"backup":%q,"last_checked_at":%q}`,
			status.Primary, status.Backup, status.LastCheckedAt.Format(time.RFC3339))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
