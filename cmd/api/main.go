package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/api/rest"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/phi"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/risk"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/cache"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/store"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/telemetry"
	"github.com/davidleathers/crossborder-health-compliance/internal/metrics"
	"github.com/davidleathers/crossborder-health-compliance/internal/service/evaluation"
)

// retryInterval paces background replays of queued ledger appends.
const retryInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "cbhc-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown telemetry: %v", err)
		}
	}()

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to set up infrastructure logger: %v", err)
	}
	defer zapLogger.Sync()

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to load regulation catalog: %v", err)
	}
	logger.Info("regulation catalog loaded", "version", cat.Version())

	ledgerStore, err := store.New(ctx, &cfg.Ledger, zapLogger.Named("store"))
	if err != nil {
		log.Fatalf("Failed to open ledger store: %v", err)
	}

	registry, err := metrics.NewRegistry("cbhc-api")
	if err != nil {
		log.Fatalf("Failed to create metrics registry: %v", err)
	}

	var evalCache cache.Cache
	if cfg.Redis.Enabled {
		evalCache, err = cache.NewRedisCache(&cfg.Redis, zapLogger.Named("cache"))
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer evalCache.Close()
	}

	svc := evaluation.NewService(
		cat,
		phi.NewDetector(cat, nil, cfg.PHI.ClassifierTimeout),
		risk.NewScorer(cat, cfg.Risk.Thresholds),
		audit.NewLedger(ledgerStore, cfg.Ledger.Retention),
		logger,
		evaluation.Config{
			Cache:    evalCache,
			CacheTTL: cfg.Redis.CacheTTL,
			Registry: registry,
		},
	)

	go retryLoop(ctx, svc, logger)

	server := rest.NewServer(&cfg.Server, rest.NewHandler(svc, logger), logger, registry)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// retryLoop periodically replays ledger appends that failed against the
// store. A standing pending queue is an alarm condition, not a steady state.
func retryLoop(ctx context.Context, svc *evaluation.Service, logger *slog.Logger) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RetryPendingAppends(ctx); err != nil {
				logger.Warn("ledger retry failed", "error", err)
			}
		}
	}
}
