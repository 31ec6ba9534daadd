package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/healthtrack/internal/api"
	"example.com/healthtrack/internal/auth"
	"example.com/healthtrack/internal/config"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/observability"
	"example.com/healthtrack/internal/outbox"
	"example.com/healthtrack/internal/persistence/memory"
	"example.com/healthtrack/internal/persistence/postgres"
	httptransport "example.com/healthtrack/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "healthtrack-api")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem, seeded, err := newMemoryRepository(cfg)
		if err != nil {
			logger.Fatal("failed to seed in-memory store", zap.Error(err))
		}
		repo = mem
		logger.Info("using in-memory store", zap.Int("seeded_patients", seeded))
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if cfg.OutboxActive() {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, logger.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	}

	service := domain.NewService(repo,
		domain.WithLogger(logger.Named("domain")),
		domain.WithCreateAttempts(cfg.BucketCreateAttempts),
	)

	handler := api.NewHandler(service, logger.Named("api"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger.Named("auth"))

	httpLogger := logger.Named("http")
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.HTTPAddress,
		IdleTimeout: 90 * time.Second,
	}, api.RequestLogger(httpLogger)(api.CORS(cfg.CORSAllowedOrigin)(authMiddleware.Wrap(mux))), httpLogger)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("healthtrack api listening", zap.String("address", cfg.HTTPAddress), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

// newMemoryRepository builds the in-memory store and registers the SEED_PATIENTS profiles.
func newMemoryRepository(cfg config.Config) (*memory.Repository, int, error) {
	seeds, err := cfg.PatientSeeds()
	if err != nil {
		return nil, 0, err
	}
	repo := memory.NewRepository()
	for _, seed := range seeds {
		repo.PutPatient(domain.PatientProfile{PatientID: seed.ID, WaterGoal: seed.WaterGoal, StepsGoal: seed.StepsGoal})
	}
	return repo, len(seeds), nil
}
