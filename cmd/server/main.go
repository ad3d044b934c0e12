package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AniruddhAgrahari/smartstock/internal/api"
	"github.com/AniruddhAgrahari/smartstock/internal/cache"
	"github.com/AniruddhAgrahari/smartstock/internal/config"
	"github.com/AniruddhAgrahari/smartstock/internal/drive"
	"github.com/AniruddhAgrahari/smartstock/internal/engine"
	"github.com/AniruddhAgrahari/smartstock/internal/metrics"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
	"github.com/AniruddhAgrahari/smartstock/internal/repository/postgres"
	"github.com/AniruddhAgrahari/smartstock/internal/service"
	"github.com/AniruddhAgrahari/smartstock/internal/storage"
	"github.com/AniruddhAgrahari/smartstock/pkg/logger"
	"github.com/AniruddhAgrahari/smartstock/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger.SetJSON(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tp *sdktrace.TracerProvider
	if cfg.Telemetry.Enabled {
		var err error
		tp, err = telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName:       cfg.Telemetry.ServiceName,
			Environment:       cfg.Telemetry.Environment,
			CollectorEndpoint: cfg.Telemetry.Endpoint,
			SamplingRate:      cfg.Telemetry.SampleRate,
		})
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
	}

	settings, err := cfg.Engine.Settings()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid engine configuration")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.New(registry)

	forecastCache, err := cache.NewForecastCache(cfg.Cache)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize forecast cache")
	}

	eng, err := engine.New(settings, engine.WithForecastCache(forecastCache), engine.WithMetrics(engineMetrics))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	historyRepo := postgres.NewHistoryRepository(db)
	opts := []service.Option{
		service.WithHistory(historyRepo),
		service.WithItems(postgres.NewItemRepository(db)),
		service.WithRuns(postgres.NewPlanRunRepository(db)),
	}
	if cfg.Storage.Enabled {
		store, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize plan archive")
		}
		opts = append(opts, service.WithArchive(storage.NewPlanArchive(store, cfg.Storage.Prefix)))
	}
	planningService := service.NewPlanningService(eng, opts...)

	router := api.NewRouter(&api.Services{PlanningService: planningService}, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	opsSrv := &http.Server{
		Addr:    ":" + cfg.Server.MetricsPort,
		Handler: opsRouter(ctx, cfg, registry, historyRepo),
	}

	// Start servers in goroutines
	for _, s := range []*http.Server{srv, opsSrv} {
		go func(s *http.Server) {
			logger.Log.Info().Str("addr", s.Addr).Msg("Starting server")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Fatal().Err(err).Str("addr", s.Addr).Msg("Failed to start server")
			}
		}(s)
	}

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range []*http.Server{srv, opsSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Str("addr", s.Addr).Msg("Server forced to shutdown")
		}
	}
	if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to flush traces")
	}

	logger.Log.Info().Msg("Server exiting")
}

// opsRouter serves health, metrics and the Drive import routes.
func opsRouter(ctx context.Context, cfg *config.Config, registry *prometheus.Registry, historyRepo repository.HistoryRepository) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler(registry)).Methods("GET")

	if cfg.Drive.CredentialsFile == "" {
		logger.Log.Info().Msg("Drive credentials not configured, drive import disabled")
		return r
	}
	driveService, err := drive.NewServiceFromFile(ctx, cfg.Drive.CredentialsFile)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
	}
	importer := drive.NewImporter(drive.NewDownloader(driveService, cfg.Drive.DownloadDir), historyRepo)
	drive.NewHandler(driveService, importer).RegisterRoutes(r)
	return r
}
