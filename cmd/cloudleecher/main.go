package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/cloudleecher/internal/cleanup"
	"github.com/italolelis/cloudleecher/internal/config"
	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/engine/aria2"
	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/http/rest"
	"github.com/italolelis/cloudleecher/internal/logbuf"
	"github.com/italolelis/cloudleecher/internal/logctx"
	"github.com/italolelis/cloudleecher/internal/notifier"
	"github.com/italolelis/cloudleecher/internal/queue"
	"github.com/italolelis/cloudleecher/internal/relocate"
	"github.com/italolelis/cloudleecher/internal/status"
	"github.com/italolelis/cloudleecher/internal/storage/sqlite"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"github.com/italolelis/cloudleecher/internal/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
)

const dirPerm = 0o755

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	// Logs fan out to stdout and to the in-memory ring the /api/logs
	// endpoint serves.
	ring := logbuf.NewRing(cfg.LogBufferSize)

	logger := slog.New(logctx.NewTraceHandler(slogmulti.Fanout(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
		logbuf.NewHandler(ring, cfg.SlogLevel()),
	)))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("cloudleecher starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg, ring); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, ring *logbuf.Ring) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	if cfg.Telemetry.Enabled {
		if err := otelruntime.Start(); err != nil {
			logger.Warn("failed to start runtime instrumentation", "err", err)
		}
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	archive := sqlite.NewInstrumentedCompletionRepository(database, tel)

	// =========================================================================
	// Start Engine Client
	ec := engine.NewInstrumentedClient(
		aria2.NewClient(cfg.EngineRPCURL, cfg.EngineSecret, cfg.EngineTimeout),
		tel,
	)

	version, err := ec.Version(ctx)
	if err != nil {
		return fmt.Errorf("download engine not reachable at %s: %w", cfg.EngineRPCURL, err)
	}

	logger.Info("connected to download engine", "engine_version", version)

	if err := os.MkdirAll(cfg.StagingDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	if err := os.MkdirAll(cfg.DriveDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create durable dir: %w", err)
	}

	// Leftovers from a previous engine session would show up as downloads
	// nobody asked for this session.
	if err := cleanup.PurgeStaleResults(ctx, ec); err != nil {
		logger.Warn("failed to purge stale downloads", "err", err)
	}

	// =========================================================================
	// Start Stores
	hist := history.NewStore()

	archived, err := archive.Completions(ctx)
	if err != nil {
		logger.Warn("failed to load completion archive", "err", err)
	}

	for _, e := range archived {
		hist.Add(e)
	}

	removed := suppress.NewSet()

	// =========================================================================
	// Start Relocation Pipeline
	pipeline := relocate.NewPipeline(ec, hist, archive, removed, relocate.Config{
		StagingDir:  cfg.StagingDir,
		DurableDir:  cfg.DriveDir,
		Interval:    cfg.MonitorInterval,
		MaxTries:    cfg.RelocateMaxRetries,
		MaxParallel: cfg.MaxParallel,
		Metrics:     tel,
	})

	go pipeline.Run(ctx)

	setupNotifications(ctx, pipeline, cfg)

	// =========================================================================
	// Start API Service
	qc := queue.NewController(ec, removed)
	agg := status.NewAggregator(ec, pipeline, hist, removed)

	api := rest.NewAPIHandler(rest.APIConfig{
		APIKey:            cfg.APIKey,
		StagingDir:        cfg.StagingDir,
		DriveDir:          cfg.DriveDir,
		DriveInfoCacheTTL: cfg.DriveInfoCacheTTL,
	}, qc, agg, ec, removed, ring, hist, tel)

	server := setupServer(ctx, api, tel, cfg)

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("watching for completed downloads...",
		"staging_dir", cfg.StagingDir,
		"drive_dir", cfg.DriveDir,
		"monitor_interval", cfg.MonitorInterval.String(),
	)

	// =========================================================================
	// Start Main Loop
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

func setupNotifications(ctx context.Context, pipeline *relocate.Pipeline, cfg *config.Config) {
	if cfg.DiscordWebhookURL == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)
	notif := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-pipeline.OnSaved:
				if err := notif.Notify(ctx, "✅ Saved to drive: "+e.Name); err != nil {
					logger.Error("failed to send notification", "gid", e.GID, "err", err)
				}
			case r := <-pipeline.OnFailed:
				if err := notif.Notify(ctx, "❌ Move failed for: "+r.Name+" ("+r.Error+")"); err != nil {
					logger.Error("failed to send notification", "gid", r.GID, "err", err)
				}
			}
		}
	}()
}

// setupServer prepares the router, middlewares and the http server.
func setupServer(ctx context.Context, api *rest.APIHandler, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", api.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "http.server"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
