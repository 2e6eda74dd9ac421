package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/creditlens/creditlens/internal/adapters/http"
	"github.com/creditlens/creditlens/internal/bootstrap"
	"github.com/creditlens/creditlens/internal/config"
	"github.com/creditlens/creditlens/internal/core/ports"
	"github.com/creditlens/creditlens/internal/observability/logging"
	"github.com/creditlens/creditlens/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logging.Setup("creditlens-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("creditlens-api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Deps{
		Registerer: httpMetrics.Registry(),
		MetricsFactory: func(registerer prometheus.Registerer) ports.PipelineMetrics {
			return metrics.NewPipelineMetrics("creditlens-api", registerer)
		},
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Orchestrator,
		app.Chat,
		app.Enqueuer,
		app.AnalysisRepo,
		httpMetrics.Handler(),
		httpadapter.RouterConfig{
			MaxUploadBytes: cfg.MaxUploadBytes,
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxInFlight:    cfg.APIMaxInFlight,
		},
	)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: httpMetrics.Middleware("creditlens-api", router.Handler()),
		// The sync pipeline can legitimately hold a request for the
		// full budget, so the write timeout sits above it.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.PipelineBudget + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
