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

	"github.com/creditlens/creditlens/internal/bootstrap"
	"github.com/creditlens/creditlens/internal/config"
	"github.com/creditlens/creditlens/internal/core/ports"
	"github.com/creditlens/creditlens/internal/observability/logging"
	"github.com/creditlens/creditlens/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logging.Setup("creditlens-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("creditlens-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Deps{
		Registerer: workerMetrics.Registry(),
		MetricsFactory: func(registerer prometheus.Registerer) ports.PipelineMetrics {
			return metrics.NewPipelineMetrics("creditlens-worker", registerer)
		},
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", bootstrap.Healthz)
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: mux,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	jobBudget := cfg.PipelineBudget + 30*time.Second

	slog.Info("worker_subscribed", "subject", cfg.NATSAnalysisSubject)
	err = app.Queue.SubscribeAnalysisRequested(ctx, func(handlerCtx context.Context, analysisID string) error {
		workerMetrics.StartJob()
		start := time.Now()

		if record, lookupErr := app.AnalysisRepo.GetByID(handlerCtx, analysisID); lookupErr == nil {
			workerMetrics.ObserveQueueLag("creditlens-worker", start.Sub(record.CreatedAt))
		}

		jobCtx, cancel := context.WithTimeout(handlerCtx, jobBudget)
		defer cancel()
		jobErr := app.Orchestrator.AnalyzeByID(jobCtx, analysisID)
		workerMetrics.FinishJob("creditlens-worker", time.Since(start), jobErr)
		return jobErr
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
