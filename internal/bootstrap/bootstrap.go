package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/creditlens/creditlens/internal/config"
	"github.com/creditlens/creditlens/internal/core/ports"
	"github.com/creditlens/creditlens/internal/core/usecase"
	"github.com/creditlens/creditlens/internal/infrastructure/cache"
	"github.com/creditlens/creditlens/internal/infrastructure/extractor/pdftext"
	"github.com/creditlens/creditlens/internal/infrastructure/llm/openai"
	"github.com/creditlens/creditlens/internal/infrastructure/queue/nats"
	"github.com/creditlens/creditlens/internal/infrastructure/repository/postgres"
	"github.com/creditlens/creditlens/internal/infrastructure/resilience"
	"github.com/creditlens/creditlens/internal/infrastructure/storage/localfs"
)

// App wires the pipeline once for both binaries; api and worker differ
// only in which entry points they use and where /metrics lives.
type App struct {
	Config config.Config

	Queue        *nats.Queue
	AnalysisRepo *postgres.AnalysisRepository
	ChatRepo     *postgres.ChatMessageRepository
	Orchestrator ports.ReportAnalysisService
	Chat         ports.ReportChatService
	Enqueuer     *usecase.AnalysisEnqueuer
	Metrics      ports.PipelineMetrics

	closeFn func()
}

// Deps are the per-binary observability hooks. MetricsRegisterer is the
// binary's private registry; MetricsFactory builds the pipeline metrics
// against it.
type Deps struct {
	MetricsFactory func(registerer prometheus.Registerer) ports.PipelineMetrics
	Registerer     prometheus.Registerer
}

func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	analysisRepo := postgres.NewAnalysisRepository(db)
	if err := analysisRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chatRepo := postgres.NewChatMessageRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSAnalysisSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	notifier := nats.NewNotifier(queue, cfg.NATSNotificationSubject)

	var metrics ports.PipelineMetrics
	if deps.MetricsFactory != nil {
		metrics = deps.MetricsFactory(deps.Registerer)
	}
	var usage openai.UsageRecorder
	if rec, ok := metrics.(openai.UsageRecorder); ok {
		usage = rec
	}

	reasoning, err := openai.New(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		VisionModel:       cfg.OpenAIVisionModel,
		AnalysisModel:     cfg.OpenAIAnalysisModel,
		ChatModel:         cfg.OpenAIChatModel,
		MaxOutputTokens:   cfg.OpenAIMaxTokens,
		RequestsPerSecond: cfg.OpenAIRPS,
		Burst:             cfg.OpenAIBurst,
		Usage:             usage,
	}, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init reasoning client: %w", err)
	}

	fingerprints := cache.New(
		cache.WithCapacity(cfg.CacheCapacity),
		cache.WithTTL(cfg.CacheTTL),
	)

	orchestrator := usecase.NewAnalysisOrchestrator(
		analysisRepo,
		storage,
		fingerprints,
		usecase.NewExtractionStage(reasoning, pdftext.New()),
		usecase.NewAnalysisStage(reasoning, cfg.PromptVersion, cfg.MaxAnalysisChars),
		usecase.NewFallbackGenerator(),
		notifier,
		metrics,
		usecase.PipelineBudget{
			Total:             cfg.PipelineBudget,
			Margin:            cfg.PipelineMargin,
			ExtractionTimeout: cfg.ExtractionTimeout,
			AnalysisTimeout:   cfg.AnalysisTimeout,
			MaxUploadBytes:    cfg.MaxUploadBytes,
		},
	)

	chat := usecase.NewChatComposer(
		analysisRepo,
		chatRepo,
		reasoning,
		metrics,
		cfg.ChatTimeout,
		cfg.ChatHistoryLimit,
	)

	enqueuer := usecase.NewAnalysisEnqueuer(analysisRepo, storage, queue, cfg.MaxUploadBytes)

	return &App{
		Config:       cfg,
		Queue:        queue,
		AnalysisRepo: analysisRepo,
		ChatRepo:     chatRepo,
		Orchestrator: orchestrator,
		Chat:         chat,
		Enqueuer:     enqueuer,
		Metrics:      metrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Healthz is shared by both binaries' auxiliary servers.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
