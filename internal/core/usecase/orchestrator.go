package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
	"github.com/creditlens/creditlens/internal/infrastructure/resilience"
)

type PipelineBudget struct {
	// Total is the caller's overall budget; the pipeline deadline is
	// Total minus Margin so there is always room to persist a fallback.
	Total  time.Duration
	Margin time.Duration

	ExtractionTimeout time.Duration
	AnalysisTimeout   time.Duration

	MaxUploadBytes int64
}

func (b PipelineBudget) normalize() PipelineBudget {
	out := b
	if out.Total <= 0 {
		out.Total = 280 * time.Second
	}
	if out.Margin <= 0 {
		out.Margin = 20 * time.Second
	}
	if out.ExtractionTimeout <= 0 {
		out.ExtractionTimeout = 120 * time.Second
	}
	if out.AnalysisTimeout <= 0 {
		out.AnalysisTimeout = 180 * time.Second
	}
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = 15 << 20
	}
	return out
}

// AnalysisOrchestrator composes the end-to-end pipeline: fingerprint →
// cache → extract → analyze → validate → persist → notify. It is the
// only writer of Analysis status transitions. Every invocation returns
// either a completed result or an explicitly-labeled fallback; only
// invalid input, configuration problems, and caller cancellation
// propagate as errors.
type AnalysisOrchestrator struct {
	repo       ports.AnalysisRepository
	storage    ports.ObjectStorage
	cache      ports.AnalysisCache
	extraction *ExtractionStage
	analysis   *AnalysisStage
	fallback   *FallbackGenerator
	notifier   ports.Notifier
	metrics    ports.PipelineMetrics
	budget     PipelineBudget
}

func NewAnalysisOrchestrator(
	repo ports.AnalysisRepository,
	storage ports.ObjectStorage,
	cache ports.AnalysisCache,
	extraction *ExtractionStage,
	analysis *AnalysisStage,
	fallback *FallbackGenerator,
	notifier ports.Notifier,
	metrics ports.PipelineMetrics,
	budget PipelineBudget,
) *AnalysisOrchestrator {
	return &AnalysisOrchestrator{
		repo:       repo,
		storage:    storage,
		cache:      cache,
		extraction: extraction,
		analysis:   analysis,
		fallback:   fallback,
		notifier:   notifier,
		metrics:    metrics,
		budget:     budget.normalize(),
	}
}

func (o *AnalysisOrchestrator) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Analysis{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		MediaType: req.MediaType,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.repo.Create(ctx, record); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "create analysis record", err)
	}

	return o.run(ctx, record, req)
}

// AnalyzeByID is the worker entry point: it reloads a queued record and
// its stored upload and runs the same pipeline against it.
func (o *AnalysisOrchestrator) AnalyzeByID(ctx context.Context, analysisID string) error {
	record, err := o.repo.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}
	if record.Status != domain.StatusQueued {
		slog.Info("analysis_already_processed", "analysis_id", analysisID, "status", record.Status)
		return nil
	}

	req := domain.AnalysisRequest{
		UserID:    record.UserID,
		MediaType: record.MediaType,
	}
	if record.StoragePath != "" {
		reader, err := o.storage.Open(ctx, record.StoragePath)
		if err != nil {
			return domain.WrapError(domain.ErrPersistence, "open stored upload", err)
		}
		data, readErr := io.ReadAll(reader)
		_ = reader.Close()
		if readErr != nil {
			return domain.WrapError(domain.ErrPersistence, "read stored upload", readErr)
		}
		if record.MediaType.IsText() {
			req.Text = string(data)
		} else {
			req.Data = data
		}
	}
	if err := o.validateRequest(req); err != nil {
		o.persistError(ctx, record.ID, err)
		return err
	}

	_, err = o.run(ctx, record, req)
	return err
}

func (o *AnalysisOrchestrator) run(ctx context.Context, record *domain.Analysis, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
	start := time.Now()
	fingerprint := Fingerprint(req)

	if payload, ok := o.cacheGet(fingerprint); ok {
		return o.finish(ctx, record, payload, start, true, 0, 0), nil
	}

	leader, release := o.cacheAcquire(fingerprint)
	defer release()
	if !leader {
		o.cacheWait(ctx, fingerprint)
		if payload, ok := o.cacheGet(fingerprint); ok {
			return o.finish(ctx, record, payload, start, true, 0, 0), nil
		}
		// Leader produced nothing cacheable; compute redundantly rather
		// than failing the request.
	}

	pipeCtx, cancel := resilience.StageBudget(ctx, o.budget.Total, o.budget.Margin)
	defer cancel()

	o.transition(ctx, record.ID, domain.StatusExtracting)
	extractStart := time.Now()
	extCtx, extCancel := context.WithTimeout(pipeCtx, o.budget.ExtractionTimeout)
	text, err := o.extraction.Run(extCtx, req)
	extCancel()
	extractMs := time.Since(extractStart).Milliseconds()
	if err != nil {
		o.recordStage("extraction", "error", extractStart)
		return o.handleStageFailure(ctx, record, fingerprint, err, start, extractMs, 0)
	}
	o.recordStage("extraction", "ok", extractStart)

	o.transition(ctx, record.ID, domain.StatusAnalyzing)
	analysisStart := time.Now()
	anaCtx, anaCancel := context.WithTimeout(pipeCtx, o.budget.AnalysisTimeout)
	payload, err := o.analysis.Run(anaCtx, text)
	anaCancel()
	analysisMs := time.Since(analysisStart).Milliseconds()
	if err != nil {
		o.recordStage("analysis", "error", analysisStart)
		return o.handleStageFailure(ctx, record, fingerprint, err, start, extractMs, analysisMs)
	}
	o.recordStage("analysis", "ok", analysisStart)

	o.cachePut(fingerprint, payload)
	return o.finish(ctx, record, payload, start, false, extractMs, analysisMs), nil
}

// handleStageFailure routes errors per the taxonomy: invalid input,
// configuration problems, and caller cancellation propagate without a
// fallback; everything else is substituted with the placeholder payload
// so the caller still gets a usable record.
func (o *AnalysisOrchestrator) handleStageFailure(
	ctx context.Context,
	record *domain.Analysis,
	fingerprint string,
	cause error,
	start time.Time,
	extractMs, analysisMs int64,
) (*domain.AnalysisOutcome, error) {
	switch {
	case domain.IsKind(cause, domain.ErrInvalidInput),
		domain.IsKind(cause, domain.ErrConfiguration),
		domain.IsKind(cause, domain.ErrCancelled):
		o.persistError(ctx, record.ID, cause)
		return nil, cause
	}

	slog.Warn("pipeline_fallback_substitution",
		"analysis_id", record.ID,
		"user_id", record.UserID,
		"error", cause,
		"timeout", domain.IsKind(cause, domain.ErrTimeout),
	)

	payload := o.fallback.Generate(cause)
	o.cachePut(fingerprint, payload)

	persistCtx := context.WithoutCancel(ctx)
	if err := o.repo.SaveResult(persistCtx, record.ID, domain.StatusError, payload, true, cause.Error()); err != nil {
		slog.Error("persist_fallback_result_failed", "analysis_id", record.ID, "error", err)
	}
	o.notify(persistCtx, record.UserID,
		"Credit report analysis incomplete",
		"We could not fully analyze your credit report. A placeholder result was saved; please try again.",
		"warning",
	)

	duration := time.Since(start)
	o.recordAnalysis("fallback", true, duration)
	return &domain.AnalysisOutcome{
		AnalysisID: record.ID,
		Payload:    payload,
		Fallback:   true,
		Metrics: domain.OutcomeMetrics{
			ProcessingTimeMs: duration.Milliseconds(),
			ExtractionTimeMs: extractMs,
			AnalysisTimeMs:   analysisMs,
		},
	}, nil
}

func (o *AnalysisOrchestrator) finish(
	ctx context.Context,
	record *domain.Analysis,
	payload *domain.ReportPayload,
	start time.Time,
	cacheHit bool,
	extractMs, analysisMs int64,
) *domain.AnalysisOutcome {
	status := domain.StatusCompleted
	if payload.Fallback {
		status = domain.StatusError
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := o.repo.SaveResult(persistCtx, record.ID, status, payload, payload.Fallback, ""); err != nil {
		// Persistence failures do not withhold the computed result.
		slog.Error("persist_analysis_result_failed", "analysis_id", record.ID, "error", err)
	}

	if payload.Suspicious {
		slog.Warn("suspicious_analysis_result", "analysis_id", record.ID, "user_id", record.UserID)
		if o.metrics != nil {
			o.metrics.RecordSuspiciousResult()
		}
	}

	if payload.Fallback {
		o.notify(persistCtx, record.UserID,
			"Credit report analysis incomplete",
			"We could not fully analyze your credit report. A placeholder result was saved; please try again.",
			"warning",
		)
	} else {
		o.notify(persistCtx, record.UserID,
			"Credit report analysis ready",
			"Your credit report analysis is complete.",
			"success",
		)
	}

	duration := time.Since(start)
	outcomeLabel := "completed"
	if payload.Fallback {
		outcomeLabel = "fallback"
	}
	if cacheHit {
		outcomeLabel = "cache_hit"
	}
	o.recordAnalysis(outcomeLabel, payload.Fallback, duration)

	return &domain.AnalysisOutcome{
		AnalysisID: record.ID,
		Payload:    payload,
		Fallback:   payload.Fallback,
		CacheHit:   cacheHit,
		Metrics: domain.OutcomeMetrics{
			ProcessingTimeMs: duration.Milliseconds(),
			ExtractionTimeMs: extractMs,
			AnalysisTimeMs:   analysisMs,
		},
	}
}

func (o *AnalysisOrchestrator) validateRequest(req domain.AnalysisRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("user id is required"))
	}
	if !req.MediaType.Supported() {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", fmt.Errorf("unsupported media type: %s", req.MediaType))
	}
	if req.MediaType.IsText() {
		if strings.TrimSpace(req.Text) == "" && len(req.Data) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("text input is empty"))
		}
	} else if len(req.Data) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("document body is empty"))
	}
	if int64(len(req.Data)) > o.budget.MaxUploadBytes {
		return domain.WrapError(domain.ErrInvalidInput, "validate request",
			fmt.Errorf("upload of %d bytes exceeds limit of %d", len(req.Data), o.budget.MaxUploadBytes))
	}
	return nil
}

func (o *AnalysisOrchestrator) transition(ctx context.Context, id string, status domain.AnalysisStatus) {
	if err := o.repo.UpdateStatus(ctx, id, status, ""); err != nil {
		slog.Error("status_transition_failed", "analysis_id", id, "status", status, "error", err)
	}
}

func (o *AnalysisOrchestrator) persistError(ctx context.Context, id string, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	if err := o.repo.UpdateStatus(persistCtx, id, domain.StatusError, cause.Error()); err != nil {
		slog.Error("persist_error_status_failed", "analysis_id", id, "error", err)
	}
}

// Notification failures never block pipeline completion.
func (o *AnalysisOrchestrator) notify(ctx context.Context, userID, title, message, severity string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, userID, title, message, severity); err != nil {
		slog.Warn("notification_failed", "user_id", userID, "title", title, "error", err)
	}
}

func (o *AnalysisOrchestrator) cacheGet(fingerprint string) (*domain.ReportPayload, bool) {
	if o.cache == nil {
		return nil, false
	}
	payload, ok := o.cache.Get(fingerprint)
	if o.metrics != nil {
		o.metrics.RecordCacheLookup(ok)
	}
	return payload, ok
}

func (o *AnalysisOrchestrator) cachePut(fingerprint string, payload *domain.ReportPayload) {
	if o.cache != nil {
		o.cache.Put(fingerprint, payload)
	}
}

func (o *AnalysisOrchestrator) cacheAcquire(fingerprint string) (bool, func()) {
	if o.cache == nil {
		return true, func() {}
	}
	return o.cache.Acquire(fingerprint)
}

func (o *AnalysisOrchestrator) cacheWait(ctx context.Context, fingerprint string) {
	type waiter interface {
		WaitInflight(done <-chan struct{}, fingerprint string)
	}
	if w, ok := o.cache.(waiter); ok {
		w.WaitInflight(ctx.Done(), fingerprint)
	}
}

func (o *AnalysisOrchestrator) recordStage(stage, outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStage(stage, outcome, time.Since(start).Seconds())
	}
}

func (o *AnalysisOrchestrator) recordAnalysis(outcome string, fallback bool, duration time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordAnalysis(outcome, fallback, duration.Seconds())
	}
}
