package ports

import (
	"context"
	"io"

	"github.com/creditlens/creditlens/internal/core/domain"
)

// ReasoningService is the external LLM boundary. It is a black box that
// accepts prompts and returns raw text; all contract enforcement
// (timeouts, retries, schema validation) happens on this side.
type ReasoningService interface {
	// TranscribeDocument performs a vision-capable transcription of an
	// image or PDF and returns the visible text verbatim.
	TranscribeDocument(ctx context.Context, mediaType domain.MediaType, data []byte) (string, error)
	// GenerateStructuredAnalysis sends the structured-analysis prompt and
	// returns the raw model output, possibly wrapped in extraneous prose.
	GenerateStructuredAnalysis(ctx context.Context, prompt string) (string, error)
	// CompleteChat issues one chat completion over the given messages.
	CompleteChat(ctx context.Context, system string, history []domain.ChatMessage, userMessage string) (string, error)
}

// PDFTextExtractor pulls the embedded text layer out of a PDF without a
// reasoning call. An empty result means the PDF is image-only.
type PDFTextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// AnalysisRepository persists analysis records. Only the orchestrator
// writes status transitions.
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *domain.Analysis) error
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, status domain.AnalysisStatus, payload *domain.ReportPayload, fallback bool, errMessage string) error
}

// ChatMessageRepository appends and lists chat turns for an analysis.
// Messages are append-only and ordered by creation time.
type ChatMessageRepository interface {
	Append(ctx context.Context, message domain.ChatMessage) error
	ListByAnalysis(ctx context.Context, analysisID string, limit int) ([]domain.ChatMessage, error)
}

// AnalysisCache is the content-addressed fingerprint cache. Both reads
// and writes must be safe under concurrent orchestrations.
type AnalysisCache interface {
	Get(fingerprint string) (*domain.ReportPayload, bool)
	Put(fingerprint string, payload *domain.ReportPayload)
	// Acquire claims the in-flight marker for a fingerprint. The first
	// caller becomes the leader (done must be called when finished);
	// followers receive leader=false and should wait or recompute.
	Acquire(fingerprint string) (leader bool, done func())
}

// Notifier emits one user-facing notification per terminal pipeline
// state. Failures are logged and swallowed by callers.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, severity string) error
}

// ObjectStorage stores raw uploads for the async worker path.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobQueue publishes/consumes queued analysis jobs.
type JobQueue interface {
	PublishAnalysisRequested(ctx context.Context, analysisID string) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineMetrics receives pipeline observations. Implementations must
// be safe for concurrent use.
type PipelineMetrics interface {
	RecordAnalysis(outcome string, fallback bool, duration float64)
	RecordStage(stage, outcome string, duration float64)
	RecordCacheLookup(hit bool)
	RecordSuspiciousResult()
	RecordChatTurn(outcome string, duration float64)
}
