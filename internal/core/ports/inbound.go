package ports

import (
	"context"

	"github.com/creditlens/creditlens/internal/core/domain"
)

// ReportAnalysisService runs the end-to-end analysis pipeline.
type ReportAnalysisService interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error)
	AnalyzeByID(ctx context.Context, analysisID string) error
}

// ReportChatService answers follow-up questions against a persisted
// analysis.
type ReportChatService interface {
	Respond(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error)
	History(ctx context.Context, userID, analysisID string) ([]domain.ChatMessage, error)
}
