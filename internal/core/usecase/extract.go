package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
)

// ExtractionStage turns the raw upload into plain text. Text input
// passes through unchanged. PDFs try the embedded text layer first and
// only fall through to a vision transcription when it is empty; images
// always go through vision. Empty output is a failure, never a
// degenerate success.
type ExtractionStage struct {
	reasoning ports.ReasoningService
	pdfText   ports.PDFTextExtractor
}

func NewExtractionStage(reasoning ports.ReasoningService, pdfText ports.PDFTextExtractor) *ExtractionStage {
	return &ExtractionStage{
		reasoning: reasoning,
		pdfText:   pdfText,
	}
}

func (s *ExtractionStage) Run(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	if req.MediaType.IsText() {
		text := strings.TrimSpace(req.Text)
		if text == "" {
			text = strings.TrimSpace(string(req.Data))
		}
		if text == "" {
			return "", domain.WrapError(domain.ErrExtraction, "extract text", errors.New("text input is empty"))
		}
		return text, nil
	}

	if req.MediaType == domain.MediaTypePDF && s.pdfText != nil {
		text, err := s.pdfText.ExtractText(req.Data)
		if err != nil {
			slog.Warn("pdf_text_layer_failed", "error", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
		// Image-only PDF; transcribe it like a scan.
	}

	text, err := s.reasoning.TranscribeDocument(ctx, req.MediaType, req.Data)
	if err != nil {
		return "", mapStageError(ctx, domain.ErrExtraction, "transcribe document", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrExtraction, "transcribe document", errors.New("transcription returned no text"))
	}
	return text, nil
}

// mapStageError converts transport failures into the pipeline taxonomy:
// deadline → ErrTimeout, caller cancellation → ErrCancelled, everything
// else keeps the stage kind.
func mapStageError(ctx context.Context, kind error, operation string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTimeout, operation, err)
	case errors.Is(err, context.Canceled):
		if ctx.Err() != nil {
			return domain.WrapError(domain.ErrCancelled, operation, err)
		}
		return domain.WrapError(kind, operation, err)
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrConfiguration):
		return err
	default:
		return domain.WrapError(kind, operation, err)
	}
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return fmt.Sprintf("%s\n[truncated at %d characters]", string(runes[:limit]), limit)
}
