package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
)

const defaultChatHistoryLimit = 20

// ChatComposer answers follow-up questions against a persisted analysis.
// The grounding context quotes the stored payload verbatim; conversation
// turns are persisted in order, and a failed reasoning call is recorded
// as a system message rather than silently dropping the turn.
type ChatComposer struct {
	analyses  ports.AnalysisRepository
	messages  ports.ChatMessageRepository
	reasoning ports.ReasoningService
	metrics   ports.PipelineMetrics

	timeout      time.Duration
	historyLimit int
}

func NewChatComposer(
	analyses ports.AnalysisRepository,
	messages ports.ChatMessageRepository,
	reasoning ports.ReasoningService,
	metrics ports.PipelineMetrics,
	timeout time.Duration,
	historyLimit int,
) *ChatComposer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if historyLimit <= 0 {
		historyLimit = defaultChatHistoryLimit
	}
	return &ChatComposer{
		analyses:     analyses,
		messages:     messages,
		reasoning:    reasoning,
		metrics:      metrics,
		timeout:      timeout,
		historyLimit: historyLimit,
	}
}

func (c *ChatComposer) Respond(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	start := time.Now()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat respond", errors.New("message is empty"))
	}

	analysis, err := c.loadOwnedAnalysis(ctx, req.UserID, req.AnalysisID)
	if err != nil {
		return nil, err
	}
	if analysis.Payload == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat respond",
			fmt.Errorf("analysis %s has no result yet (status=%s)", analysis.ID, analysis.Status))
	}

	history, err := c.messages.ListByAnalysis(ctx, analysis.ID, c.historyLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "load chat history", err)
	}

	// The user turn is persisted before the reasoning call so it is
	// never lost to an upstream failure.
	userMsg := domain.ChatMessage{
		ID:         uuid.NewString(),
		AnalysisID: analysis.ID,
		UserID:     req.UserID,
		Role:       domain.ChatRoleUser,
		Content:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.messages.Append(ctx, userMsg); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "append user message", err)
	}

	system := buildChatContext(renderPayloadSections(analysis.Payload), analysis.Fallback || analysis.Payload.Fallback)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	answer, err := c.reasoning.CompleteChat(callCtx, system, history, message)
	cancel()
	if err != nil {
		mapped := mapStageError(ctx, domain.ErrAnalysis, "chat completion", err)
		c.persistTurnFailure(ctx, analysis.ID, req.UserID, mapped)
		c.recordChat("error", start)
		return nil, mapped
	}

	assistantMsg := domain.ChatMessage{
		ID:         uuid.NewString(),
		AnalysisID: analysis.ID,
		UserID:     req.UserID,
		Role:       domain.ChatRoleAssistant,
		Content:    strings.TrimSpace(answer),
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.messages.Append(ctx, assistantMsg); err != nil {
		// The answer was produced; losing the row is a persistence
		// problem, not a conversation failure.
		slog.Error("append_assistant_message_failed", "analysis_id", analysis.ID, "error", err)
	}

	c.recordChat("ok", start)
	return &domain.ChatReply{
		AnalysisID: analysis.ID,
		Message:    assistantMsg,
	}, nil
}

func (c *ChatComposer) History(ctx context.Context, userID, analysisID string) ([]domain.ChatMessage, error) {
	if _, err := c.loadOwnedAnalysis(ctx, userID, analysisID); err != nil {
		return nil, err
	}
	messages, err := c.messages.ListByAnalysis(ctx, analysisID, 0)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "load chat history", err)
	}
	return messages, nil
}

func (c *ChatComposer) loadOwnedAnalysis(ctx context.Context, userID, analysisID string) (*domain.Analysis, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(analysisID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("user id and analysis id are required"))
	}
	analysis, err := c.analyses.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis.UserID != userID {
		return nil, domain.WrapError(domain.ErrUnauthorized, "chat",
			fmt.Errorf("analysis %s is not owned by the requesting user", analysisID))
	}
	return analysis, nil
}

func (c *ChatComposer) persistTurnFailure(ctx context.Context, analysisID, userID string, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	systemMsg := domain.ChatMessage{
		ID:         uuid.NewString(),
		AnalysisID: analysisID,
		UserID:     userID,
		Role:       domain.ChatRoleSystem,
		Content:    fmt.Sprintf("assistant reply failed: %v", cause),
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.messages.Append(persistCtx, systemMsg); err != nil {
		slog.Error("append_system_message_failed", "analysis_id", analysisID, "error", err)
	}
}

func (c *ChatComposer) recordChat(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordChatTurn(outcome, time.Since(start).Seconds())
	}
}

// renderPayloadSections reproduces the stored sections verbatim as
// indented JSON; facts are never re-derived or re-inferred here.
func renderPayloadSections(p *domain.ReportPayload) string {
	sections := map[string]any{
		"overview":    p.Overview,
		"disputes":    p.Disputes,
		"creditHacks": p.CreditHacks,
		"creditCards": p.CreditCards,
		"sideHustles": p.SideHustles,
	}
	rendered, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return p.Overview.Summary
	}
	return string(rendered)
}
