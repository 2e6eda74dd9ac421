package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/infrastructure/resilience"
)

type Config struct {
	APIKey  string
	BaseURL string

	VisionModel   string
	AnalysisModel string
	ChatModel     string

	MaxOutputTokens   int
	Temperature       float32
	RequestsPerSecond float64
	Burst             int

	// Usage, when set, receives token counts reported by the API.
	Usage UsageRecorder
}

// UsageRecorder consumes per-call token accounting.
type UsageRecorder interface {
	RecordTokenUsage(model string, promptTokens, completionTokens int)
}

// Client adapts the OpenAI chat-completions API to the reasoning-service
// port. Every call goes through the shared rate limiter and the
// resilience executor; transient upstream failures come back wrapped as
// domain.ErrTemporary.
type Client struct {
	api      *openai.Client
	cfg      Config
	limiter  *rate.Limiter
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "openai client", fmt.Errorf("api key is required"))
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = "gpt-4o"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = cfg.AnalysisModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:      openai.NewClientWithConfig(apiCfg),
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		executor: executor,
	}, nil
}

const transcriptionInstruction = `You are a document transcription service.
Transcribe ALL visible text from the provided document verbatim.
Do not summarize, interpret, or omit anything. Preserve numbers, account
names, dates, and section headings exactly as they appear. Return plain
text only.`

func (c *Client) TranscribeDocument(ctx context.Context, mediaType domain.MediaType, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "transcribe document", fmt.Errorf("empty document body"))
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", string(mediaType), base64.StdEncoding.EncodeToString(data))
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.VisionModel,
		MaxTokens:   c.cfg.MaxOutputTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: transcriptionInstruction},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Transcribe this credit report document."},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	return c.complete(ctx, "openai.transcribe", req)
}

func (c *Client) GenerateStructuredAnalysis(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.AnalysisModel,
		MaxTokens:   c.cfg.MaxOutputTokens,
		Temperature: c.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	return c.complete(ctx, "openai.analyze", req)
}

func (c *Client) CompleteChat(ctx context.Context, system string, history []domain.ChatMessage, userMessage string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == domain.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if msg.Role == domain.ChatRoleSystem {
			// Error placeholders are for the record, not for the model.
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		MaxTokens:   c.cfg.MaxOutputTokens,
		Temperature: c.cfg.Temperature,
		Messages:    messages,
	}

	return c.complete(ctx, "openai.chat", req)
}

func (c *Client) complete(ctx context.Context, operation string, req openai.ChatCompletionRequest) (string, error) {
	var content string
	call := func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s: response carried no choices", operation)
		}
		if c.cfg.Usage != nil {
			c.cfg.Usage.RecordTokenUsage(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyAPIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return content, nil
}
