package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
)

// AnalysisStage sends extracted report text to the reasoning service
// with a fixed-schema prompt and parses the structured result. It never
// returns an empty payload silently: parse and validation failures come
// back as ErrAnalysis with the raw response attached.
type AnalysisStage struct {
	reasoning     ports.ReasoningService
	promptVersion string
	maxInputChars int
}

func NewAnalysisStage(reasoning ports.ReasoningService, promptVersion string, maxInputChars int) *AnalysisStage {
	if strings.TrimSpace(promptVersion) == "" {
		promptVersion = DefaultPromptVersion
	}
	if maxInputChars <= 0 {
		maxInputChars = MaxAnalysisInputChars
	}
	return &AnalysisStage{
		reasoning:     reasoning,
		promptVersion: promptVersion,
		maxInputChars: maxInputChars,
	}
}

func (s *AnalysisStage) Run(ctx context.Context, reportText string) (*domain.ReportPayload, error) {
	prompt := BuildAnalysisPrompt(s.promptVersion, truncateRunes(reportText, s.maxInputChars))

	raw, err := s.reasoning.GenerateStructuredAnalysis(ctx, prompt)
	if err != nil {
		return nil, mapStageError(ctx, domain.ErrAnalysis, "generate analysis", err)
	}

	payload, err := ParseReportPayload(raw)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// reportEnvelope mirrors domain.ReportPayload but tolerates the loose
// score representations reasoning services actually produce.
type reportEnvelope struct {
	Overview struct {
		Score           flexibleScore `json:"score"`
		Summary         string        `json:"summary"`
		PositiveFactors []string      `json:"positiveFactors"`
		NegativeFactors []string      `json:"negativeFactors"`
	} `json:"overview"`
	Disputes    domain.Disputes    `json:"disputes"`
	CreditHacks domain.CreditHacks `json:"creditHacks"`
	CreditCards domain.CreditCards `json:"creditCards"`
	SideHustles domain.SideHustles `json:"sideHustles"`
}

// flexibleScore accepts null, a JSON number, or a numeric string.
// Anything non-numeric collapses to nil rather than failing the whole
// document; the range invariant is applied afterwards.
type flexibleScore struct {
	value *int
}

func (s *flexibleScore) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		s.value = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			s.value = nil
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			s.value = nil
			return nil
		}
		s.value = &n
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		s.value = nil
		return nil
	}
	n := int(f)
	s.value = &n
	return nil
}

// ParseReportPayload extracts the first top-level JSON object from the
// raw model output, validates it against the payload schema, and
// enforces the score invariant.
func ParseReportPayload(raw string) (*domain.ReportPayload, error) {
	span := extractJSONObject(raw)
	if !strings.HasPrefix(strings.TrimSpace(span), "{") {
		return nil, analysisParseError("no JSON object in analysis response", raw, errors.New("missing braces"))
	}

	var doc any
	if err := json.Unmarshal([]byte(span), &doc); err != nil {
		return nil, analysisParseError("unmarshal analysis response", raw, err)
	}
	if err := validateReportJSON(doc); err != nil {
		return nil, analysisParseError("validate analysis response", raw, err)
	}

	var env reportEnvelope
	if err := json.Unmarshal([]byte(span), &env); err != nil {
		return nil, analysisParseError("decode analysis response", raw, err)
	}

	score := domain.NormalizeScore(env.Overview.Score.value)
	if env.Overview.Score.value != nil && score == nil {
		slog.Warn("score_out_of_range_collapsed", "raw_score", *env.Overview.Score.value)
	}

	payload := &domain.ReportPayload{
		Overview: domain.Overview{
			Score:           score,
			Summary:         strings.TrimSpace(env.Overview.Summary),
			PositiveFactors: emptyIfNil(env.Overview.PositiveFactors),
			NegativeFactors: emptyIfNil(env.Overview.NegativeFactors),
		},
		Disputes:    env.Disputes,
		CreditHacks: env.CreditHacks,
		CreditCards: env.CreditCards,
		SideHustles: env.SideHustles,
	}
	normalizeEnums(payload)
	payload.Suspicious = LooksLikePlaceholder(payload)
	return payload, nil
}

// analysisParseError keeps a bounded slice of the raw response for
// diagnostics without logging entire model outputs.
func analysisParseError(operation, raw string, err error) error {
	const keep = 512
	snippet := strings.TrimSpace(raw)
	if len(snippet) > keep {
		snippet = snippet[:keep] + "..."
	}
	return domain.WrapError(domain.ErrAnalysis, operation, fmt.Errorf("%w; raw response: %q", err, snippet))
}

// extractJSONObject tolerates prose or markdown fencing around the JSON
// by slicing from the first '{' to the last '}'.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func normalizeEnums(p *domain.ReportPayload) {
	for i := range p.CreditHacks.Recommendations {
		p.CreditHacks.Recommendations[i].Impact = normalizeLevel(p.CreditHacks.Recommendations[i].Impact, "medium")
	}
	for i := range p.CreditCards.Recommendations {
		p.CreditCards.Recommendations[i].ApprovalLikelihood = normalizeLevel(p.CreditCards.Recommendations[i].ApprovalLikelihood, "medium")
	}
	for i := range p.SideHustles.Recommendations {
		d := strings.ToLower(strings.TrimSpace(p.SideHustles.Recommendations[i].Difficulty))
		switch d {
		case "easy", "medium", "hard":
		default:
			d = "medium"
		}
		p.SideHustles.Recommendations[i].Difficulty = d
	}
}

func normalizeLevel(level, fallback string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "high", "medium", "low":
		return l
	default:
		return fallback
	}
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
