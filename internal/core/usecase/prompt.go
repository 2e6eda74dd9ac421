package usecase

import (
	"fmt"
	"strings"
)

// Prompt versions collapse the historically parallel analysis modules
// into one stage; the active version is picked by configuration.
const (
	PromptVersionV1      = "v1"
	PromptVersionV2      = "v2"
	DefaultPromptVersion = PromptVersionV2
)

// MaxAnalysisInputChars bounds the extracted text handed to the
// reasoning service so the prompt stays inside model context limits.
const MaxAnalysisInputChars = 60000

const analysisSchemaDescription = `{
  "overview": {
    "score": <integer 300-850, or null when the report text contains no score>,
    "summary": "<plain-language summary of the report>",
    "positiveFactors": ["<factor>", ...],
    "negativeFactors": ["<factor>", ...]
  },
  "disputes": {
    "items": [
      {"bureau": "...", "accountName": "...", "accountNumber": "...", "issueType": "...", "recommendedAction": "..."}
    ]
  },
  "creditHacks": {
    "recommendations": [
      {"title": "...", "description": "...", "impact": "high|medium|low", "timeframe": "...", "steps": ["...", ...]}
    ]
  },
  "creditCards": {
    "recommendations": [
      {"name": "...", "issuer": "...", "annualFee": "...", "apr": "...", "rewards": "...", "approvalLikelihood": "high|medium|low", "bestFor": "..."}
    ]
  },
  "sideHustles": {
    "recommendations": [
      {"title": "...", "description": "...", "potentialEarnings": "...", "startupCost": "...", "difficulty": "easy|medium|hard", "timeCommitment": "...", "skills": ["...", ...]}
    ]
  }
}`

func BuildAnalysisPrompt(version, reportText string) string {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case PromptVersionV1:
		return buildAnalysisPromptV1(reportText)
	default:
		return buildAnalysisPromptV2(reportText)
	}
}

func buildAnalysisPromptV2(reportText string) string {
	return fmt.Sprintf(`You are a credit report analyst for a consumer finance service.
Analyze the credit report text below and produce a structured assessment.

Rules:
1. NEVER invent a credit score. If the report text does not state a
   numeric score, "score" MUST be null. Do not estimate or infer one.
2. Base every factor, dispute item, and recommendation strictly on what
   the report text says.
3. Return ONLY one JSON object matching this schema, with no surrounding
   prose and no markdown fencing:
%s

Credit report text:
%s`, analysisSchemaDescription, reportText)
}

func buildAnalysisPromptV1(reportText string) string {
	return fmt.Sprintf(`Analyze this consumer credit report and respond with a single JSON object
matching the schema below. Use null for "score" unless the report states
a numeric credit score. No prose, no code fences.

Schema:
%s

Report:
%s`, analysisSchemaDescription, reportText)
}

// buildChatContext grounds follow-up answers in the persisted analysis.
// Section contents are reproduced verbatim; the model must not re-derive
// facts from anywhere else.
func buildChatContext(sections string, fallback bool) string {
	var caveat string
	if fallback {
		caveat = `
NOTE: the stored analysis is a fallback placeholder because the real
analysis could not be completed. Say so when the user asks about report
details, and suggest re-uploading the report.`
	}
	return fmt.Sprintf(`You are a credit analysis assistant. Answer follow-up questions using
ONLY the stored analysis below. Do not invent account details, scores,
or recommendations that are not in it. If the answer is not in the
analysis, say so.%s

Stored analysis:
%s`, caveat, sections)
}
