package domain

import "time"

type AnalysisStatus string

const (
	StatusQueued     AnalysisStatus = "queued"
	StatusExtracting AnalysisStatus = "extracting"
	StatusAnalyzing  AnalysisStatus = "analyzing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusError      AnalysisStatus = "error"
)

type MediaType string

const (
	MediaTypeText MediaType = "text/plain"
	MediaTypePDF  MediaType = "application/pdf"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypeWebP MediaType = "image/webp"
)

// Score boundaries for consumer credit reports. Values outside this
// range coming back from the reasoning service collapse to nil.
const (
	ScoreMin = 300
	ScoreMax = 850
)

// AnalysisRequest is the per-invocation input. It is never persisted;
// only the resulting Analysis record is.
type AnalysisRequest struct {
	UserID    string
	MediaType MediaType
	Data      []byte
	Text      string
	Priority  string
	CacheKey  string
}

type Analysis struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Filename    string         `json:"filename,omitempty"`
	MediaType   MediaType      `json:"media_type"`
	StoragePath string         `json:"-"`
	Status      AnalysisStatus `json:"status"`
	Payload     *ReportPayload `json:"payload,omitempty"`
	Fallback    bool           `json:"fallback"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ReportPayload is the five-section structured analysis produced from a
// credit report. Fallback payloads carry Fallback=true and must never be
// mistaken for a genuine analysis downstream.
type ReportPayload struct {
	Overview    Overview    `json:"overview"`
	Disputes    Disputes    `json:"disputes"`
	CreditHacks CreditHacks `json:"creditHacks"`
	CreditCards CreditCards `json:"creditCards"`
	SideHustles SideHustles `json:"sideHustles"`
	Fallback    bool        `json:"fallback"`
	Suspicious  bool        `json:"suspicious,omitempty"`
}

// Overview.Score is nil whenever the source text carries no score; it is
// never inferred and never coerced to zero.
type Overview struct {
	Score           *int     `json:"score"`
	Summary         string   `json:"summary"`
	PositiveFactors []string `json:"positiveFactors"`
	NegativeFactors []string `json:"negativeFactors"`
}

type Disputes struct {
	Items []DisputeItem `json:"items"`
}

type DisputeItem struct {
	Bureau            string `json:"bureau"`
	AccountName       string `json:"accountName"`
	AccountNumber     string `json:"accountNumber"`
	IssueType         string `json:"issueType"`
	RecommendedAction string `json:"recommendedAction"`
}

type CreditHacks struct {
	Recommendations []CreditHack `json:"recommendations"`
}

type CreditHack struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Timeframe   string   `json:"timeframe"`
	Steps       []string `json:"steps"`
}

type CreditCards struct {
	Recommendations []CreditCard `json:"recommendations"`
}

type CreditCard struct {
	Name               string `json:"name"`
	Issuer             string `json:"issuer"`
	AnnualFee          string `json:"annualFee"`
	APR                string `json:"apr"`
	Rewards            string `json:"rewards"`
	ApprovalLikelihood string `json:"approvalLikelihood"`
	BestFor            string `json:"bestFor"`
}

type SideHustles struct {
	Recommendations []SideHustle `json:"recommendations"`
}

type SideHustle struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	PotentialEarnings string   `json:"potentialEarnings"`
	StartupCost       string   `json:"startupCost"`
	Difficulty        string   `json:"difficulty"`
	TimeCommitment    string   `json:"timeCommitment"`
	Skills            []string `json:"skills"`
}

// AnalysisOutcome is what the orchestrator hands back to the caller.
type AnalysisOutcome struct {
	AnalysisID string         `json:"analysis_id"`
	Payload    *ReportPayload `json:"result"`
	Fallback   bool           `json:"fallback"`
	CacheHit   bool           `json:"cache_hit"`
	Metrics    OutcomeMetrics `json:"metrics"`
}

type OutcomeMetrics struct {
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	ExtractionTimeMs int64 `json:"extractionTimeMs,omitempty"`
	AnalysisTimeMs   int64 `json:"analysisTimeMs,omitempty"`
}

func (m MediaType) IsText() bool {
	return m == MediaTypeText
}

func (m MediaType) IsImage() bool {
	switch m {
	case MediaTypePNG, MediaTypeJPEG, MediaTypeWebP:
		return true
	default:
		return false
	}
}

func (m MediaType) Supported() bool {
	return m.IsText() || m.IsImage() || m == MediaTypePDF
}

// NormalizeScore enforces the score invariant: nil stays nil, anything
// outside [ScoreMin, ScoreMax] collapses to nil.
func NormalizeScore(score *int) *int {
	if score == nil {
		return nil
	}
	if *score < ScoreMin || *score > ScoreMax {
		return nil
	}
	return score
}
