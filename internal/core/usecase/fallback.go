package usecase

import (
	"github.com/creditlens/creditlens/internal/core/domain"
)

// FallbackGenerator produces the clearly-labeled placeholder analysis
// used when extraction or analysis fails or times out, so the caller
// always receives a usable record. The payload never impersonates a
// genuine result: Fallback is true, the score is nil, and every section
// says the analysis could not be completed.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

func (g *FallbackGenerator) Generate(cause error) *domain.ReportPayload {
	summary := "We could not complete the analysis of your credit report. " +
		"The results shown here are placeholders, not an assessment of your credit. " +
		"Please try uploading your report again."
	if domain.IsKind(cause, domain.ErrTimeout) {
		summary = "Analyzing your credit report took longer than expected and did not finish. " +
			"The results shown here are placeholders, not an assessment of your credit. " +
			"Please try again in a few minutes."
	}

	return &domain.ReportPayload{
		Fallback: true,
		Overview: domain.Overview{
			Score:   nil,
			Summary: summary,
			PositiveFactors: []string{
				"Analysis unavailable - no factors could be determined",
			},
			NegativeFactors: []string{
				"Analysis unavailable - no factors could be determined",
			},
		},
		Disputes: domain.Disputes{
			Items: []domain.DisputeItem{
				{
					Bureau:            "N/A",
					AccountName:       "Analysis unavailable",
					AccountNumber:     "N/A",
					IssueType:         "none",
					RecommendedAction: "Re-upload your credit report to generate dispute suggestions.",
				},
			},
		},
		CreditHacks: domain.CreditHacks{
			Recommendations: []domain.CreditHack{
				{
					Title:       "Analysis unavailable",
					Description: "We could not analyze your report, so no improvement strategies are available yet.",
					Impact:      "low",
					Timeframe:   "N/A",
					Steps:       []string{"Try uploading your credit report again."},
				},
			},
		},
		CreditCards: domain.CreditCards{
			Recommendations: []domain.CreditCard{
				{
					Name:               "Analysis unavailable",
					Issuer:             "N/A",
					AnnualFee:          "N/A",
					APR:                "N/A",
					Rewards:            "N/A",
					ApprovalLikelihood: "low",
					BestFor:            "Re-upload your report to get card recommendations.",
				},
			},
		},
		SideHustles: domain.SideHustles{
			Recommendations: []domain.SideHustle{
				{
					Title:             "Analysis unavailable",
					Description:       "We could not analyze your report, so no income suggestions are available yet.",
					PotentialEarnings: "N/A",
					StartupCost:       "N/A",
					Difficulty:        "easy",
					TimeCommitment:    "N/A",
					Skills:            []string{},
				},
			},
		},
	}
}
