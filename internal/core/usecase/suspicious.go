package usecase

import (
	"strings"

	"github.com/creditlens/creditlens/internal/core/domain"
)

// Known placeholder phrases from demo and mock credit reports. Matching
// any of them flags the result for manual review; it never blocks
// returning the result to the user.
var placeholderPhrases = []string{
	"john doe",
	"jane doe",
	"lorem ipsum",
	"sample report",
	"sample credit report",
	"example only",
	"for demonstration purposes",
	"this is a mock",
	"123-45-6789",
	"xxx-xx-xxxx",
}

func LooksLikePlaceholder(p *domain.ReportPayload) bool {
	if p == nil {
		return false
	}

	var sb strings.Builder
	sb.WriteString(p.Overview.Summary)
	for _, f := range p.Overview.PositiveFactors {
		sb.WriteString(" ")
		sb.WriteString(f)
	}
	for _, f := range p.Overview.NegativeFactors {
		sb.WriteString(" ")
		sb.WriteString(f)
	}
	for _, item := range p.Disputes.Items {
		sb.WriteString(" ")
		sb.WriteString(item.AccountName)
		sb.WriteString(" ")
		sb.WriteString(item.AccountNumber)
	}

	haystack := strings.ToLower(sb.String())
	for _, phrase := range placeholderPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}
