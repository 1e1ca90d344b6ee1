package notify

import (
	"time"

	"github.com/jacklau/sonarfix/internal/fix"
)

func acceptedResult(rule string, from, to int, confidence float64) FixResult {
	return FixResult{
		Key:       "AX-" + rule,
		RuleID:    rule,
		Component: "src/App.java",
		FromLine:  from,
		ToLine:    to,
		Record: &fix.FixRecord{
			IssueNumber: rule,
			TypeOfIssue: fix.CategoryBug,
			FromLine:    from,
			ToLine:      to,
			Confidence:  confidence,
		},
	}
}

func failedResult(rule, kind string) FixResult {
	return FixResult{
		RuleID:    rule,
		Component: "src/App.java",
		FromLine:  7,
		ToLine:    7,
		ErrorKind: kind,
		Error:     kind + " failure",
	}
}

func testSummary() Summary {
	return Summary{
		Source: "report.json",
		Results: []FixResult{
			acceptedResult("S2111", 3, 4, 0.92),
			failedResult("S1481", "retry_exhausted"),
			acceptedResult("S100", 9, 9, 0.5),
		},
		Skipped:  2,
		Duration: 3 * time.Second,
	}
}
