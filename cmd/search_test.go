package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/knowledge"
)

func TestPrintHitsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHits(&buf, nil)
	if strings.TrimSpace(buf.String()) != "No stored fixes yet." {
		t.Errorf("unexpected output for no hits: %q", buf.String())
	}
}

func TestPrintHitsTable(t *testing.T) {
	hits := []knowledge.Hit{
		{Record: fix.FixRecord{IssueNumber: "S2111", TypeOfIssue: fix.CategoryBug, FromLine: 3, ToLine: 4, Confidence: 0.9}, Distance: 0.0123},
		{Record: fix.FixRecord{IssueNumber: "S1481", TypeOfIssue: fix.CategoryCodeSmell, FromLine: 10, ToLine: 10, Confidence: 0.75}, Distance: 0.5},
	}

	var buf bytes.Buffer
	printHits(&buf, hits)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ISSUE") || !strings.Contains(lines[0], "DISTANCE") {
		t.Errorf("unexpected header %q", lines[0])
	}
	for _, want := range []string{"S2111", "Bug", "3-4", "0.90", "0.0123"} {
		if !strings.Contains(lines[2], want) {
			t.Errorf("first row %q missing %q", lines[2], want)
		}
	}
	if !strings.Contains(lines[3], "CodeSmell") || !strings.Contains(lines[3], "10-10") {
		t.Errorf("unexpected second row %q", lines[3])
	}
}
