// Package sonar turns SonarQube issue search results into fix requests.
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/source"
)

// Report is the subset of an api/issues/search response that we read.
type Report struct {
	Issues []RawIssue `json:"issues"`
}

// RawIssue is a single issue as SonarQube reports it.
type RawIssue struct {
	Key       string     `json:"key"`
	Rule      string     `json:"rule"`
	Type      string     `json:"type"`
	Severity  string     `json:"severity"`
	Component string     `json:"component"`
	Project   string     `json:"project"`
	Line      int        `json:"line"`
	TextRange *TextRange `json:"textRange"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
}

// TextRange locates an issue within its file.
type TextRange struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// Item is a convertible issue together with its Sonar key.
type Item struct {
	Key   string
	Issue fix.Issue
}

// Skipped records an issue that could not be turned into a fix request.
type Skipped struct {
	Key    string
	Reason string
}

// Parse decodes a report from r.
func Parse(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decoding sonar report: %w", err)
	}
	return &rep, nil
}

// RuleID strips the language prefix from a rule key: "java:S2111" becomes "S2111".
func RuleID(rule string) string {
	if i := strings.LastIndex(rule, ":"); i >= 0 {
		return rule[i+1:]
	}
	return rule
}

// FilePath strips the project key from a component: "proj:src/App.java"
// becomes "src/App.java".
func FilePath(component string) string {
	if _, path, ok := strings.Cut(component, ":"); ok {
		return path
	}
	return component
}

// Lines returns the issue's line range, preferring textRange over line.
func (ri RawIssue) Lines() (from, to int, ok bool) {
	if ri.TextRange != nil && ri.TextRange.StartLine > 0 {
		from, to = ri.TextRange.StartLine, ri.TextRange.EndLine
		if to < from {
			to = from
		}
		return from, to, true
	}
	if ri.Line > 0 {
		return ri.Line, ri.Line, true
	}
	return 0, 0, false
}

func resolved(status string) bool {
	switch strings.ToUpper(status) {
	case "CLOSED", "RESOLVED":
		return true
	}
	return false
}

// Issues converts the report into fix requests, reading each flagged range
// through fetcher. Issues that cannot be converted are returned in skipped
// rather than failing the whole report.
func (rep *Report) Issues(ctx context.Context, fetcher source.Fetcher) (items []Item, skipped []Skipped, err error) {
	for _, ri := range rep.Issues {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		issue, reason, err := convert(ctx, ri, fetcher)
		if err != nil {
			return nil, nil, err
		}
		if reason != "" {
			skipped = append(skipped, Skipped{Key: ri.Key, Reason: reason})
			continue
		}
		items = append(items, Item{Key: ri.Key, Issue: issue})
	}
	return items, skipped, nil
}

// convert returns a skip reason for issues that are unusable. The error
// return is reserved for context cancellation.
func convert(ctx context.Context, ri RawIssue, fetcher source.Fetcher) (fix.Issue, string, error) {
	if resolved(ri.Status) {
		return fix.Issue{}, "already " + strings.ToLower(ri.Status), nil
	}
	category, err := fix.ParseCategory(ri.Type)
	if err != nil {
		return fix.Issue{}, fmt.Sprintf("unsupported type %q", ri.Type), nil
	}
	from, to, ok := ri.Lines()
	if !ok {
		return fix.Issue{}, "no line information", nil
	}

	path := FilePath(ri.Component)
	content, err := fetcher.Fetch(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return fix.Issue{}, "", ctx.Err()
		}
		return fix.Issue{}, fmt.Sprintf("reading %s: %v", path, err), nil
	}
	code, err := source.Lines(content, from, to)
	if err != nil {
		return fix.Issue{}, fmt.Sprintf("%s: %v", path, err), nil
	}

	issue := fix.Issue{
		RuleID:    RuleID(ri.Rule),
		Category:  category,
		FromLine:  from,
		ToLine:    to,
		Code:      code,
		Message:   ri.Message,
		Component: path,
	}
	if err := issue.Validate(); err != nil {
		return fix.Issue{}, err.Error(), nil
	}
	return issue, "", nil
}
