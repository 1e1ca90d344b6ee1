package fix

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the Sonar issue type.
type Category string

const (
	CategoryBug           Category = "Bug"
	CategoryCodeSmell     Category = "CodeSmell"
	CategoryVulnerability Category = "Vulnerability"
)

// Categories lists every valid Category in a stable order.
var Categories = []Category{CategoryBug, CategoryCodeSmell, CategoryVulnerability}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBug, CategoryCodeSmell, CategoryVulnerability:
		return true
	}
	return false
}

// ParseCategory accepts the canonical names as well as Sonar's API spelling
// (BUG, CODE_SMELL, VULNERABILITY), case-insensitively.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	switch norm {
	case "bug":
		return CategoryBug, nil
	case "codesmell":
		return CategoryCodeSmell, nil
	case "vulnerability":
		return CategoryVulnerability, nil
	}
	return "", fmt.Errorf("unknown issue category %q", s)
}

// Issue describes a single static-analysis finding to be fixed.
type Issue struct {
	RuleID   string   `json:"ruleId"`
	Category Category `json:"category"`
	FromLine int      `json:"fromLine"`
	ToLine   int      `json:"toLine"`
	Code     string   `json:"code"`

	// Optional context carried into prompts only.
	Message   string `json:"message,omitempty"`
	Component string `json:"component,omitempty"`
}

// ErrInvalidIssue is returned by Issue.Validate.
var ErrInvalidIssue = errors.New("invalid issue")

// Validate checks caller-supplied issue fields.
func (i Issue) Validate() error {
	var problems []string
	if strings.TrimSpace(i.RuleID) == "" {
		problems = append(problems, "ruleId is required")
	}
	if !i.Category.Valid() {
		problems = append(problems, fmt.Sprintf("category %q is not one of %s", i.Category, categoryList()))
	}
	if i.FromLine < 1 {
		problems = append(problems, fmt.Sprintf("fromLine must be positive, got %d", i.FromLine))
	}
	if i.ToLine < 1 {
		problems = append(problems, fmt.Sprintf("toLine must be positive, got %d", i.ToLine))
	}
	if i.FromLine > i.ToLine {
		problems = append(problems, fmt.Sprintf("fromLine (%d) must not exceed toLine (%d)", i.FromLine, i.ToLine))
	}
	if strings.TrimSpace(i.Code) == "" {
		problems = append(problems, "code is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidIssue, strings.Join(problems, "; "))
	}
	return nil
}

func categoryList() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, "|")
}
