package fix

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Bug", CategoryBug},
		{"BUG", CategoryBug},
		{"CODE_SMELL", CategoryCodeSmell},
		{"CodeSmell", CategoryCodeSmell},
		{" vulnerability ", CategoryVulnerability},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if err != nil {
			t.Errorf("ParseCategory(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseCategory("SECURITY_HOTSPOT"); err == nil {
		t.Error("expected error for unsupported category")
	}
}

func TestIssueValidate(t *testing.T) {
	ok := Issue{RuleID: "S2111", Category: CategoryBug, FromLine: 3, ToLine: 3, Code: "x"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := Issue{Category: "Style", FromLine: 5, ToLine: 2}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidIssue) {
		t.Fatalf("expected ErrInvalidIssue, got %v", err)
	}
	for _, want := range []string{"ruleId is required", "category", "must not exceed", "code is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
