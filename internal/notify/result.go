package notify

import (
	"time"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/workflow"
)

// FixResult is the outcome of one issue in a batch.
type FixResult struct {
	// Key is the Sonar issue key, when the issue came from a report.
	Key       string `json:"key,omitempty"`
	RuleID    string `json:"ruleId"`
	Component string `json:"component,omitempty"`
	FromLine  int    `json:"fromLine"`
	ToLine    int    `json:"toLine"`

	Record    *fix.FixRecord `json:"fixRecord"`
	ErrorKind string         `json:"errorKind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Repairs   int            `json:"repairs"`
	Similar   int            `json:"similarIssues"`
}

// NewFixResult summarizes a finished workflow run.
func NewFixResult(key string, st *workflow.State) FixResult {
	r := FixResult{
		Key:       key,
		RuleID:    st.Issue.RuleID,
		Component: st.Issue.Component,
		FromLine:  st.Issue.FromLine,
		ToLine:    st.Issue.ToLine,
		Repairs:   st.RepairAttempts,
		Similar:   len(st.SimilarIssues),
	}
	if st.Error != nil {
		r.ErrorKind = st.Error.Kind.String()
		r.Error = st.Error.Err.Error()
		return r
	}
	r.Record = st.FixRecord
	return r
}

// Accepted reports whether the run produced a stored fix.
func (r FixResult) Accepted() bool {
	return r.Record != nil
}

// Summary describes a finished batch.
type Summary struct {
	Source   string
	Results  []FixResult
	Skipped  int
	Duration time.Duration
}

// Accepted returns the results that produced a fix, in batch order.
func (s Summary) Accepted() []FixResult {
	var out []FixResult
	for _, r := range s.Results {
		if r.Accepted() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that ended in an error, in batch order.
func (s Summary) Failed() []FixResult {
	var out []FixResult
	for _, r := range s.Results {
		if !r.Accepted() {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns result counts keyed by outcome: "done" or an error kind.
func (s Summary) Counts() map[string]int {
	out := make(map[string]int)
	for _, r := range s.Results {
		if r.Accepted() {
			out["done"]++
		} else {
			out[r.ErrorKind]++
		}
	}
	return out
}
