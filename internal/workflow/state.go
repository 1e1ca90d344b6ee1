package workflow

import (
	"fmt"

	"github.com/jacklau/sonarfix/internal/fix"
)

// Phase is a state of the fix workflow.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseGenerated
	PhaseValidated
	PhaseRepairing
	PhaseStored
	PhaseSearched
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{"start", "generated", "validated", "repairing", "stored", "searched", "done", "failed"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Terminal reports whether no step follows p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// transitions lists every legal edge. Failed is reachable from every
// non-terminal phase.
var transitions = map[Phase][]Phase{
	PhaseStart:     {PhaseGenerated, PhaseFailed},
	PhaseGenerated: {PhaseValidated, PhaseFailed},
	PhaseValidated: {PhaseRepairing, PhaseStored, PhaseFailed},
	PhaseRepairing: {PhaseValidated, PhaseFailed},
	PhaseStored:    {PhaseSearched, PhaseFailed},
	PhaseSearched:  {PhaseDone, PhaseFailed},
}

func allowed(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// State is the per-invocation workflow state. It is owned by a single
// invocation and never persisted.
type State struct {
	RunID          string
	Issue          fix.Issue
	Phase          Phase
	RawOutput      *string
	FixRecord      *fix.FixRecord
	Error          *ErrorInfo
	RepairAttempts int
	TopK           int
	SimilarIssues  []fix.FixRecord
	// Generations counts completer calls, initial and repair.
	Generations int

	embedding []float32
}

// Failed reports whether the invocation ended in PhaseFailed.
func (s *State) Failed() bool {
	return s.Phase == PhaseFailed
}

// Output is the caller-facing result of an invocation.
type Output struct {
	FixRecord     *fix.FixRecord  `json:"fixRecord"`
	Error         *string         `json:"error"`
	SimilarIssues []fix.FixRecord `json:"similarIssues"`
}

// Output projects the final state. A failed run never carries a record.
func (s *State) Output() Output {
	out := Output{SimilarIssues: []fix.FixRecord{}}
	if s.Error != nil {
		msg := s.Error.Message()
		out.Error = &msg
		return out
	}
	out.FixRecord = s.FixRecord
	if len(s.SimilarIssues) > 0 {
		out.SimilarIssues = s.SimilarIssues
	}
	return out
}
