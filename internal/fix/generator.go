package fix

import (
	"context"
	"fmt"

	"github.com/jacklau/sonarfix/internal/provider"
)

// SamplingMode selects the sampling profile used for a completion.
type SamplingMode int

const (
	// Exploratory is used for the first attempt at an issue.
	Exploratory SamplingMode = iota
	// Deterministic is used for repair attempts.
	Deterministic
)

func (m SamplingMode) String() string {
	switch m {
	case Exploratory:
		return "exploratory"
	case Deterministic:
		return "deterministic"
	default:
		return fmt.Sprintf("SamplingMode(%d)", int(m))
	}
}

// Profile binds a completer to the sampling parameters of one mode.
type Profile struct {
	Completer   provider.Completer
	Temperature float64
	MaxTokens   int
}

const defaultMaxTokens = 2048

// Generator asks a language model for a raw candidate fix.
type Generator struct {
	exploratory   Profile
	deterministic Profile
}

// NewGenerator creates a Generator. If deterministic has no completer, the
// exploratory completer is reused with the deterministic temperature.
func NewGenerator(exploratory, deterministic Profile) (*Generator, error) {
	if exploratory.Completer == nil {
		return nil, fmt.Errorf("generator requires a completer")
	}
	if deterministic.Completer == nil {
		deterministic.Completer = exploratory.Completer
	}
	if exploratory.MaxTokens == 0 {
		exploratory.MaxTokens = defaultMaxTokens
	}
	if deterministic.MaxTokens == 0 {
		deterministic.MaxTokens = exploratory.MaxTokens
	}
	return &Generator{exploratory: exploratory, deterministic: deterministic}, nil
}

func (g *Generator) profile(mode SamplingMode) Profile {
	if mode == Deterministic {
		return g.deterministic
	}
	return g.exploratory
}

// Generate requests a fix for issue.
func (g *Generator) Generate(ctx context.Context, issue Issue, mode SamplingMode) (string, error) {
	prompt, err := BuildGeneratePrompt(issue)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, prompt, mode)
}

func (g *Generator) complete(ctx context.Context, prompt string, mode SamplingMode) (string, error) {
	p := g.profile(mode)
	raw, err := p.Completer.Complete(ctx, prompt, provider.Options{
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", mode, err)
	}
	return raw, nil
}

// Repairer re-asks the model after a validation failure.
type Repairer struct {
	gen *Generator
}

// NewRepairer creates a Repairer that issues requests through gen.
func NewRepairer(gen *Generator) *Repairer {
	return &Repairer{gen: gen}
}

// Repair builds a corrective prompt from the issue, the rejected output and
// its validation error, then completes it in deterministic mode. Whether to
// keep retrying is the caller's decision.
func (r *Repairer) Repair(ctx context.Context, issue Issue, previous string, verr *ValidationError) (string, error) {
	prompt, err := BuildRepairPrompt(issue, previous, verr)
	if err != nil {
		return "", err
	}
	return r.gen.complete(ctx, prompt, Deterministic)
}
