// Package workflow drives a single Sonar issue through generation,
// validation, bounded repair, storage and similarity search.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/knowledge"
	"github.com/jacklau/sonarfix/internal/provider"
)

const (
	DefaultMaxRepairs = 2
	MaxRepairsLimit   = 10
	DefaultTopK       = 3
)

// Config bounds an Engine.
type Config struct {
	// MaxRepairs is the number of repair attempts after the initial
	// generation. Zero disables repair.
	MaxRepairs int
	// DefaultTopK is used when Invoke is called with topK <= 0.
	DefaultTopK int
	// RequestTimeout caps each model, embedding and store call. Zero means
	// only the caller's context applies.
	RequestTimeout time.Duration
}

// Observer receives workflow events, typically to record metrics.
type Observer interface {
	Generation(mode fix.SamplingMode)
	Finished(outcome string, repairs int, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Generation(fix.SamplingMode)         {}
func (nopObserver) Finished(string, int, time.Duration) {}

// Deps holds the collaborators of an Engine.
type Deps struct {
	Generator *fix.Generator
	Repairer  *fix.Repairer
	Embedder  provider.Embedder
	Store     knowledge.Store
	Observer  Observer
	Logger    *slog.Logger
}

// Engine runs the fix workflow. It is safe for concurrent use; each Invoke
// owns its State and invocations share only the store.
type Engine struct {
	cfg  Config
	deps Deps
}

// New creates an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.MaxRepairs < 0 || cfg.MaxRepairs > MaxRepairsLimit {
		return nil, fmt.Errorf("max repairs must be between 0 and %d, got %d", MaxRepairsLimit, cfg.MaxRepairs)
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if deps.Generator == nil {
		return nil, errors.New("workflow requires a generator")
	}
	if deps.Embedder == nil {
		return nil, errors.New("workflow requires an embedder")
	}
	if deps.Store == nil {
		return nil, errors.New("workflow requires a knowledge store")
	}
	if deps.Repairer == nil {
		deps.Repairer = fix.NewRepairer(deps.Generator)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// Invoke runs the workflow for issue to a terminal phase. The returned error
// is non-nil only when issue itself is invalid; workflow failures are
// reported through State.Error.
func (e *Engine) Invoke(ctx context.Context, issue fix.Issue, topK int) (*State, error) {
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}

	st := &State{
		RunID: uuid.NewString(),
		Issue: issue,
		Phase: PhaseStart,
		TopK:  topK,
	}
	logger := e.deps.Logger.With("run_id", st.RunID, "rule", issue.RuleID)
	start := time.Now()

	// Every repair costs two steps (Validated -> Repairing -> Validated).
	limit := 2*e.cfg.MaxRepairs + 8
	for steps := 0; !st.Phase.Terminal(); steps++ {
		if steps >= limit {
			e.fail(st, &InternalError{Phase: st.Phase, Err: fmt.Errorf("exceeded %d steps", limit)}, logger)
			break
		}
		next, err := e.step(ctx, st, logger)
		if err != nil {
			e.fail(st, err, logger)
			break
		}
		if !allowed(st.Phase, next) {
			e.fail(st, &InternalError{Phase: st.Phase, Err: fmt.Errorf("illegal transition to %s", next)}, logger)
			break
		}
		logger.Debug("transition", "from", st.Phase.String(), "to", next.String())
		st.Phase = next
	}

	outcome := "done"
	if st.Error != nil {
		outcome = st.Error.Kind.String()
		logger.Warn("fix workflow failed",
			"kind", outcome,
			"error", st.Error.Err,
			"repairs", st.RepairAttempts,
			"generations", st.Generations,
			"duration", time.Since(start),
		)
	} else {
		logger.Info("fix workflow finished",
			"issue_number", st.FixRecord.IssueNumber,
			"repairs", st.RepairAttempts,
			"similar", len(st.SimilarIssues),
			"duration", time.Since(start),
		)
	}
	e.deps.Observer.Finished(outcome, st.RepairAttempts, time.Since(start))

	return st, nil
}

// step performs the work of the current phase and returns the next phase.
// A non-nil error sends the run to PhaseFailed.
func (e *Engine) step(ctx context.Context, st *State, logger *slog.Logger) (Phase, error) {
	switch st.Phase {
	case PhaseStart:
		raw, err := e.generate(ctx, st, fix.Exploratory, func(ctx context.Context) (string, error) {
			return e.deps.Generator.Generate(ctx, st.Issue, fix.Exploratory)
		})
		if err != nil {
			return PhaseFailed, err
		}
		st.RawOutput = &raw
		return PhaseGenerated, nil

	case PhaseGenerated, PhaseRepairing:
		rec, err := fix.Validate(*st.RawOutput)
		if err != nil {
			logger.Debug("validation failed", "error", err, "attempt", st.RepairAttempts)
			st.FixRecord = nil
			st.Error = newErrorInfo(err)
		} else {
			st.FixRecord = rec
			st.Error = nil
		}
		return PhaseValidated, nil

	case PhaseValidated:
		if st.Error == nil {
			return e.store(ctx, st)
		}
		var verr *fix.ValidationError
		if !errors.As(st.Error.Err, &verr) {
			return PhaseFailed, st.Error.Err
		}
		if st.RepairAttempts >= e.cfg.MaxRepairs {
			return PhaseFailed, &RetryExhaustedError{Attempts: st.RepairAttempts, Last: verr}
		}
		st.RepairAttempts++
		prior := *st.RawOutput
		raw, err := e.generate(ctx, st, fix.Deterministic, func(ctx context.Context) (string, error) {
			return e.deps.Repairer.Repair(ctx, st.Issue, prior, verr)
		})
		if err != nil {
			return PhaseFailed, err
		}
		st.RawOutput = &raw
		return PhaseRepairing, nil

	case PhaseStored:
		similar, err := e.similar(ctx, st)
		if err != nil {
			return PhaseFailed, err
		}
		st.SimilarIssues = similar
		return PhaseSearched, nil

	case PhaseSearched:
		return PhaseDone, nil

	default:
		return PhaseFailed, &InternalError{Phase: st.Phase, Err: errors.New("no step defined")}
	}
}

func (e *Engine) generate(ctx context.Context, st *State, mode fix.SamplingMode, call func(context.Context) (string, error)) (string, error) {
	st.Generations++
	e.deps.Observer.Generation(mode)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	raw, err := call(callCtx)
	if err != nil {
		return "", &GenerationError{Mode: mode, Err: err}
	}
	return raw, nil
}

// store embeds the validated record and upserts it. The embedding call
// completes before the store is touched.
func (e *Engine) store(ctx context.Context, st *State) (Phase, error) {
	vec, err := e.embed(ctx, st.FixRecord.EmbeddingText())
	if err != nil {
		return PhaseFailed, &StoreError{Op: "embed", Err: err}
	}
	entry, err := knowledge.NewEntry(*st.FixRecord, vec)
	if err != nil {
		return PhaseFailed, &StoreError{Op: "encode", Err: err}
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	if err := e.deps.Store.Upsert(callCtx, entry); err != nil {
		return PhaseFailed, &StoreError{Op: "upsert", Err: err}
	}
	st.embedding = vec
	return PhaseStored, nil
}

// similar searches with the stored embedding and drops the record itself.
func (e *Engine) similar(ctx context.Context, st *State) ([]fix.FixRecord, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	hits, err := e.deps.Store.Search(callCtx, st.embedding, st.TopK+1)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}

	out := make([]fix.FixRecord, 0, st.TopK)
	for _, h := range hits {
		if h.Record.IssueNumber == st.FixRecord.IssueNumber {
			continue
		}
		if len(out) == st.TopK {
			break
		}
		out = append(out, h.Record)
	}
	return out, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.deps.Embedder.Embed(callCtx, text)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) fail(st *State, err error, logger *slog.Logger) {
	logger.Debug("transition", "from", st.Phase.String(), "to", PhaseFailed.String(), "error", err)
	st.Phase = PhaseFailed
	st.Error = newErrorInfo(err)
	st.FixRecord = nil
	st.SimilarIssues = nil
}

// Similar embeds free text and returns the closest stored fixes.
func (e *Engine) Similar(ctx context.Context, text string, topK int) ([]knowledge.Hit, error) {
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, &StoreError{Op: "embed", Err: err}
	}
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	hits, err := e.deps.Store.Search(callCtx, vec, topK)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}
	return hits, nil
}
