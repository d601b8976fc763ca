// Package refine decides whether the expensive external extraction pass
// runs at all, and merges its output without regressing fields the pattern
// extractor already got right. The decision is an explicit state machine,
// not an exception path: NOT_ATTEMPTED → ATTEMPTED → {MERGED, REJECTED}.
package refine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"facturas/internal/logger"
	"facturas/internal/schema"
	"facturas/pkg/models"
)

// State is the refinement pass's position in its lifecycle.
type State int

const (
	// StateNotAttempted means heuristics were sufficient and the backend
	// was never called.
	StateNotAttempted State = iota

	// StateAttempted means the backend call is in flight. Terminal states
	// are Merged and Rejected.
	StateAttempted

	// StateMerged means the backend returned and its values were folded
	// in under the non-regression policy.
	StateMerged

	// StateRejected means the backend failed or timed out; the pipeline
	// continues with pattern-derived fields only.
	StateRejected
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateAttempted:
		return "ATTEMPTED"
	case StateMerged:
		return "MERGED"
	case StateRejected:
		return "REJECTED"
	default:
		return "NOT_ATTEMPTED"
	}
}

// Backend is the opaque higher-accuracy extraction path. It may be
// LLM-backed or anything else that maps document text to field values.
type Backend interface {
	// Name identifies the backend for logs and metadata.
	Name() string

	// Refine proposes values for schema fields given the document text
	// and the partial record extracted so far.
	Refine(ctx context.Context, documentText string, partial map[string]string, provider *schema.Provider) (map[string]string, error)
}

// FormatChecker reports whether a raw value for a field normalizes into a
// schema-valid value. The normalizer satisfies this.
type FormatChecker interface {
	CandidateValid(field, raw string) bool
}

// Controller owns the trigger decision and the merge policy.
type Controller struct {
	backend   Backend
	checker   FormatChecker
	threshold float64
	timeout   time.Duration
	log       zerolog.Logger
}

// NewController builds a Controller. A nil backend disables refinement
// entirely; threshold is the populated-required-field ratio below which the
// backend is invoked.
func NewController(backend Backend, checker FormatChecker, threshold float64, timeout time.Duration) *Controller {
	return &Controller{
		backend:   backend,
		checker:   checker,
		threshold: threshold,
		timeout:   timeout,
		log:       logger.WithComponent("refine-controller"),
	}
}

// Outcome reports what the refinement pass did to the candidate set.
type Outcome struct {
	State    State
	Accepted int
}

// Apply runs the state machine over the candidates extracted by the pattern
// pass and returns the (possibly augmented) candidate set. The input map is
// not mutated.
func (c *Controller) Apply(ctx context.Context, documentText string, candidates map[string]models.FieldCandidate, provider *schema.Provider) (map[string]models.FieldCandidate, Outcome) {
	if c.backend == nil || !c.shouldAttempt(candidates, provider) {
		return candidates, Outcome{State: StateNotAttempted}
	}

	state := StateAttempted
	c.log.Info().
		Str("backend", c.backend.Name()).
		Float64("threshold", c.threshold).
		Msg("Invoking refinement backend")

	refineCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		refineCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	partial := make(map[string]string, len(candidates))
	for name, candidate := range candidates {
		partial[name] = candidate.RawValue
	}

	proposed, err := c.backend.Refine(refineCtx, documentText, partial, provider)
	if err != nil {
		// A timeout is a failure like any other: reject and move on.
		state = StateRejected
		c.log.Warn().
			Err(err).
			Str("state", state.String()).
			Msg("Refinement pass rejected")
		return candidates, Outcome{State: state}
	}

	merged := make(map[string]models.FieldCandidate, len(candidates)+len(proposed))
	for name, candidate := range candidates {
		merged[name] = candidate
	}

	accepted := 0
	for name, value := range proposed {
		if value == "" {
			continue
		}
		if _, known := provider.Spec(name); !known {
			continue
		}
		if !c.acceptable(name, value, merged) {
			continue
		}
		merged[name] = models.FieldCandidate{
			FieldName:  name,
			RawValue:   value,
			Method:     models.MethodFallback,
			Confidence: 0.8,
		}
		accepted++
	}

	state = StateMerged
	c.log.Info().
		Int("proposed", len(proposed)).
		Int("accepted", accepted).
		Str("state", state.String()).
		Msg("Refinement pass merged")

	return merged, Outcome{State: state, Accepted: accepted}
}

// shouldAttempt bounds cost: the backend runs only when the heuristic pass
// left the required-field fill ratio below the configured threshold.
func (c *Controller) shouldAttempt(candidates map[string]models.FieldCandidate, provider *schema.Provider) bool {
	required := provider.Required()
	if len(required) == 0 {
		return false
	}
	populated := 0
	for _, name := range required {
		if _, ok := candidates[name]; ok {
			populated++
		}
	}
	ratio := float64(populated) / float64(len(required))
	attempt := ratio < c.threshold

	c.log.Debug().
		Int("required", len(required)).
		Int("populated", populated).
		Float64("ratio", ratio).
		Bool("attempt", attempt).
		Msg("Refinement trigger evaluated")

	return attempt
}

// acceptable implements the non-regression merge policy: a fallback value
// lands only when the field is absent, or when the existing pattern value
// fails the schema format while the fallback value passes. A pattern value
// that already validates is never overwritten.
func (c *Controller) acceptable(name, value string, current map[string]models.FieldCandidate) bool {
	existing, present := current[name]
	if !present {
		return true
	}
	if c.checker.CandidateValid(name, existing.RawValue) {
		return false
	}
	return c.checker.CandidateValid(name, value)
}
