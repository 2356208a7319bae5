package bisimulation

import "errors"

// Every sentinel is prefixed with "bisimulation: ". Concrete failures wrap them with
// fmt.Errorf("...: %w", ErrX) so callers match with errors.Is.
var (
	// ErrConfiguration reports options that cannot produce a sound bisimulation for the
	// given model: weak together with bounded, several reward structures, non-state
	// rewards, a measure-driven partition without phi/psi states, unknown labels.
	ErrConfiguration = errors.New("bisimulation: invalid configuration")

	// ErrPrecondition reports a call made out of order, e.g. asking for the quotient
	// before refinement reached its fixpoint.
	ErrPrecondition = errors.New("bisimulation: precondition violated")

	// ErrInvalidModel reports a malformed input model.
	ErrInvalidModel = errors.New("bisimulation: invalid model")

	// ErrInvalidPartition reports a partition whose blocks do not cover every state
	// exactly once.
	ErrInvalidPartition = errors.New("bisimulation: invalid partition")
)
