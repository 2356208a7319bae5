package bisimulation

import (
	"fmt"
	"io"
	"log"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/geange/bisimulation/logic"
)

const (
	// DefaultEpsilon is the tolerance under which two probabilities or rates are
	// considered equal.
	DefaultEpsilon = 1e-9
	// DefaultWorkers computes signatures on the calling goroutine.
	DefaultWorkers = 1
)

// BisimulationType selects strong or weak equivalence.
type BisimulationType int

const (
	Strong BisimulationType = iota
	Weak
)

func (t BisimulationType) String() string {
	if t == Weak {
		return "weak"
	}
	return "strong"
}

// Options decides what a decomposition preserves. Build the value with NewOptions or
// derive it from formulas; it must not change once Build was called.
type Options struct {
	Type BisimulationType
	// RespectedLabels lists the labels every block must agree on. Nil respects every
	// label of the model.
	RespectedLabels []string
	// KeepRewards makes blocks agree on the state reward of RewardModel, or of the
	// only reward model when RewardModel is empty.
	KeepRewards bool
	RewardModel string
	// Bounded preserves step-bounded properties and rules out weak bisimulation.
	Bounded bool
	// MeasureDriven seeds the partition from the probability 0/1 states of
	// PhiStates U PsiStates instead of from labels.
	MeasureDriven         bool
	PhiStates             *bitset.BitSet
	PsiStates             *bitset.BitSet
	OptimizationDirection logic.Direction
	BuildQuotient         bool
	Epsilon               float64
	Workers               int
	Oracle                ReachabilityOracle
	Logger                *log.Logger

	// rewardModelConflict is set when formulas name different reward models.
	rewardModelConflict bool
}

// Option configures NewOptions and the formula-derived constructors.
type Option func(*Options)

// NewOptions returns strong bisimulation respecting every label, building the
// quotient, with the given overrides applied.
func NewOptions(opts ...Option) Options {
	o := Options{
		Type:          Strong,
		BuildQuotient: true,
		Epsilon:       DefaultEpsilon,
		Workers:       DefaultWorkers,
		Oracle:        GraphOracle{},
		Logger:        log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithType(t BisimulationType) Option {
	return func(o *Options) {
		o.Type = t
	}
}

// WithRespectedLabels restricts the respected labels to labels.
func WithRespectedLabels(labels ...string) Option {
	return func(o *Options) {
		o.RespectedLabels = append([]string{}, labels...)
	}
}

// WithRewards keeps the state rewards of the named reward model; "" selects the only
// one.
func WithRewards(rewardModel string) Option {
	return func(o *Options) {
		o.KeepRewards = true
		o.RewardModel = rewardModel
		o.rewardModelConflict = false
	}
}

func WithoutRewards() Option {
	return func(o *Options) {
		o.KeepRewards = false
		o.RewardModel = ""
		o.rewardModelConflict = false
	}
}

func WithBounded(bounded bool) Option {
	return func(o *Options) {
		o.Bounded = bounded
	}
}

// WithMeasureDriven seeds the partition from the reachability of psi through phi.
func WithMeasureDriven(phi, psi *bitset.BitSet) Option {
	return func(o *Options) {
		o.MeasureDriven = true
		o.PhiStates = phi
		o.PsiStates = psi
	}
}

func WithOptimizationDirection(dir logic.Direction) Option {
	return func(o *Options) {
		o.OptimizationDirection = dir
	}
}

// WithQuotient controls whether Refine builds the quotient.
func WithQuotient(build bool) Option {
	return func(o *Options) {
		o.BuildQuotient = build
	}
}

// WithEpsilon sets the comparison tolerance. Negative or NaN values panic.
func WithEpsilon(eps float64) Option {
	if eps < 0 || math.IsNaN(eps) {
		panic(fmt.Sprintf("bisimulation: epsilon must be non-negative, got %v", eps))
	}
	return func(o *Options) {
		o.Epsilon = eps
	}
}

// WithWorkers sets the number of goroutines computing signatures. Values below one
// panic.
func WithWorkers(workers int) Option {
	if workers < 1 {
		panic(fmt.Sprintf("bisimulation: workers must be at least 1, got %d", workers))
	}
	return func(o *Options) {
		o.Workers = workers
	}
}

func WithOracle(oracle ReachabilityOracle) Option {
	return func(o *Options) {
		o.Oracle = oracle
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// OptionsForModel preserves every label and every reward of the model.
func OptionsForModel(model Model, opts ...Option) Options {
	o := NewOptions()
	o.KeepRewards = len(model.RewardModels()) > 0
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OptionsForFormula preserves exactly what f needs. If f is a P or R operator over
// phi U psi or F psi with propositional phi and psi, the partition is seeded
// measure-driven.
func OptionsForFormula(model Model, f logic.Formula, opts ...Option) (Options, error) {
	o := NewOptions()
	preserveFormula(&o, f)
	if err := deriveMeasureDriven(model, &o, f); err != nil {
		return Options{}, err
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

// OptionsForFormulas preserves what any of fs needs. Several formulas never seed a
// measure-driven partition.
func OptionsForFormulas(model Model, fs []logic.Formula, opts ...Option) (Options, error) {
	switch len(fs) {
	case 0:
		return OptionsForModel(model, opts...), nil
	case 1:
		return OptionsForFormula(model, fs[0], opts...)
	}
	o := NewOptions()
	for _, f := range fs {
		preserveFormula(&o, f)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

func preserveFormula(o *Options, f logic.Formula) {
	if o.RespectedLabels == nil {
		o.RespectedLabels = []string{}
	}
	o.RespectedLabels = append(o.RespectedLabels, logic.AtomicLabels(f)...)
	o.RespectedLabels = append(o.RespectedLabels, logic.AtomicExpressions(f)...)
	slices.Sort(o.RespectedLabels)
	o.RespectedLabels = slices.Compact(o.RespectedLabels)

	info := logic.Inspect(f)
	if info.ContainsRewardOperator {
		o.KeepRewards = true
		for _, name := range info.RewardModels {
			if name == "" {
				continue
			}
			if o.RewardModel != "" && o.RewardModel != name {
				o.rewardModelConflict = true
			}
			o.RewardModel = name
		}
	}
	if info.ContainsBoundedUntil || info.ContainsNext {
		o.Bounded = true
	}
	o.MeasureDriven = false
	o.PhiStates, o.PsiStates = nil, nil
	o.OptimizationDirection = logic.NoDirection
}

func deriveMeasureDriven(model Model, o *Options, f logic.Formula) error {
	var sub logic.Formula
	dir := logic.NoDirection
	switch op := f.(type) {
	case *logic.ProbabilityOperator:
		sub, dir = op.Sub, operatorDirection(op.Optimality, op.Bound)
	case *logic.RewardOperator:
		sub, dir = op.Sub, operatorDirection(op.Optimality, op.Bound)
	default:
		sub = f
	}

	var phi, psi logic.Formula
	switch path := sub.(type) {
	case *logic.Until:
		phi, psi = path.Left, path.Right
	case *logic.Eventually:
		phi, psi = logic.True(), path.Sub
	default:
		return nil
	}
	if !logic.IsPropositional(phi) || !logic.IsPropositional(psi) {
		return nil
	}
	if model.Type().IsNondeterministic() && dir == logic.NoDirection {
		return nil
	}

	phiStates, err := StatesSatisfying(model, phi)
	if err != nil {
		return err
	}
	psiStates, err := StatesSatisfying(model, psi)
	if err != nil {
		return err
	}
	o.MeasureDriven = true
	o.PhiStates, o.PsiStates = phiStates, psiStates
	o.OptimizationDirection = dir
	return nil
}

// operatorDirection returns the explicit optimality, else the direction a bound
// implies: an upper bound has to hold for the maximizing scheduler.
func operatorDirection(optimality logic.Direction, bound *logic.Bound) logic.Direction {
	if optimality != logic.NoDirection {
		return optimality
	}
	if bound == nil {
		return logic.NoDirection
	}
	if bound.Comparison.IsUpper() {
		return logic.Maximize
	}
	return logic.Minimize
}

// StatesSatisfying evaluates a propositional formula over the labeling of model.
// Atomic expressions are looked up as labels named after their text.
func StatesSatisfying(model Model, f logic.Formula) (*bitset.BitSet, error) {
	n := uint(model.NumStates())
	switch g := f.(type) {
	case *logic.BooleanLiteral:
		if g.Value {
			return bitset.New(n).Complement(), nil
		}
		return bitset.New(n), nil
	case *logic.AtomicLabel:
		return labelStates(model, g.Label)
	case *logic.AtomicExpression:
		return labelStates(model, g.Expression)
	case *logic.Not:
		sub, err := StatesSatisfying(model, g.Sub)
		if err != nil {
			return nil, err
		}
		return sub.Complement(), nil
	case *logic.And, *logic.Or:
		children := g.Children()
		left, err := StatesSatisfying(model, children[0])
		if err != nil {
			return nil, err
		}
		right, err := StatesSatisfying(model, children[1])
		if err != nil {
			return nil, err
		}
		if _, ok := g.(*logic.And); ok {
			return left.Intersection(right), nil
		}
		return left.Union(right), nil
	default:
		return nil, fmt.Errorf("formula %v is not propositional: %w", f, ErrConfiguration)
	}
}

func labelStates(model Model, name string) (*bitset.BitSet, error) {
	states := model.Labeling().States(name)
	if states == nil {
		return nil, fmt.Errorf("unknown label %q: %w", name, ErrConfiguration)
	}
	return resized(states, model.NumStates()), nil
}

// validate checks the options against model and returns the reward model to keep
// with its name.
func (o *Options) validate(model Model) (string, *RewardModel, error) {
	if o.Type == Weak && o.Bounded {
		return "", nil, fmt.Errorf("weak bisimulation cannot preserve step-bounded properties: %w", ErrConfiguration)
	}
	if o.Type == Weak && model.Type().IsNondeterministic() {
		return "", nil, fmt.Errorf("weak bisimulation on an %v: %w", model.Type(), ErrConfiguration)
	}
	if o.Epsilon < 0 || math.IsNaN(o.Epsilon) {
		return "", nil, fmt.Errorf("epsilon %v: %w", o.Epsilon, ErrConfiguration)
	}
	if o.Workers < 1 {
		return "", nil, fmt.Errorf("%d workers: %w", o.Workers, ErrConfiguration)
	}
	if o.Oracle == nil {
		o.Oracle = GraphOracle{}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}

	labeling := model.Labeling()
	for _, label := range o.RespectedLabels {
		if !labeling.ContainsLabel(label) {
			return "", nil, fmt.Errorf("respected label %q not in model: %w", label, ErrConfiguration)
		}
	}

	if o.MeasureDriven {
		if o.PhiStates == nil || o.PsiStates == nil {
			return "", nil, fmt.Errorf("measure-driven partition without phi and psi states: %w", ErrConfiguration)
		}
		if model.Type().IsNondeterministic() && o.OptimizationDirection == logic.NoDirection {
			return "", nil, fmt.Errorf("measure-driven partition of an %v without optimization direction: %w", model.Type(), ErrConfiguration)
		}
	}

	if !o.KeepRewards {
		return "", nil, nil
	}
	return o.selectRewardModel(model)
}

func (o *Options) selectRewardModel(model Model) (string, *RewardModel, error) {
	rewardModels := model.RewardModels()
	if o.rewardModelConflict {
		return "", nil, fmt.Errorf("several reward models requested: %w", ErrConfiguration)
	}

	name := o.RewardModel
	switch {
	case name != "":
		if _, ok := rewardModels[name]; !ok {
			return "", nil, fmt.Errorf("unknown reward model %q: %w", name, ErrConfiguration)
		}
	case len(rewardModels) == 0:
		return "", nil, nil
	case len(rewardModels) > 1:
		return "", nil, fmt.Errorf("%d reward models and none selected: %w", len(rewardModels), ErrConfiguration)
	default:
		for found := range rewardModels {
			name = found
		}
	}
	rm := rewardModels[name]
	if !rm.HasOnlyStateRewards() {
		return "", nil, fmt.Errorf("reward model %q has non-state rewards: %w", name, ErrConfiguration)
	}
	return name, rm, nil
}

// respectedLabels resolves the labels the initial partition splits on, sorted,
// without the initial-state label.
func (o *Options) respectedLabels(model Model) []string {
	labels := o.RespectedLabels
	if labels == nil {
		labels = model.Labeling().Labels()
	}
	labels = slices.Clone(labels)
	slices.Sort(labels)
	labels = slices.Compact(labels)
	return slices.DeleteFunc(labels, func(l string) bool { return l == InitLabel })
}
