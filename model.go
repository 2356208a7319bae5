package bisimulation

import (
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// InitLabel marks the initial states of a model.
const InitLabel = "init"

// DefaultModelTolerance bounds how far a probabilistic row sum may drift from one.
const DefaultModelTolerance = 1e-6

// ModelType distinguishes the supported transition systems.
type ModelType int

const (
	DTMC ModelType = iota
	CTMC
	MDP
)

func (t ModelType) String() string {
	switch t {
	case DTMC:
		return "dtmc"
	case CTMC:
		return "ctmc"
	case MDP:
		return "mdp"
	default:
		return fmt.Sprintf("ModelType(%d)", int(t))
	}
}

// IsNondeterministic reports whether states of this type may have several choices.
func (t ModelType) IsNondeterministic() bool {
	return t == MDP
}

// Model is the read interface the decomposition consumes.
type Model interface {
	Type() ModelType
	NumStates() int
	NumTransitions() int
	// Transitions holds one row group per state.
	Transitions() *SparseMatrix
	Labeling() *Labeling
	InitialStates() *bitset.BitSet
	RewardModels() map[string]*RewardModel
}

// Labeling maps label names to the set of states carrying them.
type Labeling struct {
	numStates int
	names     []string
	sets      map[string]*bitset.BitSet
}

func NewLabeling(numStates int) *Labeling {
	return &Labeling{numStates: numStates, sets: make(map[string]*bitset.BitSet)}
}

func (l *Labeling) NumStates() int {
	return l.numStates
}

// AddLabel declares an empty label.
func (l *Labeling) AddLabel(name string) error {
	if _, ok := l.sets[name]; ok {
		return fmt.Errorf("label %q declared twice: %w", name, ErrInvalidModel)
	}
	l.names = append(l.names, name)
	l.sets[name] = bitset.New(uint(l.numStates))
	return nil
}

// AddLabelToState declares name if needed and attaches it to state.
func (l *Labeling) AddLabelToState(name string, state int) error {
	if state < 0 || state >= l.numStates {
		return fmt.Errorf("label %q on state %d outside [0, %d): %w", name, state, l.numStates, ErrInvalidModel)
	}
	if _, ok := l.sets[name]; !ok {
		if err := l.AddLabel(name); err != nil {
			return err
		}
	}
	l.sets[name].Set(uint(state))
	return nil
}

// SetStates replaces the states of name, declaring the label if needed.
func (l *Labeling) SetStates(name string, states *bitset.BitSet) {
	if _, ok := l.sets[name]; !ok {
		l.names = append(l.names, name)
	}
	set := bitset.New(uint(l.numStates))
	set.InPlaceUnion(states)
	l.sets[name] = set
}

func (l *Labeling) ContainsLabel(name string) bool {
	_, ok := l.sets[name]
	return ok
}

// Labels returns the label names in declaration order.
func (l *Labeling) Labels() []string {
	return slices.Clone(l.names)
}

// States returns the states carrying name, or nil for an unknown label. The set is
// shared with the labeling.
func (l *Labeling) States(name string) *bitset.BitSet {
	return l.sets[name]
}

func (l *Labeling) StateHasLabel(name string, state int) bool {
	set, ok := l.sets[name]
	return ok && set.Test(uint(state))
}

// LabelsOfState returns the labels of state in declaration order.
func (l *Labeling) LabelsOfState(state int) []string {
	var labels []string
	for _, name := range l.names {
		if l.sets[name].Test(uint(state)) {
			labels = append(labels, name)
		}
	}
	return labels
}

// RewardModel attaches rewards to states, choices or transitions. The decomposition
// can only preserve state rewards.
type RewardModel struct {
	StateRewards       []float64
	StateActionRewards []float64
	TransitionRewards  *SparseMatrix
}

func (r *RewardModel) HasStateRewards() bool {
	return r.StateRewards != nil
}

func (r *RewardModel) HasOnlyStateRewards() bool {
	return r.StateRewards != nil && r.StateActionRewards == nil && r.TransitionRewards == nil
}

// StateReward returns the reward of state, zero when no state rewards are given.
func (r *RewardModel) StateReward(state int) float64 {
	if r.StateRewards == nil {
		return 0
	}
	return r.StateRewards[state]
}

var _ Model = &SparseModel{}

// SparseModel is the in-memory Model used for inputs and quotients.
type SparseModel struct {
	modelType    ModelType
	transitions  *SparseMatrix
	labeling     *Labeling
	rewardModels map[string]*RewardModel
}

// NewSparseModel validates its arguments and assembles a model. A nil labeling is
// replaced by an empty one.
func NewSparseModel(t ModelType, transitions *SparseMatrix, labeling *Labeling, rewardModels map[string]*RewardModel) (*SparseModel, error) {
	if transitions == nil {
		return nil, fmt.Errorf("no transition matrix: %w", ErrInvalidModel)
	}
	n := transitions.RowGroupCount()
	if labeling == nil {
		labeling = NewLabeling(n)
	}
	if rewardModels == nil {
		rewardModels = make(map[string]*RewardModel)
	}
	m := &SparseModel{modelType: t, transitions: transitions, labeling: labeling, rewardModels: rewardModels}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SparseModel) validate() error {
	n := m.transitions.RowGroupCount()
	if m.transitions.ColumnCount() > n {
		return fmt.Errorf("%d columns for %d states: %w", m.transitions.ColumnCount(), n, ErrInvalidModel)
	}
	if m.labeling.NumStates() != n {
		return fmt.Errorf("labeling sized for %d states, model has %d: %w", m.labeling.NumStates(), n, ErrInvalidModel)
	}
	if !m.modelType.IsNondeterministic() && !m.transitions.HasTrivialRowGrouping() {
		return fmt.Errorf("%v with several rows per state: %w", m.modelType, ErrInvalidModel)
	}
	for r := 0; r < m.transitions.RowCount(); r++ {
		_, values := m.transitions.Row(r)
		sum := 0.0
		for _, v := range values {
			if v < 0 {
				return fmt.Errorf("negative value %v in row %d: %w", v, r, ErrInvalidModel)
			}
			sum += v
		}
		if m.modelType != CTMC && math.Abs(sum-1) > DefaultModelTolerance {
			return fmt.Errorf("row %d sums to %v: %w", r, sum, ErrInvalidModel)
		}
	}
	for name, rm := range m.rewardModels {
		if rm == nil {
			return fmt.Errorf("reward model %q is nil: %w", name, ErrInvalidModel)
		}
		if rm.StateRewards != nil && len(rm.StateRewards) != n {
			return fmt.Errorf("reward model %q has %d state rewards for %d states: %w", name, len(rm.StateRewards), n, ErrInvalidModel)
		}
		if rm.StateActionRewards != nil && len(rm.StateActionRewards) != m.transitions.RowCount() {
			return fmt.Errorf("reward model %q has %d state-action rewards for %d choices: %w",
				name, len(rm.StateActionRewards), m.transitions.RowCount(), ErrInvalidModel)
		}
	}
	return nil
}

func (m *SparseModel) Type() ModelType {
	return m.modelType
}

func (m *SparseModel) NumStates() int {
	return m.transitions.RowGroupCount()
}

func (m *SparseModel) NumTransitions() int {
	return m.transitions.EntryCount()
}

// NumChoices returns the number of rows of the transition matrix.
func (m *SparseModel) NumChoices() int {
	return m.transitions.RowCount()
}

func (m *SparseModel) Transitions() *SparseMatrix {
	return m.transitions
}

func (m *SparseModel) Labeling() *Labeling {
	return m.labeling
}

func (m *SparseModel) InitialStates() *bitset.BitSet {
	if set := m.labeling.States(InitLabel); set != nil {
		return set
	}
	return bitset.New(uint(m.NumStates()))
}

func (m *SparseModel) RewardModels() map[string]*RewardModel {
	return m.rewardModels
}

func (m *SparseModel) String() string {
	return fmt.Sprintf("%v{states: %d, transitions: %d, labels: %d, rewards: %d}",
		m.modelType, m.NumStates(), m.NumTransitions(), len(m.labeling.names), len(m.rewardModels))
}
