package bisimulation

import (
	"bytes"
	"errors"
	"log"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geange/bisimulation/logic"
)

func refine(t *testing.T, model Model, opts Options) *Decomposition {
	t.Helper()
	d, err := Build(model, opts)
	require.NoError(t, err)
	require.NoError(t, d.Refine())
	require.NoError(t, d.Partition().Check())
	return d
}

func blocksOf(t *testing.T, d *Decomposition) [][]int {
	t.Helper()
	blocks, err := d.Blocks()
	require.NoError(t, err)
	return blocks
}

// assertLumpable checks that the members of every block move into every block with
// the same probability.
func assertLumpable(t *testing.T, model Model, p *Partition) {
	t.Helper()
	for _, b := range p.Blocks() {
		states := p.States(b)
		first := liftRow(p, model.Transitions(), states[0], nil)
		for _, s := range states[1:] {
			other := liftRow(p, model.Transitions(), s, nil)
			assert.Equal(t, 0, compareDistributions(first, other, 1e-9),
				"states %d and %d of block %d differ", states[0], s, b.ID())
		}
	}
}

func assertStochastic(t *testing.T, quotient *SparseModel) {
	t.Helper()
	m := quotient.Transitions()
	for r := 0; r < m.RowCount(); r++ {
		assert.InDelta(t, 1, m.RowSum(r), 1e-9, "row %d", r)
	}
}

func TestStrongDie(t *testing.T) {
	die := dieModel(t)

	t.Run("One", func(t *testing.T) {
		d := refine(t, die, NewOptions(WithRespectedLabels("one")))
		assert.ElementsMatch(t, [][]int{{0}, {1}, {3}, {7}, {2, 4, 5, 6, 8, 9, 10, 11, 12}}, blocksOf(t, d))
		assertLumpable(t, die, d.Partition())

		quotient, err := d.Quotient()
		require.NoError(t, err)
		assert.Equal(t, 5, quotient.NumStates())
		assert.Equal(t, 8, quotient.NumTransitions())
		assertStochastic(t, quotient)

		p := d.Partition()
		labeling := quotient.Labeling()
		assert.True(t, labeling.StateHasLabel("one", p.BlockID(7)))
		assert.Equal(t, uint(1), labeling.States("one").Count())
		assert.True(t, labeling.StateHasLabel(InitLabel, p.BlockID(0)))
		assert.Equal(t, uint(1), quotient.InitialStates().Count())
		assert.False(t, labeling.ContainsLabel("done"))
		assert.Equal(t, 0.5, quotient.Transitions().Value(p.BlockID(3), p.BlockID(7)))
	})

	t.Run("Done", func(t *testing.T) {
		d := refine(t, die, NewOptions(WithRespectedLabels("done")))
		assert.ElementsMatch(t, [][]int{{0}, {1, 2}, {3, 6}, {4, 5}, {7, 8, 9, 10, 11, 12}}, blocksOf(t, d))
		assertLumpable(t, die, d.Partition())

		quotient, err := d.Quotient()
		require.NoError(t, err)
		assert.Equal(t, 7, quotient.NumTransitions())
		p := d.Partition()
		assert.Equal(t, 0.5, quotient.Transitions().Value(p.BlockID(3), p.BlockID(1)))
		assert.Equal(t, 1.0, quotient.Transitions().Value(p.BlockID(4), p.BlockID(7)))
		assert.Equal(t, 1.0, quotient.Transitions().Value(p.BlockID(0), p.BlockID(2)))
	})

	t.Run("AllLabels", func(t *testing.T) {
		quotient, err := Minimize(die, NewOptions())
		require.NoError(t, err)
		assert.Equal(t, 13, quotient.NumStates())
		assert.Equal(t, 20, quotient.NumTransitions())
	})
}

func TestWeakDie(t *testing.T) {
	die := dieModel(t)
	d := refine(t, die, NewOptions(WithType(Weak), WithRespectedLabels("one")))
	assert.ElementsMatch(t, [][]int{{0}, {1}, {3}, {7}, {2, 4, 5, 6, 8, 9, 10, 11, 12}}, blocksOf(t, d))

	quotient, err := d.Quotient()
	require.NoError(t, err)
	assert.Equal(t, 5, quotient.NumStates())
	assert.Equal(t, 8, quotient.NumTransitions())
	assertStochastic(t, quotient)

	p := d.Partition()
	rest := p.BlockID(2)
	assert.Equal(t, 1.0, quotient.Transitions().Value(rest, rest))
	assert.Equal(t, 0.5, quotient.Transitions().Value(p.BlockID(0), rest))
}

// A chain of silent steps collapses into the state it surely reaches.
func TestWeakSilentChain(t *testing.T) {
	model := deterministicModel(t, DTMC, 5, []edge{
		{0, 1, 1},
		{1, 2, 1},
		{2, 3, 0.5}, {2, 4, 0.5},
		{3, 3, 1},
		{4, 4, 1},
	}, map[string][]int{"a": {3}, "b": {4}})

	d := refine(t, model, NewOptions(WithType(Weak)))
	assert.ElementsMatch(t, [][]int{{0, 1, 2}, {3}, {4}}, blocksOf(t, d))

	quotient, err := d.Quotient()
	require.NoError(t, err)
	assertStochastic(t, quotient)
	p := d.Partition()
	assert.Equal(t, 0.5, quotient.Transitions().Value(p.BlockID(0), p.BlockID(3)))

	strong := refine(t, model, NewOptions())
	assert.Equal(t, 5, strong.Partition().Size())
}

// Silent states that may end in different classes, or never leave, are kept apart.
func TestWeakBranchingAndDivergence(t *testing.T) {
	model := deterministicModel(t, DTMC, 7, []edge{
		{0, 1, 0.5}, {0, 2, 0.5},
		{1, 5, 1},
		{2, 6, 1},
		{3, 3, 1},
		{4, 3, 0.5}, {4, 5, 0.5},
		{5, 5, 1},
		{6, 6, 1},
	}, map[string][]int{"a": {5}, "b": {6}})

	d := refine(t, model, NewOptions(WithType(Weak)))
	blocks := blocksOf(t, d)
	p := d.Partition()
	assert.NotEqual(t, p.BlockID(0), p.BlockID(1))
	assert.NotEqual(t, p.BlockID(1), p.BlockID(2))
	assert.NotEqual(t, p.BlockID(3), p.BlockID(1))
	assert.NotEqual(t, p.BlockID(4), p.BlockID(1))
	assert.Contains(t, blocks, []int{5})
	assert.Contains(t, blocks, []int{6})
}

func TestMeasureDrivenDie(t *testing.T) {
	die := dieModel(t)
	f := &logic.ProbabilityOperator{Sub: &logic.Eventually{Sub: logic.Label("one")}}
	opts, err := OptionsForFormula(die, f)
	require.NoError(t, err)

	d, err := Build(die, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Partition().Size())
	prob0 := d.Partition().BlockOf(2)
	assert.True(t, prob0.Absorbing())
	assert.True(t, d.Partition().BlockOf(7).Absorbing())
	assert.Equal(t, 7, d.Partition().BlockOf(7).Representative())

	require.NoError(t, d.Refine())
	assert.ElementsMatch(t, [][]int{{0}, {1}, {3}, {7}, {2, 4, 5, 6, 8, 9, 10, 11, 12}}, blocksOf(t, d))
	quotient, err := d.Quotient()
	require.NoError(t, err)
	assert.Equal(t, 5, quotient.NumStates())
	assert.Equal(t, 8, quotient.NumTransitions())
	assert.Equal(t, 1.0, quotient.Transitions().Value(prob0.ID(), prob0.ID()))
}

func TestMeasureDrivenRewards(t *testing.T) {
	die := dieModelWithRewards(t, "coins")
	f := &logic.RewardOperator{RewardModel: "coins", Sub: &logic.Eventually{Sub: logic.Label("done")}}
	opts, err := OptionsForFormula(die, f)
	require.NoError(t, err)
	require.True(t, opts.MeasureDriven)

	d := refine(t, die, opts)
	assert.ElementsMatch(t, [][]int{{0}, {1, 2}, {3, 6}, {4, 5}, {7, 8, 9, 10, 11, 12}}, blocksOf(t, d))

	quotient, err := d.Quotient()
	require.NoError(t, err)
	rewards, ok := quotient.RewardModels()["coins"]
	require.True(t, ok)
	p := d.Partition()
	assert.Equal(t, 1.0, rewards.StateReward(p.BlockID(3)))
	assert.Equal(t, 0.0, rewards.StateReward(p.BlockID(9)))
}

func TestRewardSplit(t *testing.T) {
	die := dieModel(t)
	rewards := make([]float64, die.NumStates())
	for s := 0; s < 7; s++ {
		rewards[s] = 1
	}
	rewards[2] = 2
	model, err := NewSparseModel(DTMC, die.Transitions(), die.Labeling(),
		map[string]*RewardModel{"coins": {StateRewards: rewards}})
	require.NoError(t, err)

	d := refine(t, model, OptionsForModel(model, WithRespectedLabels("done")))
	assert.ElementsMatch(t, [][]int{{0}, {1}, {2}, {3}, {6}, {4, 5}, {7, 8, 9, 10, 11, 12}}, blocksOf(t, d))

	quotient, err := d.Quotient()
	require.NoError(t, err)
	p := d.Partition()
	assert.Equal(t, 2.0, quotient.RewardModels()["coins"].StateReward(p.BlockID(2)))

	// without rewards the states merge again
	d = refine(t, model, OptionsForModel(model, WithRespectedLabels("done"), WithoutRewards()))
	assert.Equal(t, 5, d.Partition().Size())
	quotient, err = d.Quotient()
	require.NoError(t, err)
	assert.Empty(t, quotient.RewardModels())
}

func ctmcModel(t *testing.T) *SparseModel {
	return deterministicModel(t, CTMC, 4, []edge{
		{0, 1, 2}, {0, 2, 2},
		{1, 2, 5}, {1, 3, 3},
		{2, 3, 3},
		{3, 0, 1},
	}, map[string][]int{"goal": {3}})
}

func TestCTMC(t *testing.T) {
	model := ctmcModel(t)

	t.Run("Strong", func(t *testing.T) {
		d := refine(t, model, NewOptions())
		assert.ElementsMatch(t, [][]int{{0}, {1}, {2}, {3}}, blocksOf(t, d))
	})

	t.Run("Weak", func(t *testing.T) {
		d := refine(t, model, NewOptions(WithType(Weak)))
		assert.ElementsMatch(t, [][]int{{0}, {1, 2}, {3}}, blocksOf(t, d))

		quotient, err := d.Quotient()
		require.NoError(t, err)
		assert.Equal(t, CTMC, quotient.Type())
		assert.Equal(t, 3, quotient.NumTransitions())
		p := d.Partition()
		assert.Equal(t, 4.0, quotient.Transitions().Value(p.BlockID(0), p.BlockID(1)))
		assert.Equal(t, 3.0, quotient.Transitions().Value(p.BlockID(1), p.BlockID(3)))
		assert.Equal(t, 0.0, quotient.Transitions().Value(p.BlockID(1), p.BlockID(1)))
	})

	t.Run("StrongKeepsSelfLoopRates", func(t *testing.T) {
		loop := deterministicModel(t, CTMC, 3, []edge{
			{0, 0, 1}, {0, 2, 1},
			{1, 2, 1},
			{2, 2, 1},
		}, map[string][]int{"goal": {2}})
		d := refine(t, loop, NewOptions())
		assert.ElementsMatch(t, [][]int{{0}, {1}, {2}}, blocksOf(t, d))
		d = refine(t, loop, NewOptions(WithType(Weak)))
		assert.ElementsMatch(t, [][]int{{0, 1}, {2}}, blocksOf(t, d))
	})
}

func duplicateChoiceModel(t *testing.T) *SparseModel {
	return mdpModel(t, [][][]target{
		{{{1, 1}}, {{2, 1}}},
		{{{1, 1}}},
		{{{2, 1}}},
		{{{1, 0.5}, {2, 0.5}}},
		{{{2, 1}}, {{1, 1}}},
		{{{2, 1}}, {{2, 1}}},
	}, map[string][]int{"goal": {1}})
}

func TestMDP(t *testing.T) {
	model := duplicateChoiceModel(t)

	t.Run("Strong", func(t *testing.T) {
		d := refine(t, model, NewOptions())
		assert.ElementsMatch(t, [][]int{{0, 4}, {1}, {2, 5}, {3}}, blocksOf(t, d))

		quotient, err := d.Quotient()
		require.NoError(t, err)
		assert.Equal(t, MDP, quotient.Type())
		assert.Equal(t, 4, quotient.NumStates())
		assert.Equal(t, 5, quotient.NumChoices())
		assert.Equal(t, 6, quotient.NumTransitions())
		assertStochastic(t, quotient)
		assert.Equal(t, 2, quotient.Transitions().RowGroupSize(d.Partition().BlockID(0)))
	})

	t.Run("MeasureDriven", func(t *testing.T) {
		f := &logic.ProbabilityOperator{Optimality: logic.Maximize, Sub: &logic.Eventually{Sub: logic.Label("goal")}}
		opts, err := OptionsForFormula(model, f)
		require.NoError(t, err)
		d := refine(t, model, opts)
		// 0 and 4 reach the goal surely under the maximizing scheduler
		assert.ElementsMatch(t, [][]int{{3}, {0, 1, 4}, {2, 5}}, blocksOf(t, d))

		quotient, err := d.Quotient()
		require.NoError(t, err)
		assert.Equal(t, 4, quotient.NumTransitions())
		p := d.Partition()
		assert.Equal(t, 0.5, quotient.Transitions().Value(p.BlockID(3), p.BlockID(1)))
	})

	t.Run("MeasureDrivenMinimize", func(t *testing.T) {
		f := &logic.ProbabilityOperator{Optimality: logic.Minimize, Sub: &logic.Eventually{Sub: logic.Label("goal")}}
		opts, err := OptionsForFormula(model, f)
		require.NoError(t, err)
		d := refine(t, model, opts)
		assert.ElementsMatch(t, [][]int{{3}, {1}, {0, 2, 4, 5}}, blocksOf(t, d))
	})

	t.Run("WithoutDirectionFallsBackToLabels", func(t *testing.T) {
		f := &logic.ProbabilityOperator{Sub: &logic.Eventually{Sub: logic.Label("goal")}}
		opts, err := OptionsForFormula(model, f)
		require.NoError(t, err)
		assert.False(t, opts.MeasureDriven)
		d := refine(t, model, opts)
		assert.Equal(t, 4, d.Partition().Size())
	})
}

func TestRefineIdempotent(t *testing.T) {
	d := refine(t, dieModel(t), NewOptions(WithRespectedLabels("done")))
	first := d.Stats()
	before := blocksOf(t, d)

	require.NoError(t, d.Refine())
	second := d.Stats()
	assert.Equal(t, first.Splits, second.Splits)
	assert.Equal(t, first.Blocks, second.Blocks)
	assert.Greater(t, second.Iterations, first.Iterations)
	assert.Equal(t, before, blocksOf(t, d))
}

func TestRefinementIsMonotone(t *testing.T) {
	die := dieModel(t)
	d, err := Build(die, NewOptions())
	require.NoError(t, err)

	sizes := []int{d.Partition().Size()}
	d.observe = func(p *Partition) {
		assert.NoError(t, p.Check())
		sizes = append(sizes, p.Size())
	}
	require.NoError(t, d.Refine())
	assert.True(t, slices.IsSorted(sizes))
	assert.Equal(t, 13, sizes[len(sizes)-1])
}

func TestBlocksAgreeOnLabels(t *testing.T) {
	die := dieModel(t)
	d := refine(t, die, NewOptions(WithRespectedLabels("done", "six")))
	p := d.Partition()
	for _, b := range p.Blocks() {
		states := p.States(b)
		for _, s := range states[1:] {
			for _, label := range []string{"done", "six"} {
				assert.Equal(t, die.Labeling().StateHasLabel(label, states[0]), die.Labeling().StateHasLabel(label, s))
			}
		}
	}
	assertLumpable(t, die, p)
}

func TestWorkers(t *testing.T) {
	for _, model := range []Model{dieModel(t), duplicateChoiceModel(t), ctmcModel(t)} {
		sequential := refine(t, model, NewOptions())
		parallel := refine(t, model, NewOptions(WithWorkers(4)))
		assert.Equal(t, blocksOf(t, sequential), blocksOf(t, parallel), "%v", model)
	}
	weak := refine(t, dieModel(t), NewOptions(WithType(Weak), WithRespectedLabels("one"), WithWorkers(3)))
	assert.Equal(t, 5, weak.Partition().Size())
}

func TestPreconditions(t *testing.T) {
	d, err := Build(dieModel(t), NewOptions(WithQuotient(false)))
	require.NoError(t, err)

	_, err = d.Quotient()
	assert.True(t, errors.Is(err, ErrPrecondition))
	_, err = d.Blocks()
	assert.True(t, errors.Is(err, ErrPrecondition))

	require.NoError(t, d.Refine())
	_, err = d.Blocks()
	assert.NoError(t, err)
	_, err = d.Quotient()
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestStatsAndLogging(t *testing.T) {
	var buf bytes.Buffer
	d := refine(t, dieModel(t), NewOptions(WithRespectedLabels("one"), WithLogger(log.New(&buf, "", 0))))

	stats := d.Stats()
	_, err := uuid.Parse(stats.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 13, stats.States)
	assert.Equal(t, 20, stats.Transitions)
	assert.Equal(t, 2, stats.InitialBlocks)
	assert.Equal(t, 5, stats.Blocks)
	assert.Equal(t, 3, stats.Splits)
	assert.Contains(t, buf.String(), stats.RunID)
	assert.Contains(t, buf.String(), "13 states -> 5 blocks")
}

func TestEmptyModel(t *testing.T) {
	model := deterministicModel(t, DTMC, 0, nil, nil)
	quotient, err := Minimize(model, NewOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, quotient.NumStates())
}

func TestEpsilonDoesNotChain(t *testing.T) {
	edges := []edge{{3, 3, 1}, {4, 4, 1}}
	for s, p := range []float64{0.5, 0.5 + 0.6e-9, 0.5 + 1.2e-9} {
		edges = append(edges, edge{s, 3, p}, edge{s, 4, 1 - p})
	}
	model := deterministicModel(t, DTMC, 5, edges, map[string][]int{"goal": {3}, "bad": {4}})

	for _, typ := range []BisimulationType{Strong, Weak} {
		d := refine(t, model, NewOptions(WithType(typ)))
		blocks := blocksOf(t, d)
		assert.Contains(t, blocks, []int{0, 1}, typ.String())
		assert.Contains(t, blocks, []int{2}, typ.String())
	}
}

func TestEpsilon(t *testing.T) {
	model := deterministicModel(t, DTMC, 4, []edge{
		{0, 2, 0.5}, {0, 3, 0.5},
		{1, 2, 0.5 + 1e-12}, {1, 3, 0.5 - 1e-12},
		{2, 2, 1},
		{3, 3, 1},
	}, map[string][]int{"a": {2}})

	d := refine(t, model, NewOptions())
	assert.Contains(t, blocksOf(t, d), []int{0, 1})

	d = refine(t, model, NewOptions(WithEpsilon(0)))
	assert.Equal(t, 0.0, d.Options().Epsilon)
	assert.Equal(t, 4, d.Partition().Size())
}
