package bisimulation

import (
	"cmp"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

type edge struct {
	from, to int
	p        float64
}

type target struct {
	to int
	p  float64
}

func newLabeling(t testing.TB, n int, labels map[string][]int) *Labeling {
	labeling := NewLabeling(n)
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		require.NoError(t, labeling.AddLabel(name))
		for _, s := range labels[name] {
			require.NoError(t, labeling.AddLabelToState(name, s))
		}
	}
	return labeling
}

func deterministicModel(t testing.TB, typ ModelType, n int, edges []edge, labels map[string][]int) *SparseModel {
	edges = slices.Clone(edges)
	slices.SortStableFunc(edges, func(a, b edge) int { return cmp.Compare(a.from, b.from) })
	builder := NewSparseMatrixBuilder(n, len(edges), false)
	for _, e := range edges {
		require.NoError(t, builder.AddNextValue(e.from, e.to, e.p))
	}
	matrix, err := builder.Build(n, n, n)
	require.NoError(t, err)
	model, err := NewSparseModel(typ, matrix, newLabeling(t, n, labels), nil)
	require.NoError(t, err)
	return model
}

// mdpModel builds an MDP; choices[s] lists the choices of state s.
func mdpModel(t testing.TB, choices [][][]target, labels map[string][]int) *SparseModel {
	n := len(choices)
	builder := NewSparseMatrixBuilder(0, 0, true)
	row := 0
	for _, stateChoices := range choices {
		require.NoError(t, builder.NewRowGroup(row))
		for _, choice := range stateChoices {
			for _, tg := range choice {
				require.NoError(t, builder.AddNextValue(row, tg.to, tg.p))
			}
			row++
		}
	}
	matrix, err := builder.Build(row, n, n)
	require.NoError(t, err)
	model, err := NewSparseModel(MDP, matrix, newLabeling(t, n, labels), nil)
	require.NoError(t, err)
	return model
}

// dieModel is Knuth and Yao's simulation of a die by coin flips: 13 states and 20
// transitions, the faces are the absorbing states 7 to 12.
func dieModel(t testing.TB) *SparseModel {
	edges := []edge{
		{0, 1, 0.5}, {0, 2, 0.5},
		{1, 3, 0.5}, {1, 4, 0.5},
		{2, 5, 0.5}, {2, 6, 0.5},
		{3, 1, 0.5}, {3, 7, 0.5},
		{4, 8, 0.5}, {4, 9, 0.5},
		{5, 10, 0.5}, {5, 11, 0.5},
		{6, 2, 0.5}, {6, 12, 0.5},
	}
	for s := 7; s <= 12; s++ {
		edges = append(edges, edge{s, s, 1})
	}
	return deterministicModel(t, DTMC, 13, edges, map[string][]int{
		InitLabel: {0},
		"one":     {7},
		"two":     {8},
		"three":   {9},
		"four":    {10},
		"five":    {11},
		"six":     {12},
		"done":    {7, 8, 9, 10, 11, 12},
	})
}

// dieModelWithRewards adds a reward of one per coin flip.
func dieModelWithRewards(t testing.TB, names ...string) *SparseModel {
	die := dieModel(t)
	rewardModels := make(map[string]*RewardModel)
	for _, name := range names {
		rewards := make([]float64, die.NumStates())
		for s := 0; s < 7; s++ {
			rewards[s] = 1
		}
		rewardModels[name] = &RewardModel{StateRewards: rewards}
	}
	model, err := NewSparseModel(DTMC, die.Transitions(), die.Labeling(), rewardModels)
	require.NoError(t, err)
	return model
}
