package bisimulation

import (
	"fmt"
)

// buildQuotient turns the stable partition into a model with one state per block.
// Each block copies the labels, reward and transitions of its representative.
func (d *Decomposition) buildQuotient() (*SparseModel, error) {
	if !d.refined {
		return nil, fmt.Errorf("quotient built before refinement: %w", ErrPrecondition)
	}
	if d.options.KeepRewards {
		if _, _, err := d.options.selectRewardModel(d.model); err != nil {
			return nil, err
		}
	}

	p := d.partition
	numBlocks := p.Size()
	nondeterministic := d.model.Type().IsNondeterministic()
	source := d.model.Labeling()
	initial := d.model.InitialStates()

	labeling := NewLabeling(numBlocks)
	for _, label := range d.labels {
		if err := labeling.AddLabel(label); err != nil {
			return nil, err
		}
	}
	if err := labeling.AddLabel(InitLabel); err != nil {
		return nil, err
	}
	var stateRewards []float64
	if d.rewards != nil {
		stateRewards = make([]float64, numBlocks)
	}

	builder := NewSparseMatrixBuilder(numBlocks, d.transitions.EntryCount(), nondeterministic)
	row := 0
	for id, b := range p.blocks {
		rep := d.representative(b)
		for _, label := range d.labels {
			if source.StateHasLabel(label, rep) {
				if err := labeling.AddLabelToState(label, id); err != nil {
					return nil, err
				}
			}
		}
		for _, s := range p.States(b) {
			if initial.Test(uint(s)) {
				if err := labeling.AddLabelToState(InitLabel, id); err != nil {
					return nil, err
				}
				break
			}
		}
		if stateRewards != nil {
			stateRewards[id] = d.rewards.StateReward(rep)
		}

		if nondeterministic {
			if err := builder.NewRowGroup(row); err != nil {
				return nil, err
			}
		}
		var choices []distribution
		switch {
		case b.absorbing:
			choices = []distribution{{{block: id, weight: 1}}}
		case nondeterministic:
			choices = choiceSet(p, d.transitions, rep, d.options.Epsilon)
		default:
			choices = []distribution{d.deterministicRow(b, rep)}
		}
		for _, choice := range choices {
			for _, bw := range choice {
				if err := builder.AddNextValue(row, bw.block, bw.weight); err != nil {
					return nil, err
				}
			}
			row++
		}
	}

	matrix, err := builder.Build(row, numBlocks, numBlocks)
	if err != nil {
		return nil, err
	}
	rewardModels := make(map[string]*RewardModel)
	if stateRewards != nil {
		rewardModels[d.rewardName] = &RewardModel{StateRewards: stateRewards}
	}
	return NewSparseModel(d.model.Type(), matrix, labeling, rewardModels)
}

// representative picks the state whose behaviour a block copies: the recorded one,
// else for weak refinement the first state leaving the block, else the first state.
func (d *Decomposition) representative(b *Block) int {
	if b.representative >= 0 {
		return b.representative
	}
	states := d.partition.SortedStates(b)
	if weak, ok := d.data.(*weakData); ok {
		for _, s := range states {
			if !weak.isSilent(s) {
				return s
			}
		}
	}
	return states[0]
}

// deterministicRow lifts the row of rep to blocks. Weak DTMC refinement conditions it
// on leaving b; CTMC lumping drops the rates inside b.
func (d *Decomposition) deterministicRow(b *Block, rep int) distribution {
	lifted := liftRow(d.partition, d.transitions, rep, nil)
	switch data := d.data.(type) {
	case *weakData:
		if data.isSilent(rep) {
			return distribution{{block: b.id, weight: 1}}
		}
		exit := 1 - data.silent[rep]
		out := lifted[:0]
		for _, bw := range lifted {
			if bw.block != b.id {
				out = append(out, blockWeight{block: bw.block, weight: bw.weight / exit})
			}
		}
		return out
	case *lumpingData:
		out := lifted[:0]
		for _, bw := range lifted {
			if bw.block != b.id {
				out = append(out, bw)
			}
		}
		return out
	default:
		return lifted
	}
}
