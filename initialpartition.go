package bisimulation

import (
	"cmp"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// labelPartition splits all states by every respected label, one label at a time in
// the given order, then by state reward.
func labelPartition(model Model, labels []string, rewards *RewardModel, eps float64) *Partition {
	p := NewPartition(model.NumStates())
	labeling := model.Labeling()
	for _, label := range labels {
		p.SplitStates(labeling.States(label))
	}
	if rewards != nil {
		splitByReward(p, rewards, eps)
	}
	return p
}

func splitByReward(p *Partition, rewards *RewardModel, eps float64) {
	order := func(s, t int) int {
		return cmp.Compare(rewards.StateReward(s), rewards.StateReward(t))
	}
	same := func(s, t int) int {
		return compareValues(rewards.StateReward(s), rewards.StateReward(t), eps)
	}
	for _, b := range p.blocks[:len(p.blocks):len(p.blocks)] {
		p.SplitBlockWithin(b, order, same, nil)
	}
}

// Classes of the measure-driven partition, in block order.
const (
	classRest = iota
	classProb1
	classPsi
	classProb0
)

// measurePartition seeds the partition with the states reaching psi through phi with
// probability 0 and 1. prob0 and the psi class are absorbing. With separateTarget the
// psi states form their own class and the remaining prob1 states stay refinable.
func measurePartition(model Model, o *Options, rewards *RewardModel) (*Partition, error) {
	n := model.NumStates()
	phi, psi := resized(o.PhiStates, n), resized(o.PsiStates, n)
	prob0, prob1, err := o.Oracle.Prob01(model, phi, psi, o.OptimizationDirection)
	if err != nil {
		return nil, fmt.Errorf("measure-driven partition: %w", err)
	}
	separateTarget := o.Bounded || o.KeepRewards

	class := func(s int) int {
		switch {
		case prob0.Test(uint(s)):
			return classProb0
		case separateTarget && psi.Test(uint(s)):
			return classPsi
		case prob1.Test(uint(s)) && separateTarget:
			return classProb1
		case prob1.Test(uint(s)):
			return classPsi
		default:
			return classRest
		}
	}

	p := NewPartition(n)
	if n == 0 {
		return p, nil
	}
	p.SplitBlock(p.blocks[0], func(s, t int) int { return cmp.Compare(class(s), class(t)) }, nil)

	for _, b := range p.blocks {
		first := p.states[b.begin]
		switch class(first) {
		case classProb0:
			b.absorbing = true
		case classPsi:
			b.absorbing = true
			b.representative = firstMember(p, b, psi)
		}
	}
	if rewards != nil {
		splitByReward(p, rewards, o.Epsilon)
	}
	return p, nil
}

// firstMember returns the smallest state of b in set, or -1.
func firstMember(p *Partition, b *Block, set *bitset.BitSet) int {
	best := -1
	for _, s := range p.States(b) {
		if set.Test(uint(s)) && (best < 0 || s < best) {
			best = s
		}
	}
	return best
}
