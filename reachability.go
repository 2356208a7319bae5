package bisimulation

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/geange/bisimulation/logic"
)

// ReachabilityOracle computes the states reaching psi through phi with probability 0
// and with probability 1. For nondeterministic models dir selects the minimizing or
// maximizing scheduler.
type ReachabilityOracle interface {
	Prob01(model Model, phi, psi *bitset.BitSet, dir logic.Direction) (prob0, prob1 *bitset.BitSet, err error)
}

var _ ReachabilityOracle = GraphOracle{}

// GraphOracle answers qualitative reachability by graph analysis alone.
type GraphOracle struct{}

func (GraphOracle) Prob01(model Model, phi, psi *bitset.BitSet, dir logic.Direction) (*bitset.BitSet, *bitset.BitSet, error) {
	if phi == nil || psi == nil {
		return nil, nil, fmt.Errorf("reachability needs phi and psi states: %w", ErrConfiguration)
	}
	n := model.NumStates()
	phi, psi = resized(phi, n), resized(psi, n)
	transitions := model.Transitions()
	backward := transitions.Transpose()

	if !model.Type().IsNondeterministic() {
		prob0 := complementOf(probGreater0E(backward, phi, psi), n)
		prob1 := complementOf(probGreater0E(backward, phi.Difference(psi), prob0), n)
		return prob0, prob1, nil
	}

	switch dir {
	case logic.Maximize:
		prob0 := complementOf(probGreater0E(backward, phi, psi), n)
		return prob0, prob1E(transitions, backward, phi, psi), nil
	case logic.Minimize:
		prob0 := complementOf(probGreater0A(transitions, backward, phi, psi), n)
		return prob0, prob1A(transitions, backward, phi, psi), nil
	default:
		return nil, nil, fmt.Errorf("qualitative reachability on an mdp without optimization direction: %w", ErrConfiguration)
	}
}

// probGreater0E returns psi together with every phi state that has a path through phi
// states into psi.
func probGreater0E(backward *SparseMatrix, phi, psi *bitset.BitSet) *bitset.BitSet {
	result := psi.Clone()
	stack := appendMembers(nil, psi)
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		predecessors, weights := backward.Row(t)
		for i, s := range predecessors {
			if weights[i] > 0 && phi.Test(uint(s)) && !result.Test(uint(s)) {
				result.Set(uint(s))
				stack = append(stack, s)
			}
		}
	}
	return result
}

// probGreater0A is the least set containing psi and every phi state whose choices,
// of which there is at least one, all have a successor in the set.
func probGreater0A(transitions, backward *SparseMatrix, phi, psi *bitset.BitSet) *bitset.BitSet {
	result := psi.Clone()
	stack := appendMembers(nil, psi)
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		predecessors, _ := backward.Row(t)
		for _, s := range predecessors {
			if !phi.Test(uint(s)) || result.Test(uint(s)) {
				continue
			}
			if everyChoice(transitions, s, func(row int) bool { return rowHitsAny(transitions, row, result) }) {
				result.Set(uint(s))
				stack = append(stack, s)
			}
		}
	}
	return result
}

// prob1E is the greatest fixpoint of the states with a choice staying in the current
// candidate set while making progress towards psi.
func prob1E(transitions, backward *SparseMatrix, phi, psi *bitset.BitSet) *bitset.BitSet {
	return prob1Fixpoint(transitions, backward, phi, psi, someChoice)
}

// prob1A is prob1E with every choice in place of some choice.
func prob1A(transitions, backward *SparseMatrix, phi, psi *bitset.BitSet) *bitset.BitSet {
	return prob1Fixpoint(transitions, backward, phi, psi, everyChoice)
}

func prob1Fixpoint(transitions, backward *SparseMatrix, phi, psi *bitset.BitSet,
	quantifier func(*SparseMatrix, int, func(int) bool) bool) *bitset.BitSet {
	n := transitions.RowGroupCount()
	candidates := bitset.New(uint(n)).Complement()
	for {
		current := psi.Clone()
		stack := appendMembers(nil, psi)
		for len(stack) > 0 {
			t := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			predecessors, _ := backward.Row(t)
			for _, s := range predecessors {
				if !phi.Test(uint(s)) || current.Test(uint(s)) || psi.Test(uint(s)) {
					continue
				}
				ok := quantifier(transitions, s, func(row int) bool {
					return rowWithin(transitions, row, candidates) && rowHitsAny(transitions, row, current)
				})
				if ok {
					current.Set(uint(s))
					stack = append(stack, s)
				}
			}
		}
		if current.Equal(candidates) {
			return current
		}
		candidates = current
	}
}

func someChoice(transitions *SparseMatrix, state int, pred func(row int) bool) bool {
	begin, end := transitions.RowGroup(state)
	for r := begin; r < end; r++ {
		if pred(r) {
			return true
		}
	}
	return false
}

// everyChoice is false for states without choices.
func everyChoice(transitions *SparseMatrix, state int, pred func(row int) bool) bool {
	begin, end := transitions.RowGroup(state)
	if begin == end {
		return false
	}
	for r := begin; r < end; r++ {
		if !pred(r) {
			return false
		}
	}
	return true
}

func rowHitsAny(transitions *SparseMatrix, row int, set *bitset.BitSet) bool {
	columns, values := transitions.Row(row)
	for i, t := range columns {
		if values[i] > 0 && set.Test(uint(t)) {
			return true
		}
	}
	return false
}

func rowWithin(transitions *SparseMatrix, row int, set *bitset.BitSet) bool {
	columns, values := transitions.Row(row)
	for i, t := range columns {
		if values[i] > 0 && !set.Test(uint(t)) {
			return false
		}
	}
	return true
}

// resized returns a copy of b with length n.
func resized(b *bitset.BitSet, n int) *bitset.BitSet {
	c := bitset.New(uint(n))
	for i, ok := b.NextSet(0); ok && i < uint(n); i, ok = b.NextSet(i + 1) {
		c.Set(i)
	}
	return c
}

func complementOf(b *bitset.BitSet, n int) *bitset.BitSet {
	return resized(b, n).Complement()
}

func appendMembers(dst []int, b *bitset.BitSet) []int {
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		dst = append(dst, int(i))
	}
	return dst
}
