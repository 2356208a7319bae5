package logic

import (
	"slices"
	"sort"
)

// Info summarizes which constructs occur in a formula.
type Info struct {
	ContainsProbabilityOperator bool
	ContainsRewardOperator      bool
	ContainsBoundedUntil        bool
	ContainsNext                bool
	// RewardModels lists the reward model names referenced by reward operators,
	// sorted, without duplicates. The unnamed reward model appears as "".
	RewardModels []string
}

// Walk visits f and its subformulas in pre-order. Returning false from fn skips the
// children of the visited node.
func Walk(f Formula, fn func(Formula) bool) {
	if f == nil || !fn(f) {
		return
	}
	for _, c := range f.Children() {
		Walk(c, fn)
	}
}

func Inspect(f Formula) Info {
	var info Info
	Walk(f, func(g Formula) bool {
		switch g := g.(type) {
		case *ProbabilityOperator:
			info.ContainsProbabilityOperator = true
		case *RewardOperator:
			info.ContainsRewardOperator = true
			if !slices.Contains(info.RewardModels, g.RewardModel) {
				info.RewardModels = append(info.RewardModels, g.RewardModel)
			}
		case *BoundedUntil:
			info.ContainsBoundedUntil = true
		case *Next:
			info.ContainsNext = true
		}
		return true
	})
	sort.Strings(info.RewardModels)
	return info
}

// AtomicLabels returns the label names occurring in f, sorted, without duplicates.
func AtomicLabels(f Formula) []string {
	var labels []string
	Walk(f, func(g Formula) bool {
		if a, ok := g.(*AtomicLabel); ok {
			labels = append(labels, a.Label)
		}
		return true
	})
	slices.Sort(labels)
	return slices.Compact(labels)
}

// AtomicExpressions returns the text of the expressions occurring in f, sorted,
// without duplicates.
func AtomicExpressions(f Formula) []string {
	var exprs []string
	Walk(f, func(g Formula) bool {
		if a, ok := g.(*AtomicExpression); ok {
			exprs = append(exprs, a.Expression)
		}
		return true
	})
	slices.Sort(exprs)
	return slices.Compact(exprs)
}

// IsPropositional reports whether f is built from literals, atoms and boolean
// connectives only.
func IsPropositional(f Formula) bool {
	if f == nil {
		return false
	}
	propositional := true
	Walk(f, func(g Formula) bool {
		switch g.(type) {
		case *BooleanLiteral, *AtomicLabel, *AtomicExpression, *Not, *And, *Or:
			return true
		default:
			propositional = false
			return false
		}
	})
	return propositional
}
