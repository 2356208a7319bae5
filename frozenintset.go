package bisimulation

import "slices"

var _ Hashable = &FrozenIntSet{}

// FrozenIntSet is an immutable sorted set of ints with a tag, usable as a HashMap key.
// Weak refinement keys silent states by the set of exit classes they reach and by
// whether they may diverge; the tag carries the latter.
type FrozenIntSet struct {
	values   []int
	tag      int
	hashCode uint64
}

// NewFrozenIntSet takes ownership of values, which must be sorted and free of duplicates.
func NewFrozenIntSet(values []int, tag int) *FrozenIntSet {
	return &FrozenIntSet{values: values, tag: tag, hashCode: hashInts(tag, values)}
}

func (f *FrozenIntSet) Hash() uint64 {
	return f.hashCode
}

func (f *FrozenIntSet) Equals(other Hashable) bool {
	o, ok := other.(*FrozenIntSet)
	if !ok {
		return false
	}
	if f == nil || o == nil {
		return f == o
	}
	return f.hashCode == o.hashCode && f.tag == o.tag && slices.Equal(f.values, o.values)
}

func (f *FrozenIntSet) Values() []int {
	return f.values
}

func (f *FrozenIntSet) Tag() int {
	return f.tag
}

func (f *FrozenIntSet) Size() int {
	return len(f.values)
}
