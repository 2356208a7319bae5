package bisimulation

import "slices"

// IntSet is a set of ints that can key a HashMap.
type IntSet interface {
	Hashable

	// Values returns the members in ascending order.
	Values() []int

	Size() int
}

var (
	_ IntSet = &StateSet{}
	_ IntSet = &FrozenIntSet{}
)

// StateSet is a growing set of ints. Its hash is order independent and cached until
// the next change.
type StateSet struct {
	inner       map[int]struct{}
	hashUpdated bool
	hashCode    uint64
}

func NewStateSet() *StateSet {
	return &StateSet{
		inner: make(map[int]struct{}),
	}
}

func (s *StateSet) Hash() uint64 {
	if s.hashUpdated {
		return s.hashCode
	}
	s.hashCode = uint64(len(s.inner))
	for key := range s.inner {
		s.hashCode += uint64(uint32(mix32(key)))
	}
	s.hashUpdated = true
	return s.hashCode
}

func (s *StateSet) Equals(other Hashable) bool {
	o, ok := other.(*StateSet)
	if !ok || o == nil || len(o.inner) != len(s.inner) {
		return false
	}
	for key := range s.inner {
		if _, ok := o.inner[key]; !ok {
			return false
		}
	}
	return true
}

func (s *StateSet) Values() []int {
	keys := make([]int, 0, len(s.inner))
	for k := range s.inner {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *StateSet) Size() int {
	return len(s.inner)
}

func (s *StateSet) Contains(v int) bool {
	_, ok := s.inner[v]
	return ok
}

// Add inserts v and reports whether it was new.
func (s *StateSet) Add(v int) bool {
	if _, ok := s.inner[v]; ok {
		return false
	}
	s.inner[v] = struct{}{}
	s.hashUpdated = false
	return true
}

// Freeze returns an immutable copy tagged with tag.
func (s *StateSet) Freeze(tag int) *FrozenIntSet {
	return NewFrozenIntSet(s.Values(), tag)
}
