package bisimulation

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// Partition divides the states [0, n) into blocks. States of a block occupy a
// contiguous range of the state array, so splitting a block only reorders its own
// range.
type Partition struct {
	// states[position] = state
	states []int
	// positions[state] = position
	positions []int
	// stateBlocks[state] = block id
	stateBlocks []int
	blocks      []*Block
}

// NewPartition returns the partition of n states into a single block, or into no
// block when n is zero.
func NewPartition(n int) *Partition {
	p := &Partition{
		states:      make([]int, n),
		positions:   make([]int, n),
		stateBlocks: make([]int, n),
	}
	for s := 0; s < n; s++ {
		p.states[s] = s
		p.positions[s] = s
	}
	if n > 0 {
		p.blocks = append(p.blocks, newBlock(0, 0, n))
	}
	return p
}

func (p *Partition) NumStates() int {
	return len(p.states)
}

// Size returns the number of blocks.
func (p *Partition) Size() int {
	return len(p.blocks)
}

// Blocks returns the blocks indexed by id. The slice is shared with the partition.
func (p *Partition) Blocks() []*Block {
	return p.blocks
}

func (p *Partition) Block(id int) *Block {
	return p.blocks[id]
}

func (p *Partition) BlockOf(state int) *Block {
	return p.blocks[p.stateBlocks[state]]
}

func (p *Partition) BlockID(state int) int {
	return p.stateBlocks[state]
}

func (p *Partition) Position(state int) int {
	return p.positions[state]
}

// States returns the states of b in partition order. The slice aliases the
// partition and is only valid until the next split.
func (p *Partition) States(b *Block) []int {
	return p.states[b.begin:b.end:b.end]
}

// SortedStates returns a fresh slice of the states of b in ascending order.
func (p *Partition) SortedStates(b *Block) []int {
	states := slices.Clone(p.States(b))
	slices.Sort(states)
	return states
}

// SplitBlock stably sorts the states of b by cmp and cuts the range wherever two
// neighbours differ. b keeps the first class; every other class becomes a new block
// with the next free id, passed to onNew in ascending order. It reports whether b
// was split.
func (p *Partition) SplitBlock(b *Block, cmp func(s, t int) int, onNew func(*Block)) bool {
	return p.SplitBlockWithin(b, cmp, cmp, onNew)
}

// SplitBlockWithin is SplitBlock for tolerant comparisons. The states are sorted by
// order, which must be a strict weak ordering, and a new class starts at every state
// that same reports as different from the first state of the current class, so close
// values never chain far apart states together.
func (p *Partition) SplitBlockWithin(b *Block, order, same func(s, t int) int, onNew func(*Block)) bool {
	if b.Size() < 2 {
		return false
	}
	members := p.states[b.begin:b.end]
	slices.SortStableFunc(members, order)
	for i := b.begin; i < b.end; i++ {
		p.positions[p.states[i]] = i
	}

	var cuts []int
	first := p.states[b.begin]
	for i := b.begin + 1; i < b.end; i++ {
		if same(first, p.states[i]) != 0 {
			cuts = append(cuts, i)
			first = p.states[i]
		}
	}
	if len(cuts) == 0 {
		return false
	}

	end := b.end
	b.end = cuts[0]
	for k, begin := range cuts {
		next := end
		if k+1 < len(cuts) {
			next = cuts[k+1]
		}
		nb := p.addBlock(begin, next, b)
		if onNew != nil {
			onNew(nb)
		}
	}
	return true
}

func (p *Partition) addBlock(begin, end int, parent *Block) *Block {
	nb := newBlock(len(p.blocks), begin, end)
	nb.absorbing = parent.absorbing
	for i := begin; i < end; i++ {
		s := p.states[i]
		p.stateBlocks[s] = nb.id
		if s == parent.representative {
			nb.representative = s
			parent.representative = -1
		}
	}
	p.blocks = append(p.blocks, nb)
	return nb
}

// Split applies SplitBlock to every block present when it is called.
func (p *Partition) Split(cmp func(s, t int) int, onNew func(*Block)) bool {
	split := false
	for _, b := range p.blocks[:len(p.blocks):len(p.blocks)] {
		if p.SplitBlock(b, cmp, onNew) {
			split = true
		}
	}
	return split
}

// SplitStates separates the members of set from the other states in every block.
// Members move to the new blocks.
func (p *Partition) SplitStates(set *bitset.BitSet) bool {
	return p.Split(func(s, t int) int {
		return boolCmp(set.Test(uint(s)), set.Test(uint(t)))
	}, nil)
}

// SortBlock orders the states of b ascending.
func (p *Partition) SortBlock(b *Block) {
	members := p.states[b.begin:b.end]
	slices.Sort(members)
	for i := b.begin; i < b.end; i++ {
		p.positions[p.states[i]] = i
	}
}

// Check verifies that the blocks cover every state exactly once and that the
// position and block indices agree with the state array.
func (p *Partition) Check() error {
	n := len(p.states)
	seen := bitset.New(uint(n))
	covered := 0
	for id, b := range p.blocks {
		if b.id != id {
			return fmt.Errorf("block at index %d has id %d: %w", id, b.id, ErrInvalidPartition)
		}
		if b.Size() <= 0 {
			return fmt.Errorf("block %d is empty: %w", id, ErrInvalidPartition)
		}
		if b.begin < 0 || b.end > n {
			return fmt.Errorf("block %d range [%d, %d) outside [0, %d): %w", id, b.begin, b.end, n, ErrInvalidPartition)
		}
		for i := b.begin; i < b.end; i++ {
			s := p.states[i]
			if seen.Test(uint(s)) {
				return fmt.Errorf("state %d appears twice: %w", s, ErrInvalidPartition)
			}
			seen.Set(uint(s))
			if p.positions[s] != i {
				return fmt.Errorf("state %d at position %d indexed at %d: %w", s, i, p.positions[s], ErrInvalidPartition)
			}
			if p.stateBlocks[s] != id {
				return fmt.Errorf("state %d in block %d indexed in block %d: %w", s, id, p.stateBlocks[s], ErrInvalidPartition)
			}
		}
		covered += b.Size()
	}
	if covered != n {
		return fmt.Errorf("blocks cover %d of %d states: %w", covered, n, ErrInvalidPartition)
	}
	return nil
}

// Extract returns the states of every block in ascending order, indexed by block id.
func (p *Partition) Extract() [][]int {
	result := make([][]int, len(p.blocks))
	for id, b := range p.blocks {
		result[id] = p.SortedStates(b)
	}
	return result
}

func (p *Partition) String() string {
	return fmt.Sprintf("Partition{states: %d, blocks: %d}", len(p.states), len(p.blocks))
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
