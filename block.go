package bisimulation

import "fmt"

// Block is a contiguous range [begin, end) of a Partition's state array. Its id is
// stable for the lifetime of the partition and becomes the quotient state.
type Block struct {
	id         int
	begin, end int

	// queued marks blocks waiting in the splitter queue; heapIndex is their position.
	queued    bool
	heapIndex int

	// absorbing blocks are never refined.
	absorbing bool
	// representative is the state the quotient copies, or -1 for the default choice.
	representative int
}

func newBlock(id, begin, end int) *Block {
	return &Block{id: id, begin: begin, end: end, heapIndex: -1, representative: -1}
}

func (b *Block) ID() int {
	return b.id
}

func (b *Block) Begin() int {
	return b.begin
}

func (b *Block) End() int {
	return b.end
}

func (b *Block) Size() int {
	return b.end - b.begin
}

// Queued reports whether the block waits to be used as a splitter.
func (b *Block) Queued() bool {
	return b.queued
}

func (b *Block) Absorbing() bool {
	return b.absorbing
}

// Representative returns the recorded representative state, or -1.
func (b *Block) Representative() int {
	return b.representative
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{id: %d, range: [%d, %d), queued: %t, absorbing: %t}",
		b.id, b.begin, b.end, b.queued, b.absorbing)
}
