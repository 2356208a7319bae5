package bisimulation

import (
	"cmp"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// blockData computes and compares state signatures for one bisimulation variant. The
// refinement loop is the same for every variant; only this capability differs.
type blockData interface {
	// initialize runs once, after the initial partition is final.
	initialize(p *Partition)
	// includesSplitter reports whether the splitter's own block may be split by it.
	includesSplitter() bool
	// prepare computes the splitter-dependent values and returns the blocks that
	// have a predecessor of the splitter, ascending by id.
	prepare(p *Partition, splitter *Block) []*Block
	// sign computes the signatures of the states of b. Calls for different blocks
	// may run concurrently.
	sign(p *Partition, b *Block)
	// order sorts the states of a block by signature, exactly.
	order(s, t int) int
	// compare reports, within tolerance, whether two states share a signature and
	// otherwise agrees with order.
	compare(s, t int) int
	// split runs after b was split into pieces, b first.
	split(p *Partition, pieces []*Block, q *splitterQueue)
	// release drops the values computed by prepare.
	release()
}

// compareValues orders two weights, treating values within eps as equal.
func compareValues(a, b, eps float64) int {
	if math.Abs(a-b) <= eps {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

// splitterValues accumulates, per predecessor state, the weight into the current
// splitter.
type splitterValues struct {
	backward *SparseMatrix
	values   []float64
	seen     *bitset.BitSet
	touched  []int

	marked   *bitset.BitSet
	blockIDs []int
}

func newSplitterValues(backward *SparseMatrix, n int) splitterValues {
	return splitterValues{
		backward: backward,
		values:   make([]float64, n),
		seen:     bitset.New(uint(n)),
		marked:   bitset.New(uint(n)),
	}
}

// collect sums the weights of every transition into the splitter and returns the
// blocks of the predecessors, ascending by id. The splitter's block is left out
// unless includeSplitter.
func (v *splitterValues) collect(p *Partition, splitter *Block, includeSplitter bool) []*Block {
	ids := v.blockIDs[:0]
	for _, t := range p.States(splitter) {
		predecessors, weights := v.backward.Row(t)
		for i, s := range predecessors {
			if !v.seen.Test(uint(s)) {
				v.seen.Set(uint(s))
				v.touched = append(v.touched, s)
			}
			v.values[s] += weights[i]
			if id := p.stateBlocks[s]; !v.marked.Test(uint(id)) {
				v.marked.Set(uint(id))
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	blocks := make([]*Block, 0, len(ids))
	for _, id := range ids {
		v.marked.Clear(uint(id))
		if id != splitter.id || includeSplitter {
			blocks = append(blocks, p.blocks[id])
		}
	}
	v.blockIDs = ids
	return blocks
}

func (v *splitterValues) reset() {
	for _, s := range v.touched {
		v.values[s] = 0
		v.seen.Clear(uint(s))
	}
	v.touched = v.touched[:0]
}

// deterministicData refines DTMCs and CTMCs by the probability or rate into the
// splitter.
type deterministicData struct {
	splitterValues
	eps float64
}

func newDeterministicData(backward *SparseMatrix, n int, eps float64) *deterministicData {
	return &deterministicData{splitterValues: newSplitterValues(backward, n), eps: eps}
}

func (d *deterministicData) initialize(*Partition) {}

func (d *deterministicData) includesSplitter() bool {
	return true
}

func (d *deterministicData) prepare(p *Partition, splitter *Block) []*Block {
	return d.collect(p, splitter, d.includesSplitter())
}

func (d *deterministicData) sign(*Partition, *Block) {}

func (d *deterministicData) order(s, t int) int {
	return cmp.Compare(d.values[s], d.values[t])
}

func (d *deterministicData) compare(s, t int) int {
	return compareValues(d.values[s], d.values[t], d.eps)
}

func (d *deterministicData) split(*Partition, []*Block, *splitterQueue) {}

func (d *deterministicData) release() {
	d.reset()
}

// lumpingData refines CTMCs up to transitions inside a block: a block is never
// split by itself, so rates between its members do not matter.
type lumpingData struct {
	deterministicData
}

func newLumpingData(backward *SparseMatrix, n int, eps float64) *lumpingData {
	return &lumpingData{deterministicData: *newDeterministicData(backward, n, eps)}
}

func (d *lumpingData) includesSplitter() bool {
	return false
}

func (d *lumpingData) prepare(p *Partition, splitter *Block) []*Block {
	return d.collect(p, splitter, d.includesSplitter())
}

// blockWeight is the weight a choice assigns to one block.
type blockWeight struct {
	block  int
	weight float64
}

// distribution is a choice lifted to blocks, ascending by block.
type distribution []blockWeight

func compareDistributions(a, b distribution, eps float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := cmp.Compare(a[i].block, b[i].block); c != 0 {
			return c
		}
		if c := compareValues(a[i].weight, b[i].weight, eps); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// liftRow maps row r of transitions to the blocks of p. buf is reused for the result.
func liftRow(p *Partition, transitions *SparseMatrix, r int, buf distribution) distribution {
	buf = buf[:0]
	columns, values := transitions.Row(r)
	for i, t := range columns {
		buf = append(buf, blockWeight{block: p.stateBlocks[t], weight: values[i]})
	}
	slices.SortFunc(buf, func(a, b blockWeight) int { return cmp.Compare(a.block, b.block) })
	upto := 0
	for _, bw := range buf {
		if upto > 0 && buf[upto-1].block == bw.block {
			buf[upto-1].weight += bw.weight
			continue
		}
		buf[upto] = bw
		upto++
	}
	return buf[:upto]
}

// choiceSet returns the distinct lifted choices of state, sorted.
func choiceSet(p *Partition, transitions *SparseMatrix, state int, eps float64) []distribution {
	begin, end := transitions.RowGroup(state)
	choices := make([]distribution, 0, end-begin)
	for r := begin; r < end; r++ {
		choices = append(choices, liftRow(p, transitions, r, nil))
	}
	slices.SortFunc(choices, func(a, b distribution) int { return compareDistributions(a, b, 0) })
	distinct := choices[:0]
	for _, c := range choices {
		if len(distinct) == 0 || compareDistributions(distinct[len(distinct)-1], c, eps) != 0 {
			distinct = append(distinct, c)
		}
	}
	return distinct
}

// nondeterministicData refines MDPs by the set of choices of a state, each lifted to
// the current blocks.
type nondeterministicData struct {
	transitions *SparseMatrix
	splitterValues
	signatures [][]distribution
	eps        float64
}

func newNondeterministicData(transitions, backward *SparseMatrix, n int, eps float64) *nondeterministicData {
	return &nondeterministicData{
		transitions:    transitions,
		splitterValues: newSplitterValues(backward, n),
		signatures:     make([][]distribution, n),
		eps:            eps,
	}
}

func (d *nondeterministicData) initialize(*Partition) {}

func (d *nondeterministicData) includesSplitter() bool {
	return true
}

func (d *nondeterministicData) prepare(p *Partition, splitter *Block) []*Block {
	return d.collect(p, splitter, d.includesSplitter())
}

func (d *nondeterministicData) sign(p *Partition, b *Block) {
	for _, s := range p.States(b) {
		d.signatures[s] = choiceSet(p, d.transitions, s, d.eps)
	}
}

func (d *nondeterministicData) order(s, t int) int {
	return compareChoiceSets(d.signatures[s], d.signatures[t], 0)
}

func (d *nondeterministicData) compare(s, t int) int {
	return compareChoiceSets(d.signatures[s], d.signatures[t], d.eps)
}

func compareChoiceSets(a, b []distribution, eps float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareDistributions(a[i], b[i], eps); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func (d *nondeterministicData) split(*Partition, []*Block, *splitterQueue) {}

func (d *nondeterministicData) release() {
	d.reset()
}
