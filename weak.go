package bisimulation

import (
	"cmp"
	"slices"
)

// weakData refines DTMCs up to silent steps, that is, steps that stay inside the
// current block. A state whose whole mass stays in its block is silent. The other
// states are compared by their probability into the splitter conditioned on leaving
// their block. A silent state joins the class of exit states it surely reaches;
// silent states that may reach several classes, or may stay silent forever, are
// told apart by the set of classes they can reach and by divergence.
type weakData struct {
	forward *SparseMatrix
	splitterValues
	silent []float64
	keys   []int
	eps    float64
}

func newWeakData(forward, backward *SparseMatrix, n int, eps float64) *weakData {
	return &weakData{
		forward:        forward,
		splitterValues: newSplitterValues(backward, n),
		silent:         make([]float64, n),
		keys:           make([]int, n),
		eps:            eps,
	}
}

func (d *weakData) initialize(p *Partition) {
	for s := range d.silent {
		d.silent[s] = d.silentProbability(p, s)
	}
}

// silentProbability is the probability of s to stay in its block.
func (d *weakData) silentProbability(p *Partition, s int) float64 {
	columns, values := d.forward.Row(s)
	sum := 0.0
	for i, t := range columns {
		if p.stateBlocks[t] == p.stateBlocks[s] {
			sum += values[i]
		}
	}
	return sum
}

func (d *weakData) isSilent(s int) bool {
	return d.silent[s] >= 1-d.eps
}

// conditional is the probability of s into the splitter given that s leaves its block.
func (d *weakData) conditional(s int) float64 {
	return d.values[s] / (1 - d.silent[s])
}

func (d *weakData) includesSplitter() bool {
	return false
}

func (d *weakData) prepare(p *Partition, splitter *Block) []*Block {
	return d.collect(p, splitter, d.includesSplitter())
}

func (d *weakData) sign(p *Partition, b *Block) {
	members := p.States(b)
	byConditional := func(s, t int) int {
		return compareValues(d.conditional(s), d.conditional(t), d.eps)
	}

	exits := make([]int, 0, len(members))
	for _, s := range members {
		if !d.isSilent(s) {
			exits = append(exits, s)
		}
	}
	slices.SortStableFunc(exits, func(s, t int) int {
		return cmp.Compare(d.conditional(s), d.conditional(t))
	})
	// A class starts at the first exit state that differs from the start of the
	// previous class.
	classes, start := 0, 0
	for i, s := range exits {
		if byConditional(exits[start], s) != 0 {
			start = i
			classes++
		}
		d.keys[s] = classes
	}
	if len(exits) > 0 {
		classes++
	}
	if len(exits) == len(members) {
		return
	}

	// reach[s] holds the classes silent state s reaches through silent states of b.
	reach := make(map[int]*StateSet)
	var stack []int
	for c, begin := 0, 0; c < classes; c++ {
		end := begin
		for end < len(exits) && d.keys[exits[end]] == c {
			end++
		}
		stack = append(stack[:0], exits[begin:end]...)
		begin = end
		for len(stack) > 0 {
			t := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			predecessors, weights := d.backward.Row(t)
			for i, s := range predecessors {
				if weights[i] <= 0 || p.stateBlocks[s] != b.id || !d.isSilent(s) {
					continue
				}
				r, ok := reach[s]
				if !ok {
					r = NewStateSet()
					reach[s] = r
				}
				if r.Add(c) {
					stack = append(stack, s)
				}
			}
		}
	}

	// A silent state diverges if it can reach a silent state that reaches no class.
	divergent := make(map[int]bool)
	stack = stack[:0]
	for _, s := range members {
		if _, ok := reach[s]; d.isSilent(s) && !ok {
			divergent[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		predecessors, weights := d.backward.Row(t)
		for i, s := range predecessors {
			if weights[i] <= 0 || p.stateBlocks[s] != b.id || !d.isSilent(s) || divergent[s] {
				continue
			}
			divergent[s] = true
			stack = append(stack, s)
		}
	}

	labels := NewHashMap[int](WithCapacity(len(members) - len(exits)))
	for _, s := range members {
		if !d.isSilent(s) {
			continue
		}
		r, ok := reach[s]
		if !ok {
			r = NewStateSet()
		}
		if !divergent[s] && r.Size() == 1 {
			d.keys[s] = r.Values()[0]
			continue
		}
		tag := 0
		if divergent[s] {
			tag = 1
		}
		d.keys[s], _ = labels.LoadOrStore(r.Freeze(tag), classes+labels.Size())
	}
}

func (d *weakData) order(s, t int) int {
	return d.compare(s, t)
}

func (d *weakData) compare(s, t int) int {
	return cmp.Compare(d.keys[s], d.keys[t])
}

// split refreshes the silent probabilities of the pieces. States that stopped being
// silent now need comparing against every block they reach, so those are queued.
func (d *weakData) split(p *Partition, pieces []*Block, q *splitterQueue) {
	for _, piece := range pieces {
		for _, s := range p.States(piece) {
			d.silent[s] = d.silentProbability(p, s)
		}
	}
	for _, piece := range pieces {
		for _, s := range p.States(piece) {
			successors, _ := d.forward.Row(s)
			for _, t := range successors {
				q.push(p.BlockOf(t))
			}
		}
	}
}

func (d *weakData) release() {
	d.reset()
}
