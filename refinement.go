package bisimulation

import (
	"sync"
)

// refiner drives a partition to the coarsest bisimulation refining it.
type refiner struct {
	p       *Partition
	data    blockData
	queue   *splitterQueue
	workers int

	iterations int
	splits     int

	// observe, if set, sees the partition after every splitter round.
	observe func(p *Partition)
}

func newRefiner(p *Partition, data blockData, workers int) *refiner {
	return &refiner{p: p, data: data, queue: newSplitterQueue(p.Size()), workers: workers}
}

// run queues every block and refines until no block is queued.
func (r *refiner) run() {
	for _, b := range r.p.blocks {
		r.queue.push(b)
	}
	for r.queue.Len() > 0 {
		r.iterations++
		r.refineWith(r.queue.pop())
		if r.observe != nil {
			r.observe(r.p)
		}
	}
}

func (r *refiner) refineWith(splitter *Block) {
	affected := r.data.prepare(r.p, splitter)
	candidates := affected[:0]
	for _, b := range affected {
		if !b.absorbing && b.Size() > 1 {
			candidates = append(candidates, b)
		}
	}

	r.sign(candidates)

	var pieces []*Block
	for _, b := range candidates {
		pieces = append(pieces[:0], b)
		if !r.p.SplitBlockWithin(b, r.data.order, r.data.compare, func(nb *Block) { pieces = append(pieces, nb) }) {
			continue
		}
		r.splits += len(pieces) - 1
		for _, piece := range pieces {
			r.queue.update(piece)
		}
		r.data.split(r.p, pieces, r.queue)
	}
	r.data.release()
}

// sign computes the signatures of blocks, in parallel when configured to.
func (r *refiner) sign(blocks []*Block) {
	if r.workers <= 1 || len(blocks) < 2 {
		for _, b := range blocks {
			r.data.sign(r.p, b)
		}
		return
	}

	next := make(chan *Block)
	var wg sync.WaitGroup
	for w := 0; w < min(r.workers, len(blocks)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range next {
				r.data.sign(r.p, b)
			}
		}()
	}
	for _, b := range blocks {
		next <- b
	}
	close(next)
	wg.Wait()
}
