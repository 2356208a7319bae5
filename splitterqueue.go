package bisimulation

import "container/heap"

// splitterQueue hands out queued blocks smallest first, ties broken by id.
type splitterQueue struct {
	blocks blockHeap
}

func newSplitterQueue(capacity int) *splitterQueue {
	return &splitterQueue{blocks: make(blockHeap, 0, capacity)}
}

func (q *splitterQueue) Len() int {
	return len(q.blocks)
}

// push queues b unless it is queued already.
func (q *splitterQueue) push(b *Block) {
	if b.queued {
		return
	}
	b.queued = true
	heap.Push(&q.blocks, b)
}

func (q *splitterQueue) pop() *Block {
	b := heap.Pop(&q.blocks).(*Block)
	b.queued = false
	return b
}

// update restores the heap order after b changed size, queueing it if needed.
func (q *splitterQueue) update(b *Block) {
	if !b.queued {
		q.push(b)
		return
	}
	heap.Fix(&q.blocks, b.heapIndex)
}

var _ heap.Interface = &blockHeap{}

type blockHeap []*Block

func (h blockHeap) Len() int {
	return len(h)
}

func (h blockHeap) Less(i, j int) bool {
	if h[i].Size() != h[j].Size() {
		return h[i].Size() < h[j].Size()
	}
	return h[i].id < h[j].id
}

func (h blockHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *blockHeap) Push(x any) {
	b := x.(*Block)
	b.heapIndex = len(*h)
	*h = append(*h, b)
}

func (h *blockHeap) Pop() any {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	b.heapIndex = -1
	*h = old[:n-1]
	return b
}
