package queue

import "container/heap"

// pendingHeap orders tasks by priority descending, then by insertion
// sequence ascending (FIFO for ties), satisfying spec.md 4.9's ordering
// guarantee without relying on wall-clock CreatedAt comparisons, which can
// collide at high enqueue rates.
type pendingHeap []*Task

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*pendingHeap)(nil)
