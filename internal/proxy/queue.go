package proxy

import (
	"container/heap"
	"sync"
)

// Request is one unit of pending proxy work.
type Request struct {
	Source      string
	Settings    Settings
	Priority    int
	fingerprint string
	record      *Record
	seq         uint64
}

// jobHeap orders requests by priority, highest first, then by arrival.
type jobHeap []*Request

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Request)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// queue is the pending-work list, guarded by its own lock.
type queue struct {
	mu   sync.Mutex
	jobs jobHeap
	next uint64
}

func newQueue() *queue {
	return &queue{}
}

func (q *queue) push(req *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req.seq = q.next
	q.next++
	heap.Push(&q.jobs, req)
}

// pop removes the most urgent request, or returns nil when empty.
func (q *queue) pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	return heap.Pop(&q.jobs).(*Request)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
