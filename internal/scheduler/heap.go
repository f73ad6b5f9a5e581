package scheduler

import "time"

type job struct {
	owner *Service
	id    string
	name  string
	work  Work

	period time.Duration // 0 => one-shot
	first  time.Time     // scheduledAt + delay
	next   time.Time     // first + fires*period
	fires  int64

	state JobState
	runs  uint64
	index int // position in the heap; -1 when not queued
}

// jobHeap is a min-heap on next fire time (container/heap.Interface).
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].next.Before(h[j].next)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
