package engine

import (
	"container/heap"
	"errors"
)

// ErrEmptyQueue is returned when popping an empty queue.
var ErrEmptyQueue = errors.New("event queue is empty")

// Less orders events by (minute, priority).
func Less(a, b Event) bool {
	if a.Minute() != b.Minute() {
		return a.Minute() < b.Minute()
	}
	return a.Kind() < b.Kind()
}

type eventHeap []Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return Less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a min-heap of events. Events with equal keys come out in no
// particular order.
type Queue struct {
	items eventHeap
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Len() int { return q.items.Len() }

func (q *Queue) Push(e Event) {
	heap.Push(&q.items, e)
}

// Pop removes and returns the smallest event.
func (q *Queue) Pop() (Event, error) {
	if q.items.Len() == 0 {
		return nil, ErrEmptyQueue
	}
	return heap.Pop(&q.items).(Event), nil
}

// Peek returns the smallest event without removing it.
func (q *Queue) Peek() (Event, bool) {
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Count returns how many queued events are of kind k.
func (q *Queue) Count(k Kind) int {
	n := 0
	for _, e := range q.items {
		if e.Kind() == k {
			n++
		}
	}
	return n
}
