package relay

import (
	"sync"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// MaxQueueSize is the default number of undelivered events a Client retains
const MaxQueueSize = 100

// Queue is a bounded FIFO of undelivered events. When full, pushing evicts
// the oldest entry. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	items   []event.Event
	head    int
	count   int
	dropped uint64
}

// NewQueue creates a queue holding at most size events
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = MaxQueueSize
	}
	return &Queue{items: make([]event.Event, size)}
}

// Push appends ev at the tail. It reports whether an older event was evicted.
func (q *Queue) Push(ev event.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushLocked(ev)
}

func (q *Queue) pushLocked(ev event.Event) bool {
	size := len(q.items)
	if q.count == size {
		q.items[q.head] = ev
		q.head = (q.head + 1) % size
		q.dropped++
		return true
	}
	q.items[(q.head+q.count)%size] = ev
	q.count++
	return false
}

// Drain returns the queued events oldest first and empties the queue
func (q *Queue) Drain() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked()
}

func (q *Queue) drainLocked() []event.Event {
	size := len(q.items)
	out := make([]event.Event, q.count)
	for i := range out {
		idx := (q.head + i) % size
		out[i] = q.items[idx]
		q.items[idx] = event.Event{}
	}
	q.head = 0
	q.count = 0
	return out
}

// Snapshot returns a copy of the queued events oldest first, leaving the
// queue untouched
func (q *Queue) Snapshot() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := len(q.items)
	out := make([]event.Event, q.count)
	for i := range out {
		out[i] = q.items[(q.head+i)%size]
	}
	return out
}

// Requeue puts events back ahead of anything queued since they were drained,
// keeping their order. Overflow evicts from the oldest end.
func (q *Queue) Requeue(events []event.Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	newer := q.drainLocked()
	for _, ev := range events {
		q.pushLocked(ev)
	}
	for _, ev := range newer {
		q.pushLocked(ev)
	}
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Capacity returns the maximum number of queued events
func (q *Queue) Capacity() int {
	return len(q.items)
}

// Dropped returns how many events have been evicted since creation
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
