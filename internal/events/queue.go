package events

import "sync"

// Queue is an unbounded, thread-safe FIFO of events. Any number of
// goroutines may Push; a single consumer drains it. Push never blocks on
// the consumer.
type Queue struct {
	mu      sync.Mutex
	entries []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{entries: make([]Event, 0, 64)}
}

// Push appends an event to the back of the queue.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// TryPop removes and returns the event at the front of the queue.
// Returns (zero value, false) if the queue is empty.
func (q *Queue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Event{}, false
	}

	e := q.entries[0]
	q.entries[0] = Event{}
	q.entries = q.entries[1:]
	return e, true
}

// Drain removes and returns every queued event in FIFO order.
// Returns nil if the queue was already empty.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	result := q.entries
	q.entries = make([]Event, 0, cap(result)/2+1)
	return result
}

// Len returns the current number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
