// Package delay provides a single-slot deferred task. Posting again while a
// run is pending reschedules it; Cancel drops it. There is never more than
// one pending run.
package delay

import (
	"sync"
	"time"
)

// Queue defers a single callback. The callback runs on a timer goroutine;
// owners that need serialization should hand a func that forwards into
// their event loop.
type Queue struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	fire    func()
}

// NewQueue returns a Queue that invokes fire when a posted delay elapses.
func NewQueue(fire func()) *Queue {
	return &Queue{fire: fire}
}

// Post schedules the callback to run after d, replacing any pending run.
func (q *Queue) Post(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.gen++
	gen := q.gen
	q.pending = true

	if q.timer != nil {
		q.timer.Stop()
	}

	q.timer = time.AfterFunc(d, func() {
		q.mu.Lock()
		live := gen == q.gen
		if live {
			q.pending = false
		}
		q.mu.Unlock()

		// A Post or Cancel that raced the timer wins.
		if live {
			q.fire()
		}
	})
}

// Cancel drops the pending run, if any. Safe to call repeatedly.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.gen++
	q.pending = false

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// Pending reports whether a run is scheduled and has not fired yet.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}
