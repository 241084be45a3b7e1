// Package display drives the local preview window. Everything that touches
// the window runs on one goroutine through a cooperative Scheduler, the
// same way a GUI toolkit's event loop runs timer callbacks.
package display

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type task struct {
	due time.Time
	seq uint64
	fn  func()
}

// taskQueue orders tasks by due time, then by insertion
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q taskQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x interface{}) { *q = append(*q, x.(*task)) }
func (q *taskQueue) Pop() interface{} {
	old := *q
	t := old[len(old)-1]
	*q = old[:len(old)-1]
	return t
}

// Scheduler runs callbacks one at a time on the goroutine that calls Run.
// A callback that wants to run periodically schedules itself again before
// returning. After may be called from any goroutine.
type Scheduler struct {
	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// After schedules fn to run once, no earlier than d from now
func (s *Scheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, &task{due: time.Now().Add(d), seq: s.seq, fn: fn})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of scheduled callbacks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stop makes Run return after the current callback
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
}

// next pops the earliest task if it is due, otherwise reports how long to
// wait. ok is false when the queue is empty.
func (s *Scheduler) next() (fn func(), wait time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, 0, false
	}
	if wait := time.Until(s.queue[0].due); wait > 0 {
		return nil, wait, true
	}
	return heap.Pop(&s.queue).(*task).fn, 0, true
}

// Run executes callbacks as they become due until ctx is done or Stop is
// called
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		default:
		}

		fn, wait, ok := s.next()
		if fn != nil {
			fn()
			continue
		}

		var (
			t     *time.Timer
			timer <-chan time.Time
		)
		if ok {
			t = time.NewTimer(wait)
			timer = t.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-s.wake:
		case <-timer:
		}
		if t != nil {
			t.Stop()
		}
	}
}
