package main

import (
	"container/heap"
	"time"
)

// Task is a cancellable scheduled callback. Tasks only run inside
// Scheduler.Advance, on the simulation goroutine.
type Task struct {
	due       time.Time
	interval  time.Duration
	seq       uint64
	fn        func()
	index     int
	cancelled bool
	done      bool
}

// Cancel prevents any further run of the task
func (t *Task) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Active reports whether the task will still run
func (t *Task) Active() bool {
	return t != nil && !t.cancelled && !t.done
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *taskQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Scheduler runs timers against the simulation clock
type Scheduler struct {
	now   time.Time
	seq   uint64
	queue taskQueue
}

// NewScheduler creates a scheduler whose clock starts at start
func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now returns the simulation clock
func (s *Scheduler) Now() time.Time {
	return s.now
}

// After runs fn once, d after the current simulation time
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	return s.schedule(d, 0, fn)
}

// Every runs fn every d until cancelled
func (s *Scheduler) Every(d time.Duration, fn func()) *Task {
	if d <= 0 {
		d = time.Millisecond
	}
	return s.schedule(d, d, fn)
}

func (s *Scheduler) schedule(d, interval time.Duration, fn func()) *Task {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &Task{due: s.now.Add(d), interval: interval, seq: s.seq, fn: fn}
	heap.Push(&s.queue, t)
	return t
}

// Advance moves the clock to now, running every due task in due order
func (s *Scheduler) Advance(now time.Time) {
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.due.After(now) {
			break
		}
		heap.Pop(&s.queue)
		if next.cancelled {
			continue
		}
		if next.due.After(s.now) {
			s.now = next.due
		}
		if next.interval > 0 {
			s.seq++
			next.seq = s.seq
			next.due = next.due.Add(next.interval)
			heap.Push(&s.queue, next)
		} else {
			next.done = true
		}
		next.fn()
	}
	if now.After(s.now) {
		s.now = now
	}
}

// AdvanceBy moves the clock forward by d
func (s *Scheduler) AdvanceBy(d time.Duration) {
	s.Advance(s.now.Add(d))
}

// Pending returns the number of live tasks
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// timerSet holds the tasks one entity owns so they can be cancelled together
type timerSet struct {
	tasks []*Task
}

func (ts *timerSet) add(t *Task) *Task {
	kept := ts.tasks[:0]
	for _, cur := range ts.tasks {
		if cur.Active() {
			kept = append(kept, cur)
		}
	}
	ts.tasks = append(kept, t)
	return t
}

func (ts *timerSet) cancelAll() {
	for _, t := range ts.tasks {
		t.Cancel()
	}
	ts.tasks = nil
}
