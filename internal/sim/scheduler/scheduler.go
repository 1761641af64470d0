// Package scheduler is a tick-driven callback scheduler. It is not safe for concurrent use;
// all calls must come from the goroutine that drives Tick.
package scheduler

import "gemcraft.ai/internal/gems/host"

type task struct {
	h         host.TaskHandle
	next      uint64
	interval  int // 0 for one-shot
	fn        func()
	cancelled bool
}

type Scheduler struct {
	now   uint64
	seq   uint64
	tasks map[host.TaskHandle]*task
	order []*task // registration order
}

func New() *Scheduler {
	return &Scheduler{tasks: map[host.TaskHandle]*task{}}
}

// Now returns the number of ticks run so far.
func (s *Scheduler) Now() uint64 { return s.now }

// Pending returns the number of live (not yet finished or cancelled) tasks.
func (s *Scheduler) Pending() int { return len(s.tasks) }

func (s *Scheduler) RunRepeating(delay, interval int, fn func()) host.TaskHandle {
	if interval < 1 {
		interval = 1
	}
	return s.add(delay, interval, fn)
}

func (s *Scheduler) RunOnce(delay int, fn func()) host.TaskHandle {
	return s.add(delay, 0, fn)
}

func (s *Scheduler) add(delay, interval int, fn func()) host.TaskHandle {
	if delay < 1 {
		delay = 1
	}
	s.seq++
	t := &task{
		h:        host.TaskHandle(s.seq),
		next:     s.now + uint64(delay),
		interval: interval,
		fn:       fn,
	}
	s.tasks[t.h] = t
	s.order = append(s.order, t)
	return t.h
}

// Cancel stops h. It is idempotent and takes effect immediately, including when called
// from inside a running callback.
func (s *Scheduler) Cancel(h host.TaskHandle) {
	t := s.tasks[h]
	if t == nil {
		return
	}
	t.cancelled = true
	delete(s.tasks, h)
}

// Tick advances one tick and runs every due callback in registration order. Callbacks
// registered while ticking are first eligible on a later tick.
func (s *Scheduler) Tick() {
	s.now++
	n := len(s.order)
	for i := 0; i < n; i++ {
		t := s.order[i]
		if t.cancelled || t.next > s.now {
			continue
		}
		t.fn()
		if t.cancelled {
			continue
		}
		if t.interval > 0 {
			t.next = s.now + uint64(t.interval)
			continue
		}
		t.cancelled = true
		delete(s.tasks, t.h)
	}

	live := s.order[:0]
	for _, t := range s.order {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.order); i++ {
		s.order[i] = nil
	}
	s.order = live
}

// Advance runs n ticks.
func (s *Scheduler) Advance(n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}
