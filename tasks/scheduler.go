package tasks

import (
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Scheduler runs named units of work after a delay. At most one task per id is pending at a time.
type Scheduler struct {
	name   string
	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
	closed bool
}

func NewScheduler(name string) *Scheduler {
	return &Scheduler{
		name:   name,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs fn after delay. It returns false if a task with the same id is already pending.
func (s *Scheduler) Schedule(id string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("[%s] Scheduler closed, dropping task %s", s.name, id)
		return false
	}
	if _, pending := s.timers[id]; pending {
		log.Printf("[%s] Task %s is already scheduled, skipping", s.name, id)
		return false
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		current := s.timers[id] == t
		if current {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		// Cancelled after the timer fired but before it got the lock.
		if !current {
			return
		}
		s.run(id, fn)
	})
	s.timers[id] = t
	return true
}

// ScheduleAt runs fn at the given time, or immediately if it has passed.
func (s *Scheduler) ScheduleAt(id string, at time.Time, fn func()) bool {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	return s.Schedule(id, delay, fn)
}

func (s *Scheduler) run(id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] Task %s panicked: %v\n%s", s.name, id, r, debug.Stack())
		}
	}()
	fn()
}

func (s *Scheduler) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Cancel stops a pending task. It returns false if the task was not pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	if t.Stop() {
		s.wg.Done()
	}
	return true
}

// Close cancels every pending task and waits for running ones to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	dropped := 0
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
			dropped++
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	if dropped > 0 {
		log.Printf("[%s] Dropped %d pending tasks on shutdown", s.name, dropped)
	}
	s.wg.Wait()
}
