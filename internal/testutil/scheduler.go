package testutil

import (
	"sync"
	"time"
)

// ManualScheduler never fires on its own; tests call Fire or FireAll.
type ManualScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[int]func())}
}

func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.jobs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.jobs, id)
			s.mu.Unlock()
		})
	}
}

// Active reports how many jobs are still scheduled.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// FireAll runs every scheduled job once, synchronously.
func (s *ManualScheduler) FireAll() int {
	s.mu.Lock()
	jobs := make([]func(), 0, len(s.jobs))
	for _, fn := range s.jobs {
		jobs = append(jobs, fn)
	}
	s.mu.Unlock()
	for _, fn := range jobs {
		fn()
	}
	return len(jobs)
}

// Capture returns the currently scheduled jobs, so a test can fire one
// after it has been stopped.
func (s *ManualScheduler) Capture() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(), 0, len(s.jobs))
	for _, fn := range s.jobs {
		out = append(out, fn)
	}
	return out
}
