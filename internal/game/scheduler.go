package game

import (
	"sync"
	"time"
)

// Scheduler runs a callback once after a delay. Callbacks are fire-and-forget:
// there is no handle to cancel them.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration)
}

// TimerScheduler runs callbacks on the runtime's timer goroutines.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(fn func(), delay time.Duration) {
	time.AfterFunc(delay, fn)
}

var defaultScheduler Scheduler = TimerScheduler{}

// DefaultScheduler returns the process-wide scheduler.
func DefaultScheduler() Scheduler {
	return defaultScheduler
}

type scheduledCall struct {
	fn    func()
	delay time.Duration
}

// ManualScheduler queues callbacks until they are fired explicitly. It lets
// tests and replays drive poll deadlines deterministically.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []scheduledCall
}

func (s *ManualScheduler) Schedule(fn func(), delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, scheduledCall{fn: fn, delay: delay})
}

// Pending returns the number of callbacks not yet fired.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Delays returns the requested delays of the pending callbacks, oldest first.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delays := make([]time.Duration, 0, len(s.pending))
	for _, c := range s.pending {
		delays = append(delays, c.delay)
	}
	return delays
}

// FireNext runs the oldest pending callback and reports whether there was one.
// The callback runs without the scheduler lock held, so it may schedule again.
func (s *ManualScheduler) FireNext() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	next.fn()
	return true
}
