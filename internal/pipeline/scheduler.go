package pipeline

import (
	"context"
	"sync"
	"time"
)

// Runner is anything that performs a full pipeline run.
type Runner interface {
	Run(ctx context.Context) Report
}

// Scheduler runs the pipeline on an interval and on demand. Runs never
// overlap: a trigger that arrives mid-run is coalesced into one follow-up.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	trigger  chan struct{}

	mu   sync.Mutex
	last *Report
}

// NewScheduler creates a Scheduler. If interval is <= 0 it defaults to 30m.
func NewScheduler(r Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{runner: r, interval: interval, trigger: make(chan struct{}, 1)}
}

// Run blocks until ctx is cancelled, running once at start.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		rep := s.runner.Run(ctx)
		s.mu.Lock()
		s.last = &rep
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
	}
}

// Trigger asks for a run as soon as the current one (if any) finishes.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Last returns the most recent report, or false before the first run ends.
func (s *Scheduler) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}
