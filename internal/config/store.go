package config

import (
	"log/slog"
	"sync"
	"time"
)

// Rescheduler moves an already-scheduled recurring job to a new interval.
type Rescheduler interface {
	Reschedule(id string, interval time.Duration) bool
}

// Store holds the live AppConfig. Readers get the current snapshot and keep
// using it for the duration of their tick; updates validate a full replacement
// config and swap the reference, so a tick never mixes old and new values.
type Store struct {
	mu    sync.RWMutex
	cfg   *AppConfig
	sched Rescheduler
}

func NewStore(cfg *AppConfig) *Store {
	return &Store{cfg: cfg}
}

// SetScheduler wires the scheduler used to apply interval changes. Called once
// during bootstrap, before any update can arrive.
func (s *Store) SetScheduler(sched Rescheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched = sched
}

// Current returns the live config. The returned value must be treated as
// immutable; build updates from Clone.
func (s *Store) Current() *AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update validates next, swaps it in, persists the monitor sections to the
// side file and reschedules any monitor whose interval changed. A validation
// failure mutates nothing.
func (s *Store) Update(next *AppConfig) (*AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := next.Validate(); err != nil {
		return nil, err
	}

	old := s.cfg
	s.cfg = next

	if err := SaveMonitors(next, next.StateDir); err != nil {
		slog.Error("failed to save monitor sections", "error", err)
	} else {
		slog.Info("config updated, monitor sections saved", "state_dir", next.StateDir)
	}

	if s.sched != nil {
		s.rescheduleChanged(old, next)
	}
	return next, nil
}

func (s *Store) rescheduleChanged(old, next *AppConfig) {
	jobs := []struct {
		id       string
		old, new int
	}{
		{JobPriceMonitor, old.PriceMonitor.IntervalSeconds, next.PriceMonitor.IntervalSeconds},
		{JobPositionChanges, old.PositionChanges.IntervalSeconds, next.PositionChanges.IntervalSeconds},
		{JobAccountTracker, old.AccountTracker.IntervalSeconds, next.AccountTracker.IntervalSeconds},
	}
	for _, j := range jobs {
		if j.old == j.new {
			continue
		}
		if j.new <= 0 {
			slog.Warn("interval change disables job only after restart", "job", j.id, "interval_seconds", j.new)
			continue
		}
		if s.sched.Reschedule(j.id, time.Duration(j.new)*time.Second) {
			slog.Info("job rescheduled", "job", j.id, "old_seconds", j.old, "new_seconds", j.new)
		}
	}
}
