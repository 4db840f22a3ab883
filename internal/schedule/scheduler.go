package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs each registered task on its own recurring interval. A task's
// next run is never started while the previous one is still in flight, and a
// failing or panicking run never stops the loop.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

type job struct {
	id   string
	task Task

	mu       sync.Mutex
	interval time.Duration

	// resetCh wakes an idle timer so a reschedule takes effect without
	// waiting out the old interval.
	resetCh chan struct{}
}

func (j *job) Interval() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.interval
}

func (j *job) setInterval(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.interval = d
}

func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*job),
	}
}

// Add registers a recurring task. An interval <= 0 disables the job: it is
// not registered at all. Add must be called before Start.
func (s *Scheduler) Add(id string, task Task, interval time.Duration) {
	if interval <= 0 {
		slog.Info("job disabled", "job", id)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &job{
		id:       id,
		task:     task,
		interval: interval,
		resetCh:  make(chan struct{}, 1),
	}
}

// Start launches one goroutine per registered job. The first run of each job
// happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, j)
	}
	slog.Info("scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()

	timer := time.NewTimer(j.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(j.Interval())
		case <-timer.C:
			s.runTask(ctx, j)
			timer.Reset(j.Interval())
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "job", j.id, "panic", r)
		}
	}()
	if err := j.task.Run(ctx); err != nil {
		slog.Error("task failed", "job", j.id, "task", j.task.Name(), "error", err)
	}
}

// Reschedule moves a registered job to a new interval, effective immediately
// when the job is idle and from its next run otherwise. Unknown job ids and
// non-positive intervals report false.
func (s *Scheduler) Reschedule(id string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.setInterval(interval)
	select {
	case j.resetCh <- struct{}{}:
	default:
	}
	return true
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
