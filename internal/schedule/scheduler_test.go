package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name string
	runs atomic.Int64
	err  error
}

func (t *countingTask) Run(ctx context.Context) error {
	t.runs.Add(1)
	return t.err
}

func (t *countingTask) Name() string { return t.name }

func waitForRuns(t *testing.T, task *countingTask, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.runs.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s ran %d times, want at least %d", task.name, task.runs.Load(), want)
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	s := New()
	task := &countingTask{name: "tick"}
	s.Add("tick", task, 10*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()

	waitForRuns(t, task, 3)
}

func TestSchedulerSurvivesTaskErrors(t *testing.T) {
	s := New()
	task := &countingTask{name: "failing", err: errors.New("boom")}
	s.Add("failing", task, 10*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()

	waitForRuns(t, task, 3)
}

func TestSchedulerDisabledJobNeverRuns(t *testing.T) {
	s := New()
	task := &countingTask{name: "disabled"}
	s.Add("disabled", task, 0)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(0), task.runs.Load())
	assert.False(t, s.Reschedule("disabled", time.Second))
}

func TestSchedulerReschedule(t *testing.T) {
	s := New()
	task := &countingTask{name: "slow"}
	s.Add("slow", task, time.Hour)

	s.Start(context.Background())
	defer s.Stop()

	require.True(t, s.Reschedule("slow", 10*time.Millisecond))
	waitForRuns(t, task, 2)
}

func TestSchedulerRescheduleUnknown(t *testing.T) {
	s := New()
	assert.False(t, s.Reschedule("nope", time.Second))
	assert.False(t, s.Reschedule("nope", 0))
}

func TestSchedulerStopWaitsForJobs(t *testing.T) {
	s := New()
	task := &countingTask{name: "tick"}
	s.Add("tick", task, 10*time.Millisecond)

	s.Start(context.Background())
	waitForRuns(t, task, 1)
	s.Stop()

	after := task.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, task.runs.Load(), "no runs after Stop returns")
}
