package schedule

import "context"

// Task is one unit of recurring work driven by the Scheduler.
type Task interface {
	Run(ctx context.Context) error
	Name() string
}
