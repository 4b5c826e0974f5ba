package usecase

import "context"

// Executor runs turn tasks in the background. Submit must not block and
// must not run the task on the caller's goroutine.
type Executor interface {
	Submit(task func(ctx context.Context) error) error
}
