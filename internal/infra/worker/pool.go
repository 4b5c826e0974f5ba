// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"converse-relay/internal/domain"
	"converse-relay/internal/infra/logging"
)

// Task is a unit of background work.
type Task = func(ctx context.Context) error

// Pool is a fixed set of workers reading a bounded queue. Submit never blocks.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	jobs    chan Task
	n       int
	started bool
	stopped bool
	log     *zerolog.Logger
}

func NewPool(workers, queue int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{jobs: make(chan Task, queue), n: workers, log: log}
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				p.run(ctx, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Str("panic", fmt.Sprint(r)).Msg("worker task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("worker task error")
	}
}

// Stop refuses new tasks, lets queued ones finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", domain.ErrInvalidArgument)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return domain.ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated; the caller records the rejection
		return domain.ErrPoolSaturated
	}
}
