package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"converse-relay/internal/infra/logging"
)

// Sweeper drops records settled before cutoff and reports how many went.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Scheduler periodically evicts results older than the retention window.
type Scheduler struct {
	interval  time.Duration
	retention time.Duration
	sweeper   Sweeper
	log       *zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler sweeps every interval (default 1 minute), evicting records
// settled more than retention ago.
func NewScheduler(interval, retention time.Duration, sweeper Sweeper, log *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{
		interval:  interval,
		retention: retention,
		sweeper:   sweeper,
		log:       log,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins the loop in a background goroutine. Calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Dur("retention", s.retention).Msg("result sweeper started")
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce performs a single sweep bounded to 30 seconds.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.sweeper.Sweep(runCtx, s.now().Add(-s.retention))
	if err != nil {
		s.log.Error().Err(err).Msg("result sweep failed")
		return 0
	}
	if n > 0 {
		s.log.Debug().Int("evicted", n).Msg("result sweep")
	}
	return n
}

// Stop cancels the loop and waits for it to exit. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
	s.log.Info().Msg("result sweeper stopped")
}
