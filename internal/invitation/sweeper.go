package invitation

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// Sweeper periodically expires overdue invitations
type Sweeper struct {
	cron     *cron.Cron
	resolver *Resolver
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

// NewSweeper schedules SweepExpired on a six-field cron spec (seconds first)
func NewSweeper(resolver *Resolver, schedule string, log *zap.Logger) (*Sweeper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		cron:     cron.New(),
		resolver: resolver,
		timeout:  time.Minute,
		log:      log,
	}
	if err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return nil, err
	}
	return s, nil
}

// Run performs one sweep. It does nothing once Stop has been called.
func (s *Sweeper) Run() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.resolver.SweepExpired(ctx); err != nil {
		s.log.Error("invitation sweep failed", zap.Error(err))
	}
}

// Start begins running sweeps in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts future sweeps and waits for one in progress to finish
func (s *Sweeper) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.running.Wait()
}
