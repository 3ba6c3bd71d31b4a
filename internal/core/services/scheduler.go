package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/robfig/cron/v3"
)

// QueueDriver is the slice of the job manager the scheduler needs.
type QueueDriver interface {
	Process(ctx context.Context)
	Enqueue(ctx context.Context, t domain.JobType, payload json.RawMessage, scheduledFor *time.Time) (domain.Job, error)
}

// Scheduler drives the processing loop forward independently of UI-originated
// enqueues, so jobs whose scheduled time has newly elapsed get picked up. It
// holds no queue state of its own; every decision is delegated to the job
// manager. Recurring entries (cron expressions that enqueue a job each time
// they fire) piggyback on the same lifecycle.
type Scheduler struct {
	logger   *slog.Logger
	driver   QueueDriver
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	cron   *cron.Cron
}

func NewScheduler(logger *slog.Logger, driver QueueDriver, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		logger:   logger,
		driver:   driver,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start triggers one immediate processing pass, then arms the periodic
// ticker and the cron entries. Idempotent: calling Start while running has
// no additional effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("scheduler started", "interval", s.interval)
	go s.driver.Process(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.driver.Process(ctx)
			}
		}
	}()

	s.cron.Start()
}

// Stop cancels the ticker and the cron entries. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// AddRecurring registers a standard 5-field cron expression that enqueues a
// job of the given type and payload each time it fires.
func (s *Scheduler) AddRecurring(spec string, t domain.JobType, payload json.RawMessage) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.driver.Enqueue(context.Background(), t, payload, nil); err != nil {
			s.logger.Error("recurring enqueue failed", "type", t, "error", err)
			return
		}
		s.logger.Info("recurring job enqueued", "type", t, "spec", spec)
	})
	return err
}
