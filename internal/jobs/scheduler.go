// Package jobs runs the background maintenance work: periodic eviction of
// expired cache entries from both tiers.
package jobs

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"brandpulse/internal/config"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	sweeper *SweeperJob

	sweepTicker *time.Ticker
}

func NewScheduler(cfg *config.Config, sweeper *SweeperJob, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		sweeper: sweeper,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(context.Context) error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	s.isRunning = true

	interval := s.cfg.CacheSweepInterval()
	s.logger.Info("Starting cache sweep job", slog.Duration("interval", interval))
	s.sweepTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.sweepTicker.C:
				s.executeJobSafely("cache_sweeper", s.sweeper.Run)
			case <-s.ctx.Done():
				s.logger.Info("Cache sweep job stopped")
				return
			}
		}
	}()

	return nil
}

// Stop halts all background jobs
func (s *Scheduler) Stop() {
	if !s.isRunning {
		return
	}
	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}
	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}
