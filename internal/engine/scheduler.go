package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HoldExpirer marks legal holds past their expiry as expired
type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// ScheduleConfig describes the periodic cleanup
type ScheduleConfig struct {
	// Cron is a standard five field cron expression. Empty disables scheduling.
	Cron   string
	Scopes []string
	DryRun bool
}

// Scheduler runs cleanup for a set of scopes on a cron schedule
type Scheduler struct {
	engine  *Engine
	source  retention.Source
	expirer HoldExpirer
	config  ScheduleConfig
	logger  *zap.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. expirer may be nil.
func NewScheduler(engine *Engine, source retention.Source, expirer HoldExpirer, config ScheduleConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:  engine,
		source:  source,
		expirer: expirer,
		config:  config,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the cleanup and returns immediately. The scheduler stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Cron == "" {
		s.logger.Info("cleanup schedule not configured, skipping scheduler")
		return nil
	}
	if len(s.config.Scopes) == 0 {
		return fmt.Errorf("schedule has no scopes")
	}

	if _, err := cron.ParseStandard(s.config.Cron); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Cron, err)
	}

	if _, err := s.cron.AddFunc(s.config.Cron, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("cleanup scheduler started",
		zap.String("schedule", s.config.Cron),
		zap.Strings("scopes", s.config.Scopes),
		zap.Bool("dry_run", s.config.DryRun))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce runs one cleanup cycle over every configured scope and returns
// the completed runs. Failed scopes are logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) []*retention.CleanupRun {
	if s.expirer != nil {
		if _, err := s.expirer.ExpireHolds(ctx); err != nil {
			s.logger.Warn("failed to expire legal holds", zap.Error(err))
		}
	}

	runs := make([]*retention.CleanupRun, 0, len(s.config.Scopes))
	for _, scope := range s.config.Scopes {
		if ctx.Err() != nil {
			break
		}

		policies, err := s.source.Policies(ctx, scope)
		if err != nil {
			s.logger.Error("failed to load policies", zap.String("scope", scope), zap.Error(err))
			continue
		}

		run, err := s.engine.RunCleanup(ctx, scope, policies, s.config.DryRun)
		if err != nil {
			s.logger.Error("scheduled cleanup failed", zap.String("scope", scope), zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

// Stop stops the scheduler and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("cleanup scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled cycle, or nil when not scheduled
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
