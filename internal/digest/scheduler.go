package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/store"
)

// SchedulerConfig pins the four trigger times. Hours are UTC.
type SchedulerConfig struct {
	// DailyHour is the hour the daily digest fires (default 9).
	DailyHour int
	// WeeklyWeekday is the day the weekly digest fires (default Monday).
	WeeklyWeekday time.Weekday
	// CleanupHour is the hour snapshot retention pruning fires (default 3).
	CleanupHour int
	// SnapshotRetention is how long snapshots are kept (default 30 days).
	SnapshotRetention time.Duration
}

// DefaultSchedulerConfig returns the documented trigger defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DailyHour:         9,
		WeeklyWeekday:     time.Monday,
		CleanupHour:       3,
		SnapshotRetention: 30 * 24 * time.Hour,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.DailyHour < 0 || c.DailyHour > 23 {
		c.DailyHour = d.DailyHour
	}
	if c.CleanupHour < 0 || c.CleanupHour > 23 {
		c.CleanupHour = d.CleanupHour
	}
	if c.SnapshotRetention <= 0 {
		c.SnapshotRetention = d.SnapshotRetention
	}
	return c
}

// Scheduler drives the aggregator on its fixed cadence: hourly at the top
// of the hour, daily and weekly at fixed hours, plus the snapshot
// retention cleanup. Tiers are independent; two triggers due at the same
// instant both run.
type Scheduler struct {
	cfg        SchedulerConfig
	aggregator *Aggregator
	snapshots  store.SnapshotStore
	logger     logging.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler wires the aggregator and snapshot store to the cron
// triggers.
func NewScheduler(cfg SchedulerConfig, aggregator *Aggregator, snapshots store.SnapshotStore, logger logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// Start registers all triggers and starts the cron loop. It returns
// immediately; jobs run on cron's goroutines until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC))

	entries := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{"0 * * * *", "digest-hourly", func(ctx context.Context) error {
			return s.aggregator.RunDigest(ctx, model.FrequencyHourly)
		}},
		{fmt.Sprintf("0 %d * * *", s.cfg.DailyHour), "digest-daily", func(ctx context.Context) error {
			return s.aggregator.RunDigest(ctx, model.FrequencyDaily)
		}},
		{fmt.Sprintf("0 %d * * %d", s.cfg.DailyHour, int(s.cfg.WeeklyWeekday)), "digest-weekly", func(ctx context.Context) error {
			return s.aggregator.RunDigest(ctx, model.FrequencyWeekly)
		}},
		{fmt.Sprintf("0 %d * * *", s.cfg.CleanupHour), "cleanup", s.runCleanup},
	}
	for _, e := range entries {
		e := e
		if _, err := c.AddFunc(e.spec, func() {
			if err := e.run(runCtx); err != nil {
				s.logger.Error("scheduled job failed", logging.F("job", e.name), logging.Err(err))
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("register %s trigger: %w", e.name, err)
		}
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	s.logger.Info("digest scheduler started",
		logging.F("daily_hour", s.cfg.DailyHour),
		logging.F("weekly_weekday", s.cfg.WeeklyWeekday.String()),
		logging.F("cleanup_hour", s.cfg.CleanupHour))
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.cron = nil
	s.cancel = nil
	s.logger.Info("digest scheduler stopped")
}

// runCleanup prunes snapshots past the retention window. Notification
// and rate-limit bookkeeping expiry is the storage layer's own concern.
func (s *Scheduler) runCleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.SnapshotRetention)
	removed, err := s.snapshots.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned snapshots", logging.F("removed", removed))
	}
	return nil
}
