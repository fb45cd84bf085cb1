// Package scheduler fires the periodic maintenance jobs: daily and monthly
// counter resets, the hourly staleness check and weekly record cleanup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/repository"
)

// Pool is the slice of the pool manager the scheduler drives.
type Pool interface {
	ResetDailyAll(ctx context.Context) error
	ResetMonthlyAll(ctx context.Context) error
	CheckMonthlyIfStale(ctx context.Context) error
}

type Config struct {
	RetentionDays int
}

type Scheduler struct {
	pool     Pool
	rankings repository.RankingRepository
	logger   *zap.Logger
	cfg      Config

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(pool Pool, rankings repository.RankingRepository, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pool:     pool,
		rankings: rankings,
		logger:   logger,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
}

// Start launches one goroutine per job. Job errors are logged and swallowed;
// a failing job never kills its schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.run(ctx, "daily_reset", nextMidnight, func(jobCtx context.Context) error {
		return s.pool.ResetDailyAll(jobCtx)
	})
	s.run(ctx, "monthly_reset", nextMonthStart, func(jobCtx context.Context) error {
		return s.pool.ResetMonthlyAll(jobCtx)
	})
	s.run(ctx, "monthly_stale_check", nextHour, func(jobCtx context.Context) error {
		return s.pool.CheckMonthlyIfStale(jobCtx)
	})
	s.run(ctx, "record_cleanup", nextWeeklyCleanup, func(jobCtx context.Context) error {
		cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
		removed, err := s.rankings.DeleteOlderThan(jobCtx, cutoff)
		if err != nil {
			return err
		}
		s.logger.Info("stale ranking records removed", zap.Int64("count", removed))
		return nil
	})
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, next func(time.Time) time.Time, job func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			fireAt := next(time.Now())
			timer := time.NewTimer(time.Until(fireAt))

			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stop:
				timer.Stop()
				return
			case <-timer.C:
			}

			jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := job(jobCtx); err != nil {
				s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
			cancel()
		}
	}()
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func nextMonthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())
}

func nextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}

// nextWeeklyCleanup is 02:00 on the coming Sunday.
func nextWeeklyCleanup(now time.Time) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, 2, 0, 0, 0, now.Location())
	daysAhead := (7 - int(now.Weekday())) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
