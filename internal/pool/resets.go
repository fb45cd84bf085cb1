package pool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

// ResetDailyAll zeroes daily counters, clears error counts and reactivates
// everything that is not paused.
func (m *Manager) ResetDailyAll(ctx context.Context) error {
	m.mu.Lock()
	for _, c := range m.creds {
		c.UsedToday = 0
		c.ErrorCount = 0
		if c.Status != domain.StatusPaused {
			c.Status = domain.StatusActive
		}
		c.UpdatedAt = time.Now().UTC()
	}
	m.mu.Unlock()

	if err := m.repo.ResetDailyAll(ctx); err != nil {
		return fmt.Errorf("persist daily reset: %w", err)
	}

	m.logger.Info("daily counters reset")
	return nil
}

// ResetMonthlyAll zeroes monthly counters and reopens exhausted credentials
// whose daily counter is still under limit.
func (m *Manager) ResetMonthlyAll(ctx context.Context) error {
	now := time.Now().UTC()

	m.mu.Lock()
	for _, c := range m.creds {
		c.UsedThisMonth = 0
		c.MonthlyResetAt = now
		if c.Status == domain.StatusExhausted && c.UsedToday < c.DailyLimit {
			c.Status = domain.StatusActive
		}
		c.UpdatedAt = now
	}
	m.mu.Unlock()

	if err := m.repo.ResetMonthlyAll(ctx, now); err != nil {
		return fmt.Errorf("persist monthly reset: %w", err)
	}

	m.logger.Info("monthly counters reset")
	return nil
}

// CheckMonthlyIfStale triggers a monthly reset when any stored reset stamp
// belongs to a prior calendar month. Covers resets missed during down-time.
func (m *Manager) CheckMonthlyIfStale(ctx context.Context) error {
	now := time.Now().UTC()

	m.mu.Lock()
	stale := false
	for _, c := range m.creds {
		if c.MonthlyResetAt.IsZero() {
			continue
		}
		y, mo, _ := c.MonthlyResetAt.UTC().Date()
		if y < now.Year() || (y == now.Year() && mo < now.Month()) {
			stale = true
			break
		}
	}
	m.mu.Unlock()

	if !stale {
		return nil
	}

	m.logger.Info("stale monthly reset detected", zap.Time("now", now))
	return m.ResetMonthlyAll(ctx)
}
