package pool

import (
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

// Stats computes a point-in-time snapshot of the pool.
func (m *Manager) Stats() domain.PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.PoolStats{
		Total:       len(m.creds),
		Credentials: make([]domain.CredentialHealth, 0, len(m.creds)),
	}

	errored := 0
	for _, c := range m.creds {
		switch c.Status {
		case domain.StatusActive:
			stats.Active++
		case domain.StatusExhausted:
			stats.Exhausted++
		case domain.StatusPaused:
			stats.Paused++
		case domain.StatusError:
			errored++
		}

		stats.UsedToday += c.UsedToday
		stats.DailyCapacity += c.DailyLimit
		stats.UsedThisMonth += c.UsedThisMonth
		stats.MonthlyCapacity += c.MonthlyLimit

		stats.Credentials = append(stats.Credentials, domain.CredentialHealth{
			ID:          c.ID,
			Provider:    c.Provider,
			Status:      c.Status,
			Health:      c.Health(),
			Priority:    c.Priority,
			UsedToday:   c.UsedToday,
			DailyLimit:  c.DailyLimit,
			SuccessRate: c.SuccessRate,
		})
	}

	if stats.DailyCapacity > 0 {
		stats.UsagePercent = float64(stats.UsedToday) / float64(stats.DailyCapacity) * 100
	}
	stats.ExhaustsIn = estimateExhaustion(stats.UsedToday, stats.DailyCapacity, time.Now())

	m.metrics.SetPoolGauges(stats.Active, stats.Exhausted, stats.Paused, errored, stats.UsagePercent)
	return stats
}

// estimateExhaustion extrapolates the burn rate since midnight over the
// remaining daily capacity. Zero when there is nothing to extrapolate from.
func estimateExhaustion(used, capacity int, now time.Time) time.Duration {
	if used == 0 || capacity == 0 || used >= capacity {
		return 0
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	hours := now.Sub(midnight).Hours()
	if hours <= 0 {
		return 0
	}

	perHour := float64(used) / hours
	if perHour <= 0 {
		return 0
	}

	remaining := float64(capacity - used)
	return time.Duration(remaining / perHour * float64(time.Hour))
}
