package pool

import (
	"sort"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

// selectAndLock picks the highest-ranked available credential and marks it
// in-flight in the same critical section, so two concurrent lookups can
// never hold the same credential.
func (m *Manager) selectAndLock(provider domain.Provider) *domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	var available []*domain.Credential
	for _, c := range m.creds {
		if c.Provider != provider || !c.Available() || m.inFlight[c.ID] {
			continue
		}
		available = append(available, c)
	}
	if len(available) == 0 {
		return nil
	}

	var chosen *domain.Credential
	switch m.cfg.Strategy {
	case StrategyLeastUsed:
		sort.SliceStable(available, func(i, j int) bool {
			return available[i].UsedToday < available[j].UsedToday
		})
		chosen = available[0]
	case StrategyRoundRobin:
		chosen = available[m.rrIndex%len(available)]
		m.rrIndex++
	default: // priority
		sort.SliceStable(available, func(i, j int) bool {
			return available[i].Priority < available[j].Priority
		})
		chosen = available[0]
	}

	m.inFlight[chosen.ID] = true
	return chosen
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

// Size reports the number of credentials currently in the pool.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds)
}
