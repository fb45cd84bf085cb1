package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

type MockCredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]*domain.Credential

	UpsertUsageCalls int
	FailWith         error
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{creds: make(map[string]*domain.Credential)}
}

func (m *MockCredentialRepository) LoadAll(ctx context.Context) ([]domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	out := make([]domain.Credential, 0, len(m.creds))
	for _, c := range m.creds {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	cp := *cred
	m.creds[cred.ID] = &cp
	return nil
}

func (m *MockCredentialRepository) UpsertUsage(ctx context.Context, id string, patch UsagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertUsageCalls++
	if m.FailWith != nil {
		return m.FailWith
	}
	c, ok := m.creds[id]
	if !ok {
		return domain.ErrCredentialNotFound
	}
	c.UsedToday = patch.UsedToday
	c.UsedThisMonth = patch.UsedThisMonth
	c.ErrorCount = patch.ErrorCount
	c.Status = patch.Status
	c.SuccessRate = patch.SuccessRate
	c.LastUsed = patch.LastUsed
	return nil
}

func (m *MockCredentialRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[id]; !ok {
		return domain.ErrCredentialNotFound
	}
	delete(m.creds, id)
	return nil
}

func (m *MockCredentialRepository) ResetDailyAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		c.UsedToday = 0
		c.ErrorCount = 0
		if c.Status != domain.StatusPaused {
			c.Status = domain.StatusActive
		}
	}
	return nil
}

func (m *MockCredentialRepository) ResetMonthlyAll(ctx context.Context, resetAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		c.UsedThisMonth = 0
		c.MonthlyResetAt = resetAt
		if c.Status == domain.StatusExhausted && c.UsedToday < c.DailyLimit {
			c.Status = domain.StatusActive
		}
	}
	return nil
}

type MockRankingRepository struct {
	mu      sync.RWMutex
	Records []domain.RankingRecord

	FailWith error
}

func NewMockRankingRepository() *MockRankingRepository {
	return &MockRankingRepository{}
}

func (m *MockRankingRepository) Create(ctx context.Context, rec *domain.RankingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Records = append(m.Records, *rec)
	return nil
}

func (m *MockRankingRepository) ListByDomain(ctx context.Context, target string, limit int) ([]domain.RankingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.RankingRecord
	for i := len(m.Records) - 1; i >= 0; i-- {
		if m.Records[i].Domain != target {
			continue
		}
		out = append(out, m.Records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockRankingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.Records[:0]
	var removed int64
	for _, r := range m.Records {
		if r.CheckedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.Records = kept
	return removed, nil
}

func (m *MockRankingRepository) AggregateByCountry(ctx context.Context, target string) ([]CountryAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCountry := make(map[string]*CountryAggregate)
	posSum := make(map[string]int)
	for _, r := range m.Records {
		if r.Domain != target {
			continue
		}
		agg, ok := byCountry[r.Country]
		if !ok {
			agg = &CountryAggregate{Country: r.Country}
			byCountry[r.Country] = agg
		}
		agg.Lookups++
		if r.Found && r.Position != nil {
			agg.Found++
			posSum[r.Country] += *r.Position
		}
	}

	out := make([]CountryAggregate, 0, len(byCountry))
	for country, agg := range byCountry {
		if agg.Found > 0 {
			agg.AvgPosition = float64(posSum[country]) / float64(agg.Found)
		}
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out, nil
}
