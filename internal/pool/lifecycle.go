package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

// canned probe used to verify a secret before admitting it to the pool
const (
	probeKeyword = "test query"
	probeDomain  = "example.com"
	probeCountry = "US"
)

type AddParams struct {
	Provider       domain.Provider
	Secret         string
	SearchEngineID string
	DailyLimit     int
	MonthlyLimit   int
}

type UpdateParams struct {
	DailyLimit   *int
	MonthlyLimit *int
	Priority     *int
}

// Add validates, probes and appends a user-supplied credential. A duplicate
// of another user-added credential is rejected; a duplicate of a configured
// one is allowed with a warning.
func (m *Manager) Add(ctx context.Context, params AddParams) (*domain.Credential, error) {
	now := time.Now().UTC()
	if params.DailyLimit <= 0 {
		params.DailyLimit = 100
	}

	cred := &domain.Credential{
		ID:             uuid.New().String(),
		Provider:       params.Provider,
		Secret:         strings.TrimSpace(params.Secret),
		SearchEngineID: params.SearchEngineID,
		DailyLimit:     params.DailyLimit,
		MonthlyLimit:   params.MonthlyLimit,
		Status:         domain.StatusActive,
		SuccessRate:    100,
		UserAdded:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, c := range m.creds {
		if c.Secret != cred.Secret {
			continue
		}
		if c.UserAdded {
			m.mu.Unlock()
			return nil, domain.ErrDuplicateCredential
		}
		m.logger.Warn("secret duplicates a configured credential", zap.String("id", c.ID))
	}
	cred.Priority = len(m.creds) + 1
	m.mu.Unlock()

	if err := m.TestKey(ctx, params.Provider, cred.Secret, cred.SearchEngineID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.creds = append(m.creds, cred)
	m.mu.Unlock()

	if err := m.repo.Upsert(ctx, cred); err != nil {
		m.logger.Warn("persist added credential", zap.String("id", cred.ID), zap.Error(err))
	}

	m.logger.Info("credential added",
		zap.String("id", cred.ID),
		zap.String("provider", string(cred.Provider)),
		zap.Int("priority", cred.Priority),
	)
	return cred, nil
}

// TestKey runs the canned probe without persisting anything. A rate-limited
// probe is reported as such, not as an invalid key.
func (m *Manager) TestKey(ctx context.Context, provider domain.Provider, secret, engineID string) error {
	opts := domain.SearchOptions{
		Domain:   probeDomain,
		Country:  probeCountry,
		Provider: provider,
	}
	opts.Normalize()

	_, _, err := m.execute(ctx, "", secret, engineID, provider, probeKeyword, opts)
	if err == nil {
		return nil
	}

	kind := domain.KindOf(err)
	if kind == domain.KindRateLimited {
		return domain.NewLookupError(domain.KindRateLimited,
			"provider rate-limited the probe, key may still be valid", err)
	}
	return domain.NewLookupError(kind, "credential probe failed", err)
}

func (m *Manager) Update(ctx context.Context, id string, params UpdateParams) (*domain.Credential, error) {
	m.mu.Lock()
	cred := m.byIDLocked(id)
	if cred == nil {
		m.mu.Unlock()
		return nil, domain.ErrCredentialNotFound
	}

	if params.DailyLimit != nil {
		if *params.DailyLimit < 1 {
			m.mu.Unlock()
			return nil, domain.ErrInvalidDailyLimit
		}
		cred.DailyLimit = *params.DailyLimit
	}
	if params.MonthlyLimit != nil {
		if *params.MonthlyLimit < 0 {
			m.mu.Unlock()
			return nil, domain.ErrInvalidMonthlyLimit
		}
		cred.MonthlyLimit = *params.MonthlyLimit
	}
	if params.Priority != nil {
		cred.Priority = *params.Priority
	}
	cred.UpdatedAt = time.Now().UTC()

	// limit changes can re-open or exhaust the credential
	if cred.Status == domain.StatusExhausted && !cred.ExhaustedByCounters() {
		cred.Status = domain.StatusActive
	} else if cred.Status == domain.StatusActive && cred.ExhaustedByCounters() {
		cred.Status = domain.StatusExhausted
	}

	snapshot := *cred
	m.mu.Unlock()

	if err := m.repo.Upsert(ctx, &snapshot); err != nil {
		return nil, fmt.Errorf("persist credential update: %w", err)
	}
	return &snapshot, nil
}

func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := -1
	for i, c := range m.creds {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return domain.ErrCredentialNotFound
	}
	m.creds = append(m.creds[:idx], m.creds[idx+1:]...)
	delete(m.inFlight, id)
	if t, ok := m.pauseTimers[id]; ok {
		t.Stop()
		delete(m.pauseTimers, id)
	}
	m.mu.Unlock()

	if err := m.repo.Delete(ctx, id); err != nil && err != domain.ErrCredentialNotFound {
		return fmt.Errorf("delete credential: %w", err)
	}

	m.logger.Info("credential removed", zap.String("id", id))
	return nil
}

// Credentials returns a snapshot of the pool, secrets redacted.
func (m *Manager) Credentials() []domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Credential, 0, len(m.creds))
	for _, c := range m.creds {
		cp := *c
		cp.Secret = redact(cp.Secret)
		out = append(out, cp)
	}
	return out
}

func redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
