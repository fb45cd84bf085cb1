// Package pool owns the credential pool: selection, lookup execution with
// retry and quota semantics, lifecycle operations and counter resets.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/metrics"
	"github.com/kitbuilder587/rankwatch/internal/ratelimit"
	"github.com/kitbuilder587/rankwatch/internal/repository"
	"github.com/kitbuilder587/rankwatch/internal/serp"
)

type Strategy string

const (
	StrategyPriority   Strategy = "priority"
	StrategyLeastUsed  Strategy = "least_used"
	StrategyRoundRobin Strategy = "round_robin"
)

// Seed is a configured credential from the environment, numbered 1..N.
type Seed struct {
	Number       int
	Provider     domain.Provider
	Secret       string
	EngineID     string
	DailyLimit   int
	MonthlyLimit int
}

type Config struct {
	Seeds          []Seed
	Strategy       Strategy
	RequestTimeout time.Duration
	MaxRetries     int
	RateLimitPause time.Duration
}

type Deps struct {
	Credentials repository.CredentialRepository
	Rankings    repository.RankingRepository
	Clients     map[domain.Provider]serp.Client
	Limiter     *ratelimit.Limiter
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Config      Config
}

type usageUpsert struct {
	id    string
	patch repository.UsagePatch
}

// Manager is the process-wide pool coordinator. All credential state is
// guarded by mu; the in-flight set makes select+lock one atomic step.
type Manager struct {
	repo     repository.CredentialRepository
	rankings repository.RankingRepository
	clients  map[domain.Provider]serp.Client
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config

	mu          sync.Mutex
	creds       []*domain.Credential
	inFlight    map[string]bool
	rrIndex     int
	pauseTimers map[string]*time.Timer

	upserts chan usageUpsert
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(deps Deps) *Manager {
	cfg := deps.Config
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPriority
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimitPause == 0 {
		cfg.RateLimitPause = 60 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		repo:        deps.Credentials,
		rankings:    deps.Rankings,
		clients:     deps.Clients,
		limiter:     deps.Limiter,
		logger:      logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
		inFlight:    make(map[string]bool),
		pauseTimers: make(map[string]*time.Timer),
		upserts:     make(chan usageUpsert, 256),
		done:        make(chan struct{}),
	}
}

// Init merges configured seeds with stored records and starts the durability
// worker. Duplicate secrets are skipped; placeholder secrets are rejected.
func (m *Manager) Init(ctx context.Context) error {
	stored, err := m.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	byID := make(map[string]domain.Credential, len(stored))
	for _, c := range stored {
		byID[c.ID] = c
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var creds []*domain.Credential

	for _, seed := range m.cfg.Seeds {
		cred := &domain.Credential{
			ID:             seedID(seed),
			Provider:       seed.Provider,
			Secret:         seed.Secret,
			SearchEngineID: seed.EngineID,
			DailyLimit:     seed.DailyLimit,
			MonthlyLimit:   seed.MonthlyLimit,
			Status:         domain.StatusActive,
			Priority:       seed.Number,
			SuccessRate:    100,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := cred.Validate(); err != nil {
			m.logger.Warn("skipping configured credential",
				zap.Int("entry", seed.Number),
				zap.String("provider", string(seed.Provider)),
				zap.Error(err),
			)
			continue
		}
		if seen[cred.Secret] {
			m.logger.Warn("skipping duplicate configured credential", zap.Int("entry", seed.Number))
			continue
		}
		seen[cred.Secret] = true

		// reconcile quota counters against the store
		if prev, ok := byID[cred.ID]; ok {
			cred.UsedToday = prev.UsedToday
			cred.UsedThisMonth = prev.UsedThisMonth
			cred.Status = prev.Status
			cred.ErrorCount = prev.ErrorCount
			cred.SuccessRate = prev.SuccessRate
			cred.LastUsed = prev.LastUsed
			cred.MonthlyResetAt = prev.MonthlyResetAt
			cred.CreatedAt = prev.CreatedAt
		} else if err := m.repo.Upsert(ctx, cred); err != nil {
			m.logger.Warn("persist configured credential", zap.String("id", cred.ID), zap.Error(err))
		}

		creds = append(creds, cred)
	}

	for _, c := range stored {
		if !c.UserAdded || seen[c.Secret] {
			continue
		}
		seen[c.Secret] = true
		cred := c
		creds = append(creds, &cred)
	}

	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()

	m.wg.Add(1)
	go m.upsertWorker()

	if err := m.CheckMonthlyIfStale(ctx); err != nil {
		m.logger.Warn("monthly staleness check", zap.Error(err))
	}

	m.logger.Info("credential pool initialized",
		zap.Int("total", len(creds)),
		zap.String("strategy", string(m.cfg.Strategy)),
	)
	return nil
}

// Shutdown drains pending usage upserts.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for id, t := range m.pauseTimers {
		t.Stop()
		delete(m.pauseTimers, id)
	}
	m.mu.Unlock()

	close(m.done)

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) upsertWorker() {
	defer m.wg.Done()
	for {
		select {
		case u := <-m.upserts:
			m.applyUpsert(u)
		case <-m.done:
			// drain whatever is queued before exiting
			for {
				select {
				case u := <-m.upserts:
					m.applyUpsert(u)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) applyUpsert(u usageUpsert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.UpsertUsage(ctx, u.id, u.patch); err != nil {
		m.logger.Warn("usage upsert failed", zap.String("id", u.id), zap.Error(err))
	}
}

// scheduleUpsert queues a durability write without blocking the lookup.
// The patch must be snapshotted while holding mu.
func (m *Manager) scheduleUpsert(id string, patch repository.UsagePatch) {
	select {
	case m.upserts <- usageUpsert{id: id, patch: patch}:
	default:
		m.logger.Warn("usage upsert queue full, dropping", zap.String("id", id))
	}
}

// usagePatchLocked snapshots the mutable usage state; callers hold mu.
func usagePatchLocked(c *domain.Credential) repository.UsagePatch {
	return repository.UsagePatch{
		UsedToday:     c.UsedToday,
		UsedThisMonth: c.UsedThisMonth,
		ErrorCount:    c.ErrorCount,
		Status:        c.Status,
		SuccessRate:   c.SuccessRate,
		LastUsed:      c.LastUsed,
	}
}

func seedID(s Seed) string {
	return fmt.Sprintf("cfg-%s-%d", s.Provider, s.Number)
}

func newRecordID() string {
	return uuid.New().String()
}
