package pool

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/serp"
	"github.com/kitbuilder587/rankwatch/internal/serp/parse"
)

// Track runs one keyword lookup through the pool: select a credential,
// execute, parse, update counters, persist. Retryable failures rotate to
// the next credential up to min(pool size, configured max).
func (m *Manager) Track(ctx context.Context, keyword string, opts domain.SearchOptions) (*domain.RankingRecord, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, domain.NewLookupError(domain.KindInvalidRequest, "empty keyword", domain.ErrEmptyKeyword)
	}

	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, domain.NewLookupError(domain.KindInvalidRequest, "invalid search options", err)
	}

	if opts.APIKey != "" {
		return m.trackWithUserKey(ctx, keyword, opts)
	}

	maxRetries := m.cfg.MaxRetries
	if size := m.Size(); size < maxRetries {
		maxRetries = size
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		cred := m.selectAndLock(opts.Provider)
		if cred == nil {
			return nil, domain.NewLookupError(domain.KindAllExhausted, "no credential available", lastErr)
		}

		if m.limiter != nil && !m.limiter.Allow(cred.ID) {
			m.release(cred.ID)
			lastErr = domain.NewLookupError(domain.KindRateLimited, "outbound rate limit window full", nil)
			continue
		}

		if attempt > 0 {
			m.metrics.RecordRetry()
		}

		rec, usage, err := m.execute(ctx, cred.ID, cred.Secret, cred.SearchEngineID, opts.Provider, keyword, opts)
		if err == nil {
			m.recordSuccess(cred, usage)
			m.release(cred.ID)
			m.persistRecord(ctx, rec)
			return rec, nil
		}

		lastErr = err
		kind := domain.KindOf(err)
		switch kind {
		case domain.KindQuotaExceeded:
			m.markExhausted(cred)
			m.release(cred.ID)
		case domain.KindRateLimited:
			m.pauseCredential(cred)
			m.release(cred.ID)
		case domain.KindUnauthorized:
			m.markError(cred)
			m.release(cred.ID)
			return nil, &domain.LookupError{
				Kind: domain.KindUnauthorized, Message: "credential rejected by provider",
				Cause: err, CredentialID: cred.ID,
			}
		case domain.KindInvalidRequest:
			m.release(cred.ID)
			return nil, &domain.LookupError{
				Kind: domain.KindInvalidRequest, Message: "provider rejected request",
				Cause: err, CredentialID: cred.ID,
			}
		default: // timeout, network, parse, unknown
			m.recordFailure(cred)
			m.release(cred.ID)
		}

		m.logger.Debug("lookup attempt failed",
			zap.String("keyword", keyword),
			zap.String("credential", cred.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		return nil, domain.NewLookupError(domain.KindAllExhausted, "no credential available", nil)
	}
	return nil, domain.NewLookupError(domain.KindOf(lastErr), "all lookup attempts failed", lastErr)
}

// trackWithUserKey executes with a caller-supplied secret: one shot,
// unbounded, no pool mutation.
func (m *Manager) trackWithUserKey(ctx context.Context, keyword string, opts domain.SearchOptions) (*domain.RankingRecord, error) {
	engineID := opts.Extra["search_engine_id"]

	rec, _, err := m.execute(ctx, "", opts.APIKey, engineID, opts.Provider, keyword, opts)
	if err != nil {
		return nil, domain.NewLookupError(domain.KindInvalidRequest, "user-supplied key lookup failed", err)
	}

	m.persistRecord(ctx, rec)
	return rec, nil
}

func (m *Manager) execute(ctx context.Context, credentialID, secret, engineID string, provider domain.Provider, keyword string, opts domain.SearchOptions) (*domain.RankingRecord, *serp.AccountUsage, error) {
	client, ok := m.clients[provider]
	if !ok {
		return nil, nil, domain.NewLookupError(domain.KindInvalidRequest, "no client for provider "+string(provider), nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	m.metrics.IncInFlight()
	start := time.Now()
	resp, err := client.Search(reqCtx, serp.Request{
		Keyword:        keyword,
		Secret:         secret,
		SearchEngineID: engineID,
		Options:        opts,
	})
	elapsed := time.Since(start)
	m.metrics.DecInFlight()

	if err != nil {
		m.metrics.RecordLookup(string(provider), string(domain.KindOf(err)), elapsed)
		return nil, nil, err
	}
	m.metrics.RecordLookup(string(provider), "ok", elapsed)

	meta := domain.SearchMetadata{
		Provider:       provider,
		CredentialID:   credentialID,
		ProcessingTime: elapsed,
	}

	var rec *domain.RankingRecord
	switch {
	case resp.Native != nil:
		meta.RequestID = resp.Native.SearchMetadata.ID
		meta.TotalTimeTaken = resp.Native.SearchMetadata.TotalTimeTaken
		rec = parse.Native(keyword, resp.Native, opts, meta)
	case resp.Custom != nil:
		meta.TotalTimeTaken = resp.Custom.SearchInformation.SearchTime
		rec = parse.Custom(keyword, resp.Custom, opts, meta)
	default:
		return nil, nil, domain.NewLookupError(domain.KindParseError, "provider returned no payload", serp.ErrMalformedResponse)
	}

	rec.ID = newRecordID()
	rec.Raw = resp.Raw
	return rec, resp.Usage, nil
}

// recordSuccess bumps counters and flips to exhausted inside one critical
// section, so the transition is visible before the next selection.
func (m *Manager) recordSuccess(cred *domain.Credential, usage *serp.AccountUsage) {
	m.mu.Lock()
	cred.RecordSuccess(time.Now().UTC())

	// provider-reported usage wins when it is ahead of local state
	if usage != nil {
		if usage.Used > cred.UsedThisMonth {
			cred.UsedThisMonth = usage.Used
		}
		if usage.MonthlyLimit > 0 && usage.MonthlyLimit != cred.MonthlyLimit {
			cred.MonthlyLimit = usage.MonthlyLimit
		}
	}

	if cred.ExhaustedByCounters() {
		cred.Status = domain.StatusExhausted
	}
	patch := usagePatchLocked(cred)
	m.mu.Unlock()

	m.scheduleUpsert(cred.ID, patch)
}

func (m *Manager) recordFailure(cred *domain.Credential) {
	m.mu.Lock()
	cred.RecordFailure(time.Now().UTC())
	patch := usagePatchLocked(cred)
	m.mu.Unlock()
	m.scheduleUpsert(cred.ID, patch)
}

func (m *Manager) markExhausted(cred *domain.Credential) {
	m.mu.Lock()
	cred.Status = domain.StatusExhausted
	cred.RecordFailure(time.Now().UTC())
	patch := usagePatchLocked(cred)
	m.mu.Unlock()
	m.scheduleUpsert(cred.ID, patch)
}

func (m *Manager) markError(cred *domain.Credential) {
	m.mu.Lock()
	cred.Status = domain.StatusError
	cred.RecordFailure(time.Now().UTC())
	patch := usagePatchLocked(cred)
	m.mu.Unlock()
	m.scheduleUpsert(cred.ID, patch)
}

// pauseCredential parks a rate-limited credential; a timer flips the status
// back to its prior value after the pause window.
func (m *Manager) pauseCredential(cred *domain.Credential) {
	m.mu.Lock()
	if cred.Status == domain.StatusPaused {
		m.mu.Unlock()
		return
	}
	prior := cred.Status
	cred.Status = domain.StatusPaused
	id := cred.ID

	timer := time.AfterFunc(m.cfg.RateLimitPause, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur := m.byIDLocked(id)
		if cur == nil {
			return
		}
		delete(m.pauseTimers, id)
		if cur.Status != domain.StatusPaused {
			return
		}
		cur.Status = prior
		if cur.ExhaustedByCounters() {
			cur.Status = domain.StatusExhausted
		}
	})
	m.pauseTimers[id] = timer
	patch := usagePatchLocked(cred)
	m.mu.Unlock()

	m.scheduleUpsert(id, patch)
}

func (m *Manager) byIDLocked(id string) *domain.Credential {
	for _, c := range m.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *Manager) persistRecord(ctx context.Context, rec *domain.RankingRecord) {
	if m.rankings == nil {
		return
	}
	if err := m.rankings.Create(ctx, rec); err != nil {
		m.logger.Warn("persist ranking record",
			zap.String("keyword", rec.Keyword),
			zap.Error(err),
		)
	}
}
