// Package bulk fans a keyword list out through the pool with bounded
// concurrency, adaptive inter-batch pacing and a retry queue.
package bulk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/metrics"
)

const (
	maxAdaptiveDelay = 10 * time.Second
	maxRetrySleep    = 5 * time.Second
)

// Tracker is the slice of the pool manager the executor needs.
type Tracker interface {
	Track(ctx context.Context, keyword string, opts domain.SearchOptions) (*domain.RankingRecord, error)
	Stats() domain.PoolStats
}

type Config struct {
	BatchSize       int
	InterBatchDelay time.Duration
	MaxConcurrent   int
	RetryEnabled    bool
	MaxRetries      int
	AdaptiveDelay   bool
	Budget          time.Duration
}

type Deps struct {
	Tracker Tracker
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Config  Config
}

type Executor struct {
	tracker Tracker
	logger  *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func New(deps Deps) *Executor {
	cfg := deps.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = 2 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 290 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		tracker: deps.Tracker,
		logger:  logger,
		metrics: deps.Metrics,
		cfg:     cfg,
	}
}

type outcome struct {
	keyword string
	record  *domain.RankingRecord
	err     error
}

// Run processes the keyword list in batches. A single failed keyword never
// fails the bulk: failures are collected into the result. Progress events
// are emitted between batches when a channel is supplied; slow consumers
// drop events rather than stalling the run.
func (e *Executor) Run(ctx context.Context, keywords []string, opts domain.SearchOptions, progress chan<- domain.Progress) (*domain.BulkResult, error) {
	start := time.Now()
	deadline := start.Add(e.cfg.Budget)

	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}

	result := &domain.BulkResult{
		Quality: make(map[domain.Reliability]int),
	}
	if len(cleaned) == 0 {
		result.Pool = e.tracker.Stats()
		return result, nil
	}

	delay := e.cfg.InterBatchDelay
	batches := partition(cleaned, e.cfg.BatchSize)

	for bi, batch := range batches {
		if time.Now().After(deadline) {
			e.failRemaining(result, batches[bi:], "bulk budget exhausted before dispatch")
			break
		}

		outcomes := e.runBatch(ctx, batch, opts)
		e.metrics.RecordBatch()

		succeeded := 0
		for _, o := range outcomes {
			if o.err != nil {
				result.Failed = append(result.Failed, failedLookup(o.keyword, o.err, 0))
				e.metrics.RecordBulkKeyword("failed")
				continue
			}
			succeeded++
			result.Records = append(result.Records, *o.record)
			result.Quality[o.record.Reliability]++
			e.metrics.RecordBulkKeyword("ok")
		}

		if bi < len(batches)-1 {
			if e.cfg.AdaptiveDelay {
				delay = e.nextDelay(delay, succeeded, len(batch))
			}
			e.emit(progress, result, len(cleaned), 0)
			if err := sleep(ctx, delay); err != nil {
				e.failRemaining(result, batches[bi+1:], "bulk cancelled")
				break
			}
		}
	}

	if e.cfg.RetryEnabled && len(result.Failed) > 0 && ctx.Err() == nil {
		e.retryFailed(ctx, result, opts, len(cleaned), deadline, progress)
	}

	result.Processed = len(result.Records) + len(result.Failed)
	result.Duration = time.Since(start)
	result.Pool = e.tracker.Stats()

	e.logger.Info("bulk run finished",
		zap.Int("keywords", len(cleaned)),
		zap.Int("succeeded", len(result.Records)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}

// runBatch dispatches one batch through a weighted semaphore. Each task is
// isolated: an error is recorded, never propagated to siblings.
func (e *Executor) runBatch(ctx context.Context, batch []string, opts domain.SearchOptions) []outcome {
	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	outcomes := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i, keyword := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = outcome{keyword: keyword, err: domain.NewLookupError(domain.KindTimeout, "bulk cancelled", err)}
			continue
		}

		wg.Add(1)
		go func(i int, keyword string) {
			defer wg.Done()
			defer sem.Release(1)

			rec, err := e.tracker.Track(ctx, keyword, opts)
			outcomes[i] = outcome{keyword: keyword, record: rec, err: err}
		}(i, keyword)
	}
	wg.Wait()

	return outcomes
}

// retryFailed runs up to MaxRetries sequential passes over the failed list.
func (e *Executor) retryFailed(ctx context.Context, result *domain.BulkResult, opts domain.SearchOptions, total int, deadline time.Time, progress chan<- domain.Progress) {
	baseline := e.cfg.InterBatchDelay

	for attempt := 1; attempt <= e.cfg.MaxRetries && len(result.Failed) > 0; attempt++ {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return
		}

		pause := baseline * time.Duration(attempt)
		if pause > maxRetrySleep {
			pause = maxRetrySleep
		}
		if err := sleep(ctx, pause); err != nil {
			return
		}

		e.metrics.RecordRetryPass()
		var still []domain.FailedLookup
		for _, f := range result.Failed {
			if !f.Kind.Retryable() && f.Kind != domain.KindAllExhausted {
				still = append(still, f)
				continue
			}

			rec, err := e.tracker.Track(ctx, f.Keyword, opts)
			if err != nil {
				retried := failedLookup(f.Keyword, err, f.Retries+1)
				still = append(still, retried)
				continue
			}
			result.Records = append(result.Records, *rec)
			result.Quality[rec.Reliability]++
			e.metrics.RecordBulkKeyword("retried_ok")
		}
		result.Failed = still

		e.emit(progress, result, total, attempt)

		if len(result.Failed) > 0 && attempt < e.cfg.MaxRetries {
			if err := sleep(ctx, 2*pause); err != nil {
				return
			}
		}
	}
}

// nextDelay adapts the inter-batch pause to pool pressure: back off when the
// pool is hot or the batch went badly, creep back to baseline when calm.
func (e *Executor) nextDelay(current time.Duration, succeeded, batchSize int) time.Duration {
	baseline := e.cfg.InterBatchDelay
	successRate := float64(succeeded) / float64(batchSize) * 100
	poolUsage := e.tracker.Stats().UsagePercent

	switch {
	case poolUsage > 80 || successRate < 80:
		next := time.Duration(float64(current) * 1.5)
		if next > maxAdaptiveDelay {
			next = maxAdaptiveDelay
		}
		return next
	case succeeded == batchSize && current > baseline:
		next := time.Duration(float64(current) * 0.8)
		if next < baseline {
			next = baseline
		}
		return next
	default:
		return current
	}
}

func (e *Executor) failRemaining(result *domain.BulkResult, batches [][]string, msg string) {
	for _, batch := range batches {
		for _, keyword := range batch {
			result.Failed = append(result.Failed, domain.FailedLookup{
				Keyword: keyword,
				Message: msg,
				Kind:    domain.KindTimeout,
				At:      time.Now().UTC(),
			})
			e.metrics.RecordBulkKeyword("timeout")
		}
	}
}

func (e *Executor) emit(progress chan<- domain.Progress, result *domain.BulkResult, total, attempt int) {
	if progress == nil {
		return
	}
	p := domain.Progress{
		Processed: len(result.Records) + len(result.Failed),
		Total:     total,
		Succeeded: len(result.Records),
		Failed:    len(result.Failed),
		Attempt:   attempt,
		Pool:      e.tracker.Stats(),
	}
	select {
	case progress <- p:
	default:
	}
}

func failedLookup(keyword string, err error, retries int) domain.FailedLookup {
	f := domain.FailedLookup{
		Keyword: keyword,
		Message: err.Error(),
		Kind:    domain.KindOf(err),
		At:      time.Now().UTC(),
		Retries: retries,
	}
	var le *domain.LookupError
	if errors.As(err, &le) {
		f.CredentialID = le.CredentialID
	}
	return f
}

func partition(keywords []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(keywords); start += size {
		end := start + size
		if end > len(keywords) {
			end = len(keywords)
		}
		batches = append(batches, keywords[start:end])
	}
	return batches
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
