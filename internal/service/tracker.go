// Package service exposes the request facade: it normalizes an inbound
// tracking request, dispatches to the single or bulk path and shapes the
// reply with pool statistics and an insight summary.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

type Pool interface {
	Track(ctx context.Context, keyword string, opts domain.SearchOptions) (*domain.RankingRecord, error)
	Stats() domain.PoolStats
}

type Bulk interface {
	Run(ctx context.Context, keywords []string, opts domain.SearchOptions, progress chan<- domain.Progress) (*domain.BulkResult, error)
}

type TrackRequest struct {
	Keywords []string
	Options  domain.SearchOptions
}

type TrackResponse struct {
	Record  *domain.RankingRecord `json:"record,omitempty"`
	Bulk    *domain.BulkResult    `json:"bulk,omitempty"`
	Pool    domain.PoolStats      `json:"pool"`
	Insight string                `json:"insight"`
}

type Deps struct {
	Pool   Pool
	Bulk   Bulk
	Logger *zap.Logger
}

type Tracker struct {
	pool   Pool
	bulk   Bulk
	logger *zap.Logger
}

func New(deps Deps) *Tracker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{pool: deps.Pool, bulk: deps.Bulk, logger: logger}
}

// Process normalizes the request and dispatches. A one-element keyword list
// collapses to the single-lookup path.
func (t *Tracker) Process(ctx context.Context, req TrackRequest) (*TrackResponse, error) {
	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return nil, domain.ErrEmptyKeyword
	}

	opts := req.Options
	opts.Normalize()

	if len(keywords) == 1 {
		return t.single(ctx, keywords[0], opts)
	}
	return t.bulkRun(ctx, keywords, opts)
}

func (t *Tracker) single(ctx context.Context, keyword string, opts domain.SearchOptions) (*TrackResponse, error) {
	rec, err := t.pool.Track(ctx, keyword, opts)
	if err != nil {
		return nil, err
	}

	return &TrackResponse{
		Record:  rec,
		Pool:    t.pool.Stats(),
		Insight: recordInsight(rec),
	}, nil
}

func (t *Tracker) bulkRun(ctx context.Context, keywords []string, opts domain.SearchOptions) (*TrackResponse, error) {
	result, err := t.bulk.Run(ctx, keywords, opts, nil)
	if err != nil {
		return nil, err
	}

	return &TrackResponse{
		Bulk:    result,
		Pool:    result.Pool,
		Insight: bulkInsight(result, opts.Domain),
	}, nil
}

// recordInsight buckets a single position into page bands.
func recordInsight(rec *domain.RankingRecord) string {
	if !rec.Found || rec.Position == nil {
		return fmt.Sprintf("%q is not ranking in the scanned results for %q", rec.Domain, rec.Keyword)
	}

	pos := *rec.Position
	var band string
	switch {
	case pos <= 10:
		band = "on the first page"
	case pos <= 20:
		band = "on the second page"
	case pos <= 50:
		band = "in the top 50"
	default:
		band = "beyond the top 50"
	}
	return fmt.Sprintf("%q ranks #%d for %q, %s", rec.Domain, pos, rec.Keyword, band)
}

// bulkInsight summarizes visibility across the keyword set.
func bulkInsight(result *domain.BulkResult, target string) string {
	if result.Processed == 0 {
		return "no keywords processed"
	}

	found := 0
	for _, r := range result.Records {
		if r.Found {
			found++
		}
	}
	rate := float64(found) / float64(result.Processed) * 100

	var verdict string
	switch {
	case rate >= 70:
		verdict = "strong visibility"
	case rate >= 40:
		verdict = "moderate visibility"
	default:
		verdict = "weak visibility"
	}
	return fmt.Sprintf("%q ranks for %d of %d keywords (%.0f%%): %s",
		target, found, result.Processed, rate, verdict)
}
