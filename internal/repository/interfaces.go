package repository

import (
	"context"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

// UsagePatch carries the mutable usage state of a credential. Applied as an
// idempotent upsert by id, off the lookup critical path.
type UsagePatch struct {
	UsedToday     int
	UsedThisMonth int
	ErrorCount    int
	Status        domain.CredentialStatus
	SuccessRate   float64
	LastUsed      time.Time
}

type CredentialRepository interface {
	LoadAll(ctx context.Context) ([]domain.Credential, error)
	GetByID(ctx context.Context, id string) (*domain.Credential, error)
	Upsert(ctx context.Context, cred *domain.Credential) error
	UpsertUsage(ctx context.Context, id string, patch UsagePatch) error
	Delete(ctx context.Context, id string) error
	ResetDailyAll(ctx context.Context) error
	ResetMonthlyAll(ctx context.Context, resetAt time.Time) error
}

type CountryAggregate struct {
	Country     string
	Lookups     int64
	Found       int64
	AvgPosition float64
}

type RankingRepository interface {
	Create(ctx context.Context, rec *domain.RankingRecord) error
	ListByDomain(ctx context.Context, target string, limit int) ([]domain.RankingRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	AggregateByCountry(ctx context.Context, target string) ([]CountryAggregate, error)
}
