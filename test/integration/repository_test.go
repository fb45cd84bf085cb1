package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/repository"
	pgRepo "github.com/kitbuilder587/rankwatch/internal/repository/postgres"
)

var testDB *pgRepo.DB

func TestMain(m *testing.M) {
	if os.Getenv("SHORT_TESTS") == "1" {
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("rankwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	testDB, err = pgRepo.New(ctx, connStr)
	if err != nil {
		panic(err)
	}

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		panic(err)
	}
	if _, err := testDB.Pool.Exec(ctx, string(schema)); err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx) //nolint:errcheck

	os.Exit(code)
}

func TestCredentialRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	repo := pgRepo.NewCredentialRepo(testDB)
	now := time.Now().UTC().Truncate(time.Microsecond)

	cred := &domain.Credential{
		ID:           "cfg-native_serp-1",
		Provider:     domain.ProviderNativeSERP,
		Secret:       "0123456789abcdef0123456789abcdef",
		DailyLimit:   100,
		MonthlyLimit: 3000,
		Status:       domain.StatusActive,
		Priority:     1,
		SuccessRate:  100,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Upsert(ctx, cred))

	loaded, err := repo.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, cred.Secret, loaded.Secret)
	require.Equal(t, domain.StatusActive, loaded.Status)
	require.Equal(t, 100, loaded.DailyLimit)

	// usage upsert is idempotent by id
	patch := repository.UsagePatch{
		UsedToday:     7,
		UsedThisMonth: 42,
		Status:        domain.StatusActive,
		SuccessRate:   98.5,
		LastUsed:      now,
	}
	require.NoError(t, repo.UpsertUsage(ctx, cred.ID, patch))
	require.NoError(t, repo.UpsertUsage(ctx, cred.ID, patch))

	loaded, err = repo.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, 7, loaded.UsedToday)
	require.Equal(t, 42, loaded.UsedThisMonth)
	require.InDelta(t, 98.5, loaded.SuccessRate, 0.001)

	require.NoError(t, repo.ResetDailyAll(ctx))
	loaded, err = repo.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.UsedToday)
	require.Equal(t, 42, loaded.UsedThisMonth)

	require.NoError(t, repo.ResetMonthlyAll(ctx, now))
	loaded, err = repo.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.UsedThisMonth)

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, cred.ID))
	_, err = repo.GetByID(ctx, cred.ID)
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
	require.ErrorIs(t, repo.Delete(ctx, cred.ID), domain.ErrCredentialNotFound)
}

func TestRankingRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	repo := pgRepo.NewRankingRepo(testDB)
	now := time.Now().UTC().Truncate(time.Microsecond)

	pos := 4
	rec := &domain.RankingRecord{
		ID:           uuid.New().String(),
		Keyword:      "running shoes",
		Domain:       "example.com",
		Position:     &pos,
		URL:          "https://example.com/shoes",
		Title:        "Shoes",
		Country:      "US",
		Language:     "en",
		Device:       domain.DeviceDesktop,
		TotalResults: 1240000,
		OrganicCount: 10,
		CheckedAt:    now,
		Found:        true,
		Validation: domain.PositionValidation{
			OriginalPosition: 4,
			Source:           domain.SourceProviderField,
			Confidence:       90,
			OrganicCount:     10,
			ArrayIndex:       4,
			Method:           "provider_position",
		},
		Metadata: domain.SearchMetadata{
			Provider:     domain.ProviderNativeSERP,
			CredentialID: "cfg-native_serp-1",
		},
		Competitors: []domain.Competitor{
			{Position: 1, URL: "https://rival.com", Domain: "rival.com"},
		},
		Reliability: domain.ReliabilityHigh,
	}
	require.NoError(t, repo.Create(ctx, rec))

	// not-found record in another country
	rec2 := &domain.RankingRecord{
		ID:        uuid.New().String(),
		Keyword:   "running shoes",
		Domain:    "example.com",
		Country:   "DE",
		Language:  "de",
		Device:    domain.DeviceMobile,
		CheckedAt: now.Add(-time.Hour),
		Validation: domain.PositionValidation{
			Source: domain.SourceUnknown,
			Method: "no_match",
		},
		Metadata:    domain.SearchMetadata{Provider: domain.ProviderNativeSERP},
		Reliability: domain.ReliabilityLow,
	}
	require.NoError(t, repo.Create(ctx, rec2))

	records, err := repo.ListByDomain(ctx, "example.com", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// newest first
	require.Equal(t, rec.ID, records[0].ID)
	require.NotNil(t, records[0].Position)
	require.Equal(t, 4, *records[0].Position)
	require.Equal(t, domain.SourceProviderField, records[0].Validation.Source)
	require.Len(t, records[0].Competitors, 1)

	aggs, err := repo.AggregateByCountry(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	require.Equal(t, "DE", aggs[0].Country)
	require.EqualValues(t, 0, aggs[0].Found)
	require.Equal(t, "US", aggs[1].Country)
	require.EqualValues(t, 1, aggs[1].Found)
	require.InDelta(t, 4, aggs[1].AvgPosition, 0.001)

	// cleanup removes only records past the cutoff
	old := &domain.RankingRecord{
		ID:          uuid.New().String(),
		Keyword:     "old keyword",
		Domain:      "example.com",
		Country:     "US",
		Language:    "en",
		Device:      domain.DeviceDesktop,
		CheckedAt:   now.AddDate(0, 0, -120),
		Validation:  domain.PositionValidation{Source: domain.SourceUnknown, Method: "no_match"},
		Metadata:    domain.SearchMetadata{Provider: domain.ProviderNativeSERP},
		Reliability: domain.ReliabilityLow,
	}
	require.NoError(t, repo.Create(ctx, old))

	removed, err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
