package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/repository"
)

type RankingRepo struct {
	db *DB
}

func NewRankingRepo(db *DB) *RankingRepo {
	return &RankingRepo{db: db}
}

func (r *RankingRepo) Create(ctx context.Context, rec *domain.RankingRecord) error {
	validation, err := json.Marshal(rec.Validation)
	if err != nil {
		return fmt.Errorf("marshal validation: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var competitors []byte
	if len(rec.Competitors) > 0 {
		if competitors, err = json.Marshal(rec.Competitors); err != nil {
			return fmt.Errorf("marshal competitors: %w", err)
		}
	}

	query := `
        INSERT INTO ranking_records (
            id, keyword, domain, position, url, title, snippet,
            country, language, city, state, postal_code, device,
            total_results, organic_count, checked_at, found,
            validation, metadata, competitors, reliability, raw
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
                $14, $15, $16, $17, $18, $19, $20, $21, $22)
    `

	_, err = r.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.Keyword,
		rec.Domain,
		rec.Position,
		nullString(rec.URL),
		nullString(rec.Title),
		nullString(rec.Snippet),
		rec.Country,
		rec.Language,
		nullString(rec.City),
		nullString(rec.State),
		nullString(rec.PostalCode),
		string(rec.Device),
		rec.TotalResults,
		rec.OrganicCount,
		rec.CheckedAt,
		rec.Found,
		validation,
		metadata,
		competitors,
		string(rec.Reliability),
		[]byte(rec.Raw),
	)
	if err != nil {
		return fmt.Errorf("create ranking record: %w", err)
	}

	return nil
}

func (r *RankingRepo) ListByDomain(ctx context.Context, target string, limit int) ([]domain.RankingRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
        SELECT id, keyword, domain, position, url, title, snippet,
               country, language, city, state, postal_code, device,
               total_results, organic_count, checked_at, found,
               validation, metadata, competitors, reliability
        FROM ranking_records
        WHERE domain = $1
        ORDER BY checked_at DESC
        LIMIT $2
    `

	rows, err := r.db.Pool.Query(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("list ranking records: %w", err)
	}
	defer rows.Close()

	var records []domain.RankingRecord
	for rows.Next() {
		var (
			rec         domain.RankingRecord
			url         *string
			title       *string
			snippet     *string
			city        *string
			state       *string
			postal      *string
			device      string
			reliability string
			validation  []byte
			metadata    []byte
			competitors []byte
		)
		err := rows.Scan(
			&rec.ID, &rec.Keyword, &rec.Domain, &rec.Position,
			&url, &title, &snippet,
			&rec.Country, &rec.Language, &city, &state, &postal, &device,
			&rec.TotalResults, &rec.OrganicCount, &rec.CheckedAt, &rec.Found,
			&validation, &metadata, &competitors, &reliability,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ranking record: %w", err)
		}

		rec.URL = deref(url)
		rec.Title = deref(title)
		rec.Snippet = deref(snippet)
		rec.City = deref(city)
		rec.State = deref(state)
		rec.PostalCode = deref(postal)
		rec.Device = domain.Device(device)
		rec.Reliability = domain.Reliability(reliability)

		if err := json.Unmarshal(validation, &rec.Validation); err != nil {
			return nil, fmt.Errorf("unmarshal validation: %w", err)
		}
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if len(competitors) > 0 {
			if err := json.Unmarshal(competitors, &rec.Competitors); err != nil {
				return nil, fmt.Errorf("unmarshal competitors: %w", err)
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

func (r *RankingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM ranking_records WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *RankingRepo) AggregateByCountry(ctx context.Context, target string) ([]repository.CountryAggregate, error) {
	query := `
        SELECT country,
               COUNT(*) AS lookups,
               COUNT(*) FILTER (WHERE found) AS found,
               COALESCE(AVG(position) FILTER (WHERE found), 0) AS avg_position
        FROM ranking_records
        WHERE domain = $1
        GROUP BY country
        ORDER BY country
    `

	rows, err := r.db.Pool.Query(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("aggregate by country: %w", err)
	}
	defer rows.Close()

	var aggs []repository.CountryAggregate
	for rows.Next() {
		var a repository.CountryAggregate
		if err := rows.Scan(&a.Country, &a.Lookups, &a.Found, &a.AvgPosition); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return aggs, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
