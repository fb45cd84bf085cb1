package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/repository"
)

type CredentialRepo struct {
	db *DB
}

func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `
	id, provider, secret, search_engine_id, daily_limit, monthly_limit,
	used_today, used_this_month, status, priority, last_used, error_count,
	success_rate, monthly_reset_at, user_added, created_at, updated_at
`

func (r *CredentialRepo) LoadAll(ctx context.Context) ([]domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY priority, created_at`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return creds, nil
}

func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, id)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}

	return c, nil
}

func (r *CredentialRepo) Upsert(ctx context.Context, cred *domain.Credential) error {
	query := `
        INSERT INTO credentials (` + credentialColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        ON CONFLICT (id) DO UPDATE SET
            provider = EXCLUDED.provider,
            secret = EXCLUDED.secret,
            search_engine_id = EXCLUDED.search_engine_id,
            daily_limit = EXCLUDED.daily_limit,
            monthly_limit = EXCLUDED.monthly_limit,
            used_today = EXCLUDED.used_today,
            used_this_month = EXCLUDED.used_this_month,
            status = EXCLUDED.status,
            priority = EXCLUDED.priority,
            last_used = EXCLUDED.last_used,
            error_count = EXCLUDED.error_count,
            success_rate = EXCLUDED.success_rate,
            monthly_reset_at = EXCLUDED.monthly_reset_at,
            user_added = EXCLUDED.user_added,
            updated_at = EXCLUDED.updated_at
    `

	_, err := r.db.Pool.Exec(ctx, query,
		cred.ID,
		string(cred.Provider),
		cred.Secret,
		nullString(cred.SearchEngineID),
		cred.DailyLimit,
		cred.MonthlyLimit,
		cred.UsedToday,
		cred.UsedThisMonth,
		string(cred.Status),
		cred.Priority,
		nullTime(cred.LastUsed),
		cred.ErrorCount,
		cred.SuccessRate,
		nullTime(cred.MonthlyResetAt),
		cred.UserAdded,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateCredential
		}
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

func (r *CredentialRepo) UpsertUsage(ctx context.Context, id string, patch repository.UsagePatch) error {
	query := `
        UPDATE credentials SET
            used_today = $2,
            used_this_month = $3,
            error_count = $4,
            status = $5,
            success_rate = $6,
            last_used = $7,
            updated_at = now()
        WHERE id = $1
    `

	result, err := r.db.Pool.Exec(ctx, query,
		id,
		patch.UsedToday,
		patch.UsedThisMonth,
		patch.ErrorCount,
		string(patch.Status),
		patch.SuccessRate,
		nullTime(patch.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}

	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}

	return nil
}

func (r *CredentialRepo) ResetDailyAll(ctx context.Context) error {
	query := `
        UPDATE credentials SET
            used_today = 0,
            error_count = 0,
            status = CASE WHEN status <> 'paused' THEN 'active' ELSE status END,
            updated_at = now()
    `

	if _, err := r.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("reset daily: %w", err)
	}
	return nil
}

func (r *CredentialRepo) ResetMonthlyAll(ctx context.Context, resetAt time.Time) error {
	query := `
        UPDATE credentials SET
            used_this_month = 0,
            monthly_reset_at = $1,
            status = CASE WHEN status = 'exhausted' AND used_today < daily_limit THEN 'active' ELSE status END,
            updated_at = now()
    `

	if _, err := r.db.Pool.Exec(ctx, query, resetAt); err != nil {
		return fmt.Errorf("reset monthly: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var (
		c              domain.Credential
		provider       string
		status         string
		searchEngineID *string
		lastUsed       *time.Time
		monthlyResetAt *time.Time
	)

	err := row.Scan(
		&c.ID,
		&provider,
		&c.Secret,
		&searchEngineID,
		&c.DailyLimit,
		&c.MonthlyLimit,
		&c.UsedToday,
		&c.UsedThisMonth,
		&status,
		&c.Priority,
		&lastUsed,
		&c.ErrorCount,
		&c.SuccessRate,
		&monthlyResetAt,
		&c.UserAdded,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Provider = domain.Provider(provider)
	c.Status = domain.CredentialStatus(status)
	if searchEngineID != nil {
		c.SearchEngineID = *searchEngineID
	}
	if lastUsed != nil {
		c.LastUsed = *lastUsed
	}
	if monthlyResetAt != nil {
		c.MonthlyResetAt = *monthlyResetAt
	}
	return &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
