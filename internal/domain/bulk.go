package domain

import "time"

type FailedLookup struct {
	Keyword      string    `json:"keyword"`
	Message      string    `json:"message"`
	Kind         ErrorKind `json:"kind"`
	At           time.Time `json:"at"`
	Retries      int       `json:"retries"`
	CredentialID string    `json:"credential_id,omitempty"`
}

type BulkResult struct {
	Processed int             `json:"processed"`
	Records   []RankingRecord `json:"records"`
	Failed    []FailedLookup  `json:"failed"`
	Duration  time.Duration   `json:"duration"`
	Pool      PoolStats       `json:"pool"`
	// Quality histogram keyed by reliability tag.
	Quality map[Reliability]int `json:"quality"`
}

// Progress is emitted between batches and during retry passes.
type Progress struct {
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Attempt   int       `json:"attempt,omitempty"`
	Pool      PoolStats `json:"pool"`
}

type CredentialHealth struct {
	ID          string           `json:"id"`
	Provider    Provider         `json:"provider"`
	Status      CredentialStatus `json:"status"`
	Health      HealthStatus     `json:"health"`
	Priority    int              `json:"priority"`
	UsedToday   int              `json:"used_today"`
	DailyLimit  int              `json:"daily_limit"`
	SuccessRate float64          `json:"success_rate"`
}

type PoolStats struct {
	Total           int                `json:"total"`
	Active          int                `json:"active"`
	Exhausted       int                `json:"exhausted"`
	Paused          int                `json:"paused"`
	UsedToday       int                `json:"used_today"`
	DailyCapacity   int                `json:"daily_capacity"`
	UsedThisMonth   int                `json:"used_this_month"`
	MonthlyCapacity int                `json:"monthly_capacity"`
	UsagePercent    float64            `json:"usage_percent"`
	// ExhaustsIn extrapolates the current burn rate; zero when unknown.
	ExhaustsIn  time.Duration      `json:"exhausts_in,omitempty"`
	Credentials []CredentialHealth `json:"credentials,omitempty"`
}
