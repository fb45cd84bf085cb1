package domain

import (
	"strings"
	"time"
)

const MinSecretLength = 32

type Provider string

const (
	ProviderNativeSERP   Provider = "native_serp"
	ProviderCustomSearch Provider = "custom_search"
)

func (p Provider) IsValid() bool {
	return p == ProviderNativeSERP || p == ProviderCustomSearch
}

type CredentialStatus string

const (
	StatusActive    CredentialStatus = "active"
	StatusExhausted CredentialStatus = "exhausted"
	StatusPaused    CredentialStatus = "paused"
	StatusError     CredentialStatus = "error"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthWarning   HealthStatus = "warning"
	HealthCritical  HealthStatus = "critical"
	HealthExhausted HealthStatus = "exhausted"
)

// Credential - один API-ключ провайдера вместе с квотами и состоянием.
type Credential struct {
	ID             string
	Provider       Provider
	Secret         string
	SearchEngineID string
	DailyLimit     int
	MonthlyLimit   int
	UsedToday      int
	UsedThisMonth  int
	Status         CredentialStatus
	Priority       int
	LastUsed       time.Time
	ErrorCount     int
	SuccessRate    float64
	MonthlyResetAt time.Time
	UserAdded      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// placeholders that sneak in from copy-pasted env templates
var placeholderMarkers = []string{
	"_here",
	"change_me",
	"changeme",
	"replace_with",
}

func IsPlaceholderSecret(secret string) bool {
	s := strings.ToLower(strings.TrimSpace(secret))
	if s == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func (c *Credential) Validate() error {
	if !c.Provider.IsValid() {
		return ErrInvalidProvider
	}
	if IsPlaceholderSecret(c.Secret) {
		return ErrPlaceholderSecret
	}
	if c.Provider == ProviderNativeSERP && len(c.Secret) < MinSecretLength {
		return ErrSecretTooShort
	}
	if c.Provider == ProviderCustomSearch && c.SearchEngineID == "" {
		return ErrMissingSearchEngineID
	}
	if c.DailyLimit < 1 {
		return ErrInvalidDailyLimit
	}
	if c.MonthlyLimit < 0 {
		return ErrInvalidMonthlyLimit
	}
	return nil
}

// Available reports whether the credential may serve a request right now.
// MonthlyLimit == 0 means no monthly cap.
func (c *Credential) Available() bool {
	if c.Status != StatusActive {
		return false
	}
	if c.UsedToday >= c.DailyLimit {
		return false
	}
	if c.MonthlyLimit > 0 && c.UsedThisMonth >= c.MonthlyLimit {
		return false
	}
	return true
}

func (c *Credential) ExhaustedByCounters() bool {
	if c.UsedToday >= c.DailyLimit {
		return true
	}
	return c.MonthlyLimit > 0 && c.UsedThisMonth >= c.MonthlyLimit
}

func (c *Credential) UsagePercent() float64 {
	if c.DailyLimit == 0 {
		return 0
	}
	return float64(c.UsedToday) / float64(c.DailyLimit) * 100
}

func (c *Credential) Health() HealthStatus {
	switch {
	case c.Status == StatusExhausted || c.UsedToday >= c.DailyLimit:
		return HealthExhausted
	case c.UsagePercent() >= 90:
		return HealthCritical
	case c.UsagePercent() >= 75:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

const ewmaAlpha = 0.05

// RecordSuccess updates the EWMA success rate with a successful call.
func (c *Credential) RecordSuccess(now time.Time) {
	c.UsedToday++
	c.UsedThisMonth++
	c.SuccessRate = (1-ewmaAlpha)*c.SuccessRate + ewmaAlpha*100
	c.LastUsed = now
	c.UpdatedAt = now
}

func (c *Credential) RecordFailure(now time.Time) {
	c.ErrorCount++
	c.SuccessRate = (1 - ewmaAlpha) * c.SuccessRate
	c.UpdatedAt = now
}
