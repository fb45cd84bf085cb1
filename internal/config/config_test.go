package config

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rankwatch")
	t.Setenv("SERP_API_KEY_1", "k1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pool.Strategy != RotationPriority {
		t.Errorf("strategy = %s, want priority", cfg.Pool.Strategy)
	}
	if cfg.Pool.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v, want 30s", cfg.Pool.RequestTimeout)
	}
	if cfg.Pool.RateLimitPause != time.Minute {
		t.Errorf("rate limit pause = %v, want 60s", cfg.Pool.RateLimitPause)
	}
	if cfg.Bulk.BatchSize != 5 || cfg.Bulk.MaxConcurrent != 2 || cfg.Bulk.MaxRetries != 2 {
		t.Errorf("bulk defaults = %+v", cfg.Bulk)
	}
	if cfg.Bulk.InterBatchDelay != 2*time.Second {
		t.Errorf("inter batch delay = %v, want 2s", cfg.Bulk.InterBatchDelay)
	}
	if !cfg.Bulk.RetryEnabled || !cfg.Bulk.AdaptiveDelay {
		t.Error("retry and adaptive delay must default to on")
	}
	if cfg.Bulk.Budget != 290*time.Second {
		t.Errorf("budget = %v, want 290s", cfg.Bulk.Budget)
	}
	if cfg.Cleanup.RetentionDays != 90 {
		t.Errorf("retention = %d, want 90", cfg.Cleanup.RetentionDays)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %s, want info", cfg.Log.Level)
	}
}

func TestLoad_CredentialEntries(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rankwatch")
	t.Setenv("SERP_API_KEY_1", "k1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t.Setenv("SERP_API_KEY_1_DAILY_LIMIT", "250")
	t.Setenv("SERP_API_KEY_1_MONTHLY_LIMIT", "5000")
	t.Setenv("SERP_API_KEY_2", "k2aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	// a numbering gap stops the scan
	t.Setenv("SERP_API_KEY_4", "k4aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t.Setenv("CUSTOM_SEARCH_KEY_1", "cs1")
	t.Setenv("CUSTOM_SEARCH_CX_1", "engine-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Pool.Entries) != 3 {
		t.Fatalf("entries = %d, want 3 (two native, one custom)", len(cfg.Pool.Entries))
	}

	first := cfg.Pool.Entries[0]
	if first.Provider != domain.ProviderNativeSERP || first.DailyLimit != 250 || first.MonthlyLimit != 5000 {
		t.Errorf("entry 1 = %+v", first)
	}
	if cfg.Pool.Entries[1].DailyLimit != 100 {
		t.Errorf("entry 2 daily limit = %d, want default 100", cfg.Pool.Entries[1].DailyLimit)
	}

	custom := cfg.Pool.Entries[2]
	if custom.Provider != domain.ProviderCustomSearch || custom.EngineID != "engine-1" {
		t.Errorf("custom entry = %+v", custom)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		if !errors.Is(err, ErrMissingDB) {
			t.Errorf("error = %v, want ErrMissingDB", err)
		}
	})

	t.Run("invalid strategy", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/rankwatch")
		t.Setenv("ROTATION_STRATEGY", "random")
		_, err := Load()
		if !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("error = %v, want ErrInvalidStrategy", err)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("warn"); got != zapcore.WarnLevel {
		t.Errorf("parseLogLevel(warn) = %v, want warn", got)
	}

	logger, err := NewLogger(LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
	_ = logger.Sync()
}
