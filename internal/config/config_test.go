package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "TOLERANCE_RELATIVE", "MATCH_DATE_WINDOW_DAYS", "SUMMARY_CACHE_TTL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "0.01", cfg.ToleranceRelative.String())
	assert.Equal(t, "1000", cfg.ToleranceAbsoluteFloor.String())
	assert.Equal(t, 30, cfg.MatchDateWindowDays)
	assert.Equal(t, 5*time.Minute, cfg.SummaryCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("TOLERANCE_RELATIVE", "0.005")
	t.Setenv("MATCH_DATE_WINDOW_DAYS", "0")
	t.Setenv("BATCH_WORKERS", "8")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "0.005", cfg.ToleranceRelative.String())
	assert.Equal(t, 0, cfg.MatchDateWindowDays)
	assert.Equal(t, 8, cfg.BatchWorkers)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad int", "BATCH_WORKERS", "many"},
		{"zero workers", "BATCH_WORKERS", "0"},
		{"bad decimal", "TOLERANCE_ABSOLUTE_FLOOR", "lots"},
		{"negative tolerance", "TOLERANCE_RELATIVE", "-0.1"},
		{"bad duration", "SUMMARY_CACHE_TTL", "soon"},
		{"unknown driver", "STORE_DRIVER", "postgres"},
		{"bigquery without project", "STORE_DRIVER", "bigquery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BQ_PROJECT_ID", "")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
