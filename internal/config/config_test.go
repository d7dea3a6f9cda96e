package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("AERODATABOX_API_KEY", "secret")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, "aerodatabox.p.rapidapi.com", cfg.API.Host)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Gate.Window)
	assert.Equal(t, 30, cfg.Gate.MaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Len(t, cfg.Fetch.AirportCodes, 15)
	assert.Equal(t, "DEL", cfg.Fetch.AirportCodes[0])
	assert.Equal(t, 5, cfg.Fetch.AirportWorkers)
	assert.Equal(t, 2, cfg.Fetch.DelayWorkers)
	assert.Equal(t, 3, cfg.Fetch.QuickAirports)
	assert.Equal(t, 10, cfg.Fetch.QuickFlightsPerAirport)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
api:
  key: from-file
database:
  driver: memory
gate:
  max_requests: 10
fetch:
  airport_codes: [DEL, BOM]
  max_aircraft: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.API.Key)
	assert.Equal(t, 10, cfg.Gate.MaxRequests)
	assert.Equal(t, []string{"DEL", "BOM"}, cfg.Fetch.AirportCodes)
	assert.Equal(t, 4, cfg.Fetch.MaxAircraft)
	// untouched fields keep their defaults
	assert.Equal(t, 3, cfg.Fetch.ScheduleWorkers)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Database: Database{Driver: "postgres"},
		Gate:     Gate{Window: time.Minute},
		Retry:    Retry{MaxAttempts: 3},
		Fetch:    Fetch{AirportWorkers: 1, ScheduleWorkers: 1, AircraftWorkers: 1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AERODATABOX_API_KEY is required")
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "GATE_MAX_REQUESTS must be positive")
	assert.Contains(t, err.Error(), "DELAY_WORKERS must be positive")

	cfg.API.Key = "k"
	cfg.Database = Database{Driver: "memory"}
	cfg.Gate.MaxRequests = 30
	cfg.Fetch.DelayWorkers = 2
	assert.NoError(t, cfg.Validate())
}
