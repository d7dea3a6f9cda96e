package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Log      Log      `yaml:"log"`
	HTTP     HTTP     `yaml:"http"`
	Database Database `yaml:"database"`
	API      API      `yaml:"api"`
	Gate     Gate     `yaml:"gate"`
	Cache    Cache    `yaml:"cache"`
	Retry    Retry    `yaml:"retry"`
	Fetch    Fetch    `yaml:"fetch"`
	Schedule Schedule `yaml:"schedule"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

type HTTP struct {
	Port           string   `yaml:"port" env:"PORT" env-default:"8080"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:8501"`
}

type Database struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"5"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"2"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

// API describes the remote aviation API. Key and Host are sent as static
// headers on every request.
type API struct {
	BaseURL string        `yaml:"base_url" env:"AERODATABOX_BASE_URL" env-default:"https://aerodatabox.p.rapidapi.com"`
	Key     string        `yaml:"key" env:"AERODATABOX_API_KEY"`
	Host    string        `yaml:"host" env:"AERODATABOX_API_HOST" env-default:"aerodatabox.p.rapidapi.com"`
	Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"15s"`
}

type Gate struct {
	Window      time.Duration `yaml:"window" env:"GATE_WINDOW" env-default:"60s"`
	MaxRequests int           `yaml:"max_requests" env:"GATE_MAX_REQUESTS" env-default:"30"`
	MinInterval time.Duration `yaml:"min_interval" env:"GATE_MIN_INTERVAL" env-default:"100ms"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
}

type Retry struct {
	MaxAttempts      int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	BackoffBase      time.Duration `yaml:"backoff_base" env:"RETRY_BACKOFF_BASE" env-default:"1s"`
	TransientRetries int           `yaml:"transient_retries" env:"RETRY_TRANSIENT" env-default:"1"`
	TransientDelay   time.Duration `yaml:"transient_delay" env:"RETRY_TRANSIENT_DELAY" env-default:"1s"`
}

// Fetch bounds the work done by one orchestrator run.
type Fetch struct {
	AirportCodes         []string `yaml:"airport_codes" env:"AIRPORT_CODES" env-separator:"," env-default:"DEL,BOM,MAA,BLR,HYD,CCU,AMD,LHR,JFK,DXB,SIN,CDG,FRA,SYD,NRT"`
	MaxAirports          int      `yaml:"max_airports" env:"MAX_AIRPORTS" env-default:"15"`
	ScheduleAirports     int      `yaml:"schedule_airports" env:"SCHEDULE_AIRPORTS" env-default:"5"`
	ArrivalAirports      int      `yaml:"arrival_airports" env:"ARRIVAL_AIRPORTS" env-default:"2"`
	MaxFlightsPerAirport int      `yaml:"max_flights_per_airport" env:"MAX_FLIGHTS_PER_AIRPORT" env-default:"50"`
	MaxAircraft          int      `yaml:"max_aircraft" env:"MAX_AIRCRAFT" env-default:"20"`
	DelayAirports        int      `yaml:"delay_airports" env:"DELAY_AIRPORTS" env-default:"3"`

	// Quick refresh touches only delays and a few departures.
	QuickAirports          int `yaml:"quick_airports" env:"QUICK_AIRPORTS" env-default:"3"`
	QuickFlightsPerAirport int `yaml:"quick_flights_per_airport" env:"QUICK_FLIGHTS_PER_AIRPORT" env-default:"10"`

	AirportWorkers  int `yaml:"airport_workers" env:"AIRPORT_WORKERS" env-default:"5"`
	ScheduleWorkers int `yaml:"schedule_workers" env:"SCHEDULE_WORKERS" env-default:"3"`
	AircraftWorkers int `yaml:"aircraft_workers" env:"AIRCRAFT_WORKERS" env-default:"3"`
	DelayWorkers    int `yaml:"delay_workers" env:"DELAY_WORKERS" env-default:"2"`
}

type Schedule struct {
	Interval time.Duration `yaml:"interval" env:"SCHEDULE_INTERVAL" env-default:"30m"`
	RunOnce  bool          `yaml:"run_once" env:"RUN_ONCE" env-default:"false"`
}

// Load reads the YAML file named by CONFIG_PATH (default config.yaml) when it
// exists, then lets environment variables override it.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.API.Key == "" {
		errs = append(errs, errors.New("AERODATABOX_API_KEY is required"))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	if c.Gate.MaxRequests <= 0 {
		errs = append(errs, errors.New("GATE_MAX_REQUESTS must be positive"))
	}
	if c.Gate.Window <= 0 {
		errs = append(errs, errors.New("GATE_WINDOW must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be positive"))
	}
	for _, w := range []struct {
		name  string
		value int
	}{
		{"AIRPORT_WORKERS", c.Fetch.AirportWorkers},
		{"SCHEDULE_WORKERS", c.Fetch.ScheduleWorkers},
		{"AIRCRAFT_WORKERS", c.Fetch.AircraftWorkers},
		{"DELAY_WORKERS", c.Fetch.DelayWorkers},
	} {
		if w.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", w.name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
