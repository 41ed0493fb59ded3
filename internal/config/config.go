package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from YAML with environment
// overrides for deployment-specific values.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Startup   StartupConfig   `yaml:"startup"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Sources   SourcesConfig   `yaml:"sources"`
	Stream    StreamConfig    `yaml:"stream"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
}

// DatabaseConfig holds sqlite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty means stderr
}

// StartupConfig controls daemon startup behavior
type StartupConfig struct {
	// EagerLoad pulls cold sources forward on startup instead of letting
	// them wait out their first refresh interval.
	EagerLoad bool `yaml:"eager_load"`
}

// FetchConfig holds the resilience knobs shared by all HTTP sources
type FetchConfig struct {
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	MaxRetries         int     `yaml:"max_retries"`
	BackoffInitialMs   int     `yaml:"backoff_initial_ms"`
	BackoffMaxSeconds  int     `yaml:"backoff_max_seconds"`
	BreakerFailureRate float64 `yaml:"breaker_failure_rate"` // trip when failure ratio meets this
	BreakerMinRequests int     `yaml:"breaker_min_requests"` // observations before the rate applies
	BreakerCooldownSec int     `yaml:"breaker_cooldown_seconds"`
	RatePerMinute      int     `yaml:"rate_per_minute"` // outbound request budget per source
	UserAgent          string  `yaml:"user_agent"`
}

// SourceConfig configures one upstream data source. The pointer fields
// override the shared fetch settings when set; nil inherits.
type SourceConfig struct {
	Enabled            bool     `yaml:"enabled"`
	URL                string   `yaml:"url"`
	RefreshMinutes     int      `yaml:"refresh_minutes"`
	MaxRetries         *int     `yaml:"max_retries"`
	BreakerFailureRate *float64 `yaml:"breaker_failure_rate"`
}

// Retries resolves the effective retry count for this source.
func (s SourceConfig) Retries(shared FetchConfig) int {
	if s.MaxRetries != nil {
		return *s.MaxRetries
	}
	return shared.MaxRetries
}

// FailureRate resolves the effective breaker trip ratio for this source.
func (s SourceConfig) FailureRate(shared FetchConfig) float64 {
	if s.BreakerFailureRate != nil {
		return *s.BreakerFailureRate
	}
	return shared.BreakerFailureRate
}

// SourcesConfig holds all upstream sources
type SourcesConfig struct {
	POTA           SourceConfig `yaml:"pota"`
	SOTA           SourceConfig `yaml:"sota"`
	SolarNOAA      SourceConfig `yaml:"solar_noaa"`
	SolarHamQSL    SourceConfig `yaml:"solar_hamqsl"`
	BandConditions SourceConfig `yaml:"band_conditions"`
	Contests       SourceConfig `yaml:"contests"`
	MeteorShowers  SourceConfig `yaml:"meteor_showers"`
}

// StreamConfig configures the live spot stream (MQTT)
type StreamConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Topic         string `yaml:"topic"`
	WindowMinutes int    `yaml:"window_minutes"`
}

// CacheConfig holds cache TTLs and query look-back windows
type CacheConfig struct {
	TTLFactor      float64 `yaml:"ttl_factor"` // cache TTL = refresh interval * factor
	SpotLookBackH  int     `yaml:"spot_lookback_hours"`
	SolarLookBackH int     `yaml:"solar_lookback_hours"`
	EventLookBackH int     `yaml:"event_lookback_hours"` // contests and meteor showers
}

// RetentionConfig holds row expiry settings. Sweeps run inside each
// source's refresh transaction; these set the cutoffs.
type RetentionConfig struct {
	SpotMaxAgeHours  int `yaml:"spot_max_age_hours"`
	SolarMaxAgeHours int `yaml:"solar_max_age_hours"`
	EventMaxAgeDays  int `yaml:"event_max_age_days"` // after the event's end
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "nextskip.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Startup: StartupConfig{
			EagerLoad: true,
		},
		Fetch: FetchConfig{
			TimeoutSeconds:     15,
			MaxRetries:         3,
			BackoffInitialMs:   500,
			BackoffMaxSeconds:  10,
			BreakerFailureRate: 0.6,
			BreakerMinRequests: 5,
			BreakerCooldownSec: 60,
			RatePerMinute:      30,
			UserAgent:          "nextskip/1.0",
		},
		Sources: SourcesConfig{
			POTA: SourceConfig{
				Enabled:        true,
				URL:            "https://api.pota.app/spot/activator",
				RefreshMinutes: 2,
			},
			SOTA: SourceConfig{
				Enabled:        true,
				URL:            "https://api2.sota.org.uk/api/spots/50/all",
				RefreshMinutes: 2,
			},
			SolarNOAA: SourceConfig{
				Enabled:        true,
				URL:            "https://services.swpc.noaa.gov",
				RefreshMinutes: 15,
			},
			SolarHamQSL: SourceConfig{
				Enabled:        true,
				URL:            "https://www.hamqsl.com/solarxml.php",
				RefreshMinutes: 15,
			},
			BandConditions: SourceConfig{
				Enabled:        true,
				URL:            "https://www.hamqsl.com/solarxml.php",
				RefreshMinutes: 15,
			},
			Contests: SourceConfig{
				Enabled:        true,
				URL:            "https://www.contestcalendar.com/calendar.rss",
				RefreshMinutes: 360,
			},
			MeteorShowers: SourceConfig{
				Enabled:        true,
				URL:            "",
				RefreshMinutes: 1440,
			},
		},
		Stream: StreamConfig{
			Enabled:       true,
			Broker:        "tcp://mqtt.pskreporter.info:1883",
			ClientID:      "nextskip",
			Topic:         "pskr/filter/v2/+/+/#",
			WindowMinutes: 15,
		},
		Cache: CacheConfig{
			TTLFactor:      3,
			SpotLookBackH:  1,
			SolarLookBackH: 6,
			EventLookBackH: 24,
		},
		Retention: RetentionConfig{
			SpotMaxAgeHours:  24,
			SolarMaxAgeHours: 72,
			EventMaxAgeDays:  30,
		},
	}
}

// Load reads the config file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-specific values from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("NEXTSKIP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NEXTSKIP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NEXTSKIP_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("NEXTSKIP_MQTT_BROKER"); v != "" {
		c.Stream.Broker = v
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive, got %d", c.Fetch.TimeoutSeconds)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.BreakerFailureRate <= 0 || c.Fetch.BreakerFailureRate > 1 {
		return fmt.Errorf("fetch.breaker_failure_rate must be in (0, 1], got %g", c.Fetch.BreakerFailureRate)
	}
	if c.Fetch.BreakerMinRequests <= 0 {
		return fmt.Errorf("fetch.breaker_min_requests must be positive, got %d", c.Fetch.BreakerMinRequests)
	}
	if c.Fetch.RatePerMinute <= 0 {
		return fmt.Errorf("fetch.rate_per_minute must be positive, got %d", c.Fetch.RatePerMinute)
	}
	if c.Cache.TTLFactor < 1 {
		return fmt.Errorf("cache.ttl_factor must be at least 1, got %g", c.Cache.TTLFactor)
	}
	for name, src := range map[string]SourceConfig{
		"pota":            c.Sources.POTA,
		"sota":            c.Sources.SOTA,
		"solar_noaa":      c.Sources.SolarNOAA,
		"solar_hamqsl":    c.Sources.SolarHamQSL,
		"band_conditions": c.Sources.BandConditions,
		"contests":        c.Sources.Contests,
		"meteor_showers":  c.Sources.MeteorShowers,
	} {
		if !src.Enabled {
			continue
		}
		if src.RefreshMinutes <= 0 {
			return fmt.Errorf("sources.%s.refresh_minutes must be positive, got %d", name, src.RefreshMinutes)
		}
		if src.URL == "" && name != "meteor_showers" {
			return fmt.Errorf("sources.%s.url is required when enabled", name)
		}
		if src.MaxRetries != nil && *src.MaxRetries < 0 {
			return fmt.Errorf("sources.%s.max_retries must not be negative, got %d", name, *src.MaxRetries)
		}
		if src.BreakerFailureRate != nil && (*src.BreakerFailureRate <= 0 || *src.BreakerFailureRate > 1) {
			return fmt.Errorf("sources.%s.breaker_failure_rate must be in (0, 1], got %g", name, *src.BreakerFailureRate)
		}
	}
	if c.Stream.Enabled {
		if c.Stream.Broker == "" {
			return fmt.Errorf("stream.broker is required when enabled")
		}
		if c.Stream.WindowMinutes <= 0 {
			return fmt.Errorf("stream.window_minutes must be positive, got %d", c.Stream.WindowMinutes)
		}
	}
	if c.Retention.SpotMaxAgeHours <= 0 {
		return fmt.Errorf("retention.spot_max_age_hours must be positive, got %d", c.Retention.SpotMaxAgeHours)
	}
	if c.Retention.SolarMaxAgeHours <= 0 {
		return fmt.Errorf("retention.solar_max_age_hours must be positive, got %d", c.Retention.SolarMaxAgeHours)
	}
	if c.Retention.EventMaxAgeDays <= 0 {
		return fmt.Errorf("retention.event_max_age_days must be positive, got %d", c.Retention.EventMaxAgeDays)
	}
	return nil
}
