package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/risk"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Redis     RedisConfig     `koanf:"redis"`
	PHI       PHIConfig       `koanf:"phi"`
	Risk      RiskConfig      `koanf:"risk"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

type CatalogConfig struct {
	// Path to a YAML catalog definition; empty selects the built-in catalog.
	Path string `koanf:"path"`
}

type LedgerConfig struct {
	// Backend selects the store: memory, sqlite or postgres.
	Backend     string        `koanf:"backend"`
	SQLitePath  string        `koanf:"sqlite_path"`
	DatabaseURL string        `koanf:"database_url"`
	Retention   time.Duration `koanf:"retention"`
}

type RedisConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

type PHIConfig struct {
	// ClassifierTimeout bounds each probabilistic classifier call; on
	// expiry detection degrades to deterministic-only output.
	ClassifierTimeout time.Duration `koanf:"classifier_timeout"`
}

type RiskConfig struct {
	Thresholds risk.Thresholds `koanf:"thresholds"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Ledger: LedgerConfig{
			Backend:    "sqlite",
			SQLitePath: "data/ledger.db",
			// Seven years, the longest retention any shipped regulation
			// requires.
			Retention: 7 * 365 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			CacheTTL:     15 * time.Minute,
		},
		PHI: PHIConfig{
			ClassifierTimeout: 2 * time.Second,
		},
		Risk: RiskConfig{
			Thresholds: risk.DefaultThresholds(),
		},
		Telemetry: TelemetryConfig{
			SamplingRate:  0.1,
			ExportTimeout: 30 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("CBHC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CBHC_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
