package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GEOAGG_"

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "GEOAGG_CONFIG"

// Config holds all settings shared by the CLI and the HTTP service.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Aggregation policy.
	JoinMode        string `koanf:"join_mode"`
	Alignment       string `koanf:"alignment"`
	UnassignedLabel string `koanf:"unassigned_label"`

	// Geography input. An empty GeoPath selects the embedded zone set.
	GeoPath        string `koanf:"geo_path"`
	ZoneLabelField string `koanf:"zone_label_field"`
	ZoneCacheSize  int    `koanf:"zone_cache_size"`

	// Linelist column names.
	ColumnDate      string `koanf:"column_date"`
	ColumnCategory  string `koanf:"column_category"`
	ColumnLatitude  string `koanf:"column_latitude"`
	ColumnLongitude string `koanf:"column_longitude"`
	ColumnSpecies   string `koanf:"column_species"`

	// HTTP service.
	HTTPAddr        string        `koanf:"http_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`

	// Optional sinks; each is disabled while its setting is empty.
	KafkaBrokers string `koanf:"kafka_brokers"` // comma-separated
	KafkaTopic   string `koanf:"kafka_topic"`
	PostgresDSN  string `koanf:"postgres_dsn"`
	MetricsFile  string `koanf:"metrics_file"`
}

func defaults() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "json",
		JoinMode:        "inner",
		Alignment:       "rolling-from-start",
		UnassignedLabel: domain.DefaultUnassignedLabel,
		ZoneLabelField:  "label",
		ZoneCacheSize:   4096,
		ColumnDate:      "consult_date",
		ColumnCategory:  "mpc",
		ColumnLatitude:  "owner_latitude",
		ColumnLongitude: "owner_longitude",
		ColumnSpecies:   "species",
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  64 << 20,
		KafkaTopic:      "weekly-counts",
	}
}

// Load layers defaults, the optional YAML file named by GEOAGG_CONFIG, and
// GEOAGG_* environment variables, lowest precedence first.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting. Errors name the offending key.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: invalid log_level %q", domain.ErrConfiguration, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: invalid log_format %q", domain.ErrConfiguration, c.LogFormat)
	}
	if _, err := domain.ParseJoinMode(c.JoinMode); err != nil {
		return fmt.Errorf("join_mode: %w", err)
	}
	if _, err := domain.ParseAlignment(c.Alignment); err != nil {
		return fmt.Errorf("alignment: %w", err)
	}

	required := []struct{ key, value string }{
		{"unassigned_label", c.UnassignedLabel},
		{"zone_label_field", c.ZoneLabelField},
		{"column_date", c.ColumnDate},
		{"column_category", c.ColumnCategory},
		{"column_latitude", c.ColumnLatitude},
		{"column_longitude", c.ColumnLongitude},
		{"http_addr", c.HTTPAddr},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrConfiguration, r.key)
		}
	}

	if c.ZoneCacheSize < 0 {
		return fmt.Errorf("%w: zone_cache_size must not be negative", domain.ErrConfiguration)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", domain.ErrConfiguration)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", domain.ErrConfiguration)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", domain.ErrConfiguration)
	}
	return nil
}

// Brokers splits KafkaBrokers, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AggregateOptions builds the run options for the given category list.
// Per-run overrides for join mode and alignment take precedence when non-empty.
func (c *Config) AggregateOptions(categories []string, joinMode, alignment string) (domain.Options, error) {
	if joinMode == "" {
		joinMode = c.JoinMode
	}
	if alignment == "" {
		alignment = c.Alignment
	}
	mode, err := domain.ParseJoinMode(joinMode)
	if err != nil {
		return domain.Options{}, err
	}
	align, err := domain.ParseAlignment(alignment)
	if err != nil {
		return domain.Options{}, err
	}
	if err := domain.ValidateCategories(categories); err != nil {
		return domain.Options{}, err
	}
	return domain.Options{
		Categories: categories,
		Join:       domain.JoinOptions{Mode: mode, UnassignedLabel: c.UnassignedLabel},
		Alignment:  align,
	}, nil
}
