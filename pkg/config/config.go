// Package config loads the YAML configuration, applies SUPPLIER_INGEST_*
// environment overrides and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hazyhaar/supplier-ingest/pkg/attr"
	"github.com/hazyhaar/supplier-ingest/pkg/category"
	"github.com/hazyhaar/supplier-ingest/pkg/dedupe"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SUPPLIER_INGEST_"

// Config is the process configuration.
type Config struct {
	Addr         string `yaml:"addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	ProfilesFile string `yaml:"profiles_file"`
	Workers      int    `yaml:"workers" validate:"min=1"`
	OutputDir    string `yaml:"output_dir"`
	Format       string `yaml:"format" validate:"oneof=csv json sqlite"`
	LedgerDB     string `yaml:"ledger_db"`
	LogLevel     string `yaml:"log_level"`
	Compare      string `yaml:"compare" validate:"oneof=fold lower none"`

	Thresholds Thresholds `yaml:"thresholds"`
	Watch      Watch      `yaml:"watch"`

	// Optional replacements for the built-in tables.
	AttributePatterns []attr.PatternSpec `yaml:"attribute_patterns"`
	CategoryRules     []category.Rule    `yaml:"category_rules"`
}

// Thresholds are the similarity cutoffs. Zero selects the default.
type Thresholds struct {
	Category  float64 `yaml:"category" validate:"gte=0,lte=1"`
	Duplicate float64 `yaml:"duplicate" validate:"gte=0,lte=1"`
}

// Watch configures inbox polling.
type Watch struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Addr:        ":8430",
		MetricsAddr: "",
		Workers:     4,
		OutputDir:   "out",
		Format:      "json",
		LedgerDB:    "ledger.db",
		LogLevel:    "info",
		Compare:     "lower",
		Thresholds: Thresholds{
			Category:  category.DefaultThreshold,
			Duplicate: dedupe.DefaultThreshold,
		},
		Watch: Watch{Dir: "inbox", Interval: 5 * time.Minute},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// returned bool reports whether the file existed. A .env file in the
// working directory, when present, is loaded before overrides apply.
func Load(path string) (Config, bool, error) {
	cfg := Default()
	found := false

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return cfg, true, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg = mergeConfig(cfg, fileCfg)
			found = true
		case !errors.Is(err, os.ErrNotExist):
			return cfg, false, fmt.Errorf("read config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, found, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, found, err
	}
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.Compare = strings.ToLower(cfg.Compare)
	return cfg, found, cfg.Validate()
}

func mergeConfig(base, override Config) Config {
	if override.Addr != "" {
		base.Addr = override.Addr
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.ProfilesFile != "" {
		base.ProfilesFile = override.ProfilesFile
	}
	if override.Workers != 0 {
		base.Workers = override.Workers
	}
	if override.OutputDir != "" {
		base.OutputDir = override.OutputDir
	}
	if override.Format != "" {
		base.Format = override.Format
	}
	if override.LedgerDB != "" {
		base.LedgerDB = override.LedgerDB
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.Compare != "" {
		base.Compare = override.Compare
	}
	if override.Thresholds.Category != 0 {
		base.Thresholds.Category = override.Thresholds.Category
	}
	if override.Thresholds.Duplicate != 0 {
		base.Thresholds.Duplicate = override.Thresholds.Duplicate
	}
	if override.Watch.Dir != "" {
		base.Watch.Dir = override.Watch.Dir
	}
	if override.Watch.Interval != 0 {
		base.Watch.Interval = override.Watch.Interval
	}
	if len(override.AttributePatterns) > 0 {
		base.AttributePatterns = override.AttributePatterns
	}
	if len(override.CategoryRules) > 0 {
		base.CategoryRules = override.CategoryRules
	}
	return base
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"ADDR":          &cfg.Addr,
		"METRICS_ADDR":  &cfg.MetricsAddr,
		"PROFILES_FILE": &cfg.ProfilesFile,
		"OUTPUT_DIR":    &cfg.OutputDir,
		"FORMAT":        &cfg.Format,
		"LEDGER_DB":     &cfg.LedgerDB,
		"LOG_LEVEL":     &cfg.LogLevel,
		"COMPARE":       &cfg.Compare,
		"WATCH_DIR":     &cfg.Watch.Dir,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		cfg.Workers = n
	}
	floats := map[string]*float64{
		"CATEGORY_THRESHOLD":  &cfg.Thresholds.Category,
		"DUPLICATE_THRESHOLD": &cfg.Thresholds.Duplicate,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "WATCH_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sWATCH_INTERVAL: %w", EnvPrefix, err)
		}
		cfg.Watch.Interval = d
	}
	return nil
}

var validate = validator.New()

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PipelineOptions maps the configuration onto pipeline options.
func (c Config) PipelineOptions(logger *slog.Logger, obs pipeline.Observer) pipeline.Options {
	return pipeline.Options{
		Workers:            c.Workers,
		CategoryThreshold:  c.Thresholds.Category,
		DuplicateThreshold: c.Thresholds.Duplicate,
		Compare:            c.Compare,
		Patterns:           c.AttributePatterns,
		Rules:              c.CategoryRules,
		Logger:             logger,
		Observer:           obs,
	}
}

// NewLogger builds the stderr text logger for level.
func NewLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromString(level)}))
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
