package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/process"
	"github.com/Simplici0/printquote/internal/slicer"
)

const (
	defaultDBPath       = "./dev.db"
	defaultPort         = "8080"
	defaultAppEnv       = "development"
	defaultLogLevel     = "info"
	defaultCatalogDir   = "./catalogs"
	defaultUploadDir    = "./uploads"
	defaultMarkup       = 1.0
	defaultQuoteFileTTL = 24 * time.Hour
	defaultDeflection   = 0.1
	defaultStepTimeout  = 2 * time.Minute
)

// SlicerConfig configures the external slicing tool. Command is an argv
// template with {input}, {output} and {config} placeholders.
type SlicerConfig struct {
	Command []string
	Timeout time.Duration
	TempDir string
}

// StepConfig configures the external STEP tessellator.
type StepConfig struct {
	Command    []string
	Deflection float64
	Timeout    time.Duration
}

// Config holds application configuration sourced from defaults, an optional
// YAML file and environment variables, in increasing precedence.
type Config struct {
	AdminEmail    string
	AdminPassword string
	SessionSecret string
	DBPath        string
	Port          string
	AppEnv        string
	LogLevel      string

	CatalogDir   string
	UploadDir    string
	RedisAddr    string
	QuoteFileTTL time.Duration

	Markup     float64
	HourlyRate float64

	Slicer SlicerConfig
	Step   StepConfig

	Profiles    map[dfm.Technology]dfm.Profile
	Slicing     map[dfm.Technology]slicer.Settings
	RemovalRate float64

	// Warnings lists missing settings worth reporting once a logger exists.
	Warnings []string
}

// fileConfig is the YAML layout read from QUOTE_CONFIG.
type fileConfig struct {
	Pricing struct {
		Markup     *float64 `yaml:"markup"`
		HourlyRate *float64 `yaml:"hourly_rate"`
	} `yaml:"pricing"`
	Slicer struct {
		Command []string `yaml:"command"`
		Timeout string   `yaml:"timeout"`
		TempDir string   `yaml:"temp_dir"`
	} `yaml:"slicer"`
	StepConverter struct {
		Command    []string `yaml:"command"`
		Deflection float64  `yaml:"deflection"`
		Timeout    string   `yaml:"timeout"`
	} `yaml:"step_converter"`
	QuoteFiles struct {
		TTL       string `yaml:"ttl"`
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"quote_files"`
	Profiles map[string]yaml.Node `yaml:"profiles"`
	Slicing  map[string]struct {
		LayerHeightMM *float64 `yaml:"layer_height_mm"`
		Infill        *float64 `yaml:"infill"`
		Supports      *bool    `yaml:"supports"`
	} `yaml:"slicing"`
	CNC struct {
		RemovalRate float64 `yaml:"removal_rate_cm3_min"`
	} `yaml:"cnc"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:       defaultDBPath,
		Port:         defaultPort,
		AppEnv:       defaultAppEnv,
		LogLevel:     defaultLogLevel,
		CatalogDir:   defaultCatalogDir,
		UploadDir:    defaultUploadDir,
		QuoteFileTTL: defaultQuoteFileTTL,
		Markup:       defaultMarkup,
		Slicer:       SlicerConfig{Timeout: slicer.DefaultTimeout},
		Step:         StepConfig{Deflection: defaultDeflection, Timeout: defaultStepTimeout},
		Profiles:     map[dfm.Technology]dfm.Profile{},
		Slicing:      map[dfm.Technology]slicer.Settings{},
	}
}

// Load reads .env (best effort), the YAML file named by QUOTE_CONFIG and the
// environment, then validates the result.
func Load() (Config, error) {
	// Production injects real env; a missing .env is fine.
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("QUOTE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if cfg.AdminEmail == "" {
		cfg.Warnings = append(cfg.Warnings, "ADMIN_EMAIL is not set")
	}
	if cfg.AdminPassword == "" {
		cfg.Warnings = append(cfg.Warnings, "ADMIN_PASSWORD is not set")
	}
	if cfg.SessionSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "SESSION_SECRET is not set")
	}
	if len(cfg.Slicer.Command) == 0 {
		cfg.Warnings = append(cfg.Warnings, "SLICER_COMMAND is not set; 3D printing quotes cannot be costed")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Pricing.Markup != nil {
		c.Markup = *fc.Pricing.Markup
	}
	if fc.Pricing.HourlyRate != nil {
		c.HourlyRate = *fc.Pricing.HourlyRate
	}
	if len(fc.Slicer.Command) > 0 {
		c.Slicer.Command = fc.Slicer.Command
	}
	if fc.Slicer.TempDir != "" {
		c.Slicer.TempDir = fc.Slicer.TempDir
	}
	if err := setDuration(&c.Slicer.Timeout, fc.Slicer.Timeout, "slicer.timeout"); err != nil {
		return err
	}
	if len(fc.StepConverter.Command) > 0 {
		c.Step.Command = fc.StepConverter.Command
	}
	if fc.StepConverter.Deflection != 0 {
		c.Step.Deflection = fc.StepConverter.Deflection
	}
	if err := setDuration(&c.Step.Timeout, fc.StepConverter.Timeout, "step_converter.timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.QuoteFileTTL, fc.QuoteFiles.TTL, "quote_files.ttl"); err != nil {
		return err
	}
	if fc.QuoteFiles.RedisAddr != "" {
		c.RedisAddr = fc.QuoteFiles.RedisAddr
	}
	if fc.CNC.RemovalRate != 0 {
		c.RemovalRate = fc.CNC.RemovalRate
	}

	for name, node := range fc.Profiles {
		t := dfm.ParseTechnology(name)
		prof := dfm.DefaultProfile(t)
		if err := node.Decode(&prof); err != nil {
			return fmt.Errorf("parse profile %s: %w", name, err)
		}
		prof.Technology = t
		c.Profiles[t] = prof
	}
	for name, s := range fc.Slicing {
		t := dfm.ParseTechnology(name)
		settings := process.DefaultSlicing(t)
		if s.LayerHeightMM != nil {
			settings.LayerHeightMM = *s.LayerHeightMM
		}
		if s.Infill != nil {
			settings.Infill = *s.Infill
		}
		if s.Supports != nil {
			settings.Supports = *s.Supports
		}
		c.Slicing[t] = settings
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.AdminEmail, "ADMIN_EMAIL")
	setString(&c.AdminPassword, "ADMIN_PASSWORD")
	setString(&c.SessionSecret, "SESSION_SECRET")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.Port, "PORT")
	setString(&c.AppEnv, "APP_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.CatalogDir, "CATALOG_DIR")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.Slicer.TempDir, "SLICER_TEMP_DIR")

	if v := os.Getenv("SLICER_COMMAND"); v != "" {
		c.Slicer.Command = strings.Fields(v)
	}
	if v := os.Getenv("STEP_CONVERTER_COMMAND"); v != "" {
		c.Step.Command = strings.Fields(v)
	}

	return errors.Join(
		setDuration(&c.Slicer.Timeout, os.Getenv("SLICER_TIMEOUT"), "SLICER_TIMEOUT"),
		setDuration(&c.QuoteFileTTL, os.Getenv("QUOTE_FILE_TTL"), "QUOTE_FILE_TTL"),
		setFloat(&c.Markup, "MARKUP"),
		setFloat(&c.HourlyRate, "HOURLY_RATE"),
	)
}

// Validate rejects settings the pricing and slicing layers cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Markup < 1 {
		errs = append(errs, fmt.Errorf("markup must be at least 1.0, got %v", c.Markup))
	}
	if c.HourlyRate < 0 {
		errs = append(errs, fmt.Errorf("hourly rate must not be negative, got %v", c.HourlyRate))
	}
	if c.Slicer.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("slicer timeout must be positive, got %s", c.Slicer.Timeout))
	}
	if c.Step.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("step converter timeout must be positive, got %s", c.Step.Timeout))
	}
	if c.QuoteFileTTL <= 0 {
		errs = append(errs, fmt.Errorf("quote file ttl must be positive, got %s", c.QuoteFileTTL))
	}
	if c.RemovalRate < 0 {
		errs = append(errs, fmt.Errorf("cnc removal rate must not be negative, got %v", c.RemovalRate))
	}
	return errors.Join(errs...)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local":
		return true
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

// setDuration accepts Go durations ("90s", "5m") or bare seconds.
func setDuration(dst *time.Duration, raw, name string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if secs, err := cast.ToFloat64E(raw); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
