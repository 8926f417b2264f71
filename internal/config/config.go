// Package config provides configuration management for the schedule scraper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"hacktown/internal/profile"
	"hacktown/pkg/utils"
)

// DatePlaceholder is replaced by the target date in api.date_values.
const DatePlaceholder = "{date}"

// Configuration validation errors.
var (
	ErrNoDates          = errors.New("at least one date is required")
	ErrDuplicateDate    = errors.New("dates must be unique")
	ErrInvalidBaseURL   = errors.New("api.base_url must be an absolute http(s) URL")
	ErrMissingDateValue = errors.New("api.date_values must reference " + DatePlaceholder)
	ErrInvalidTimezone  = errors.New("timezone is not a known IANA zone")
	ErrInvalidSchedule  = errors.New("schedule is not a valid cron expression")
	ErrInvalidLogLevel  = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat = errors.New("logging.format must be 'text' or 'json'")
)

// Config represents the complete scraper configuration.
type Config struct {
	Profiles         ProfilesConfig `yaml:"profiles"`
	Timezone         string         `yaml:"timezone"          validate:"required"`
	LocationsFile    string         `yaml:"locations_file"    validate:"required"`
	FallbackLocation string         `yaml:"fallback_location" validate:"required"`
	Schedule         string         `yaml:"schedule"`
	Logging          LoggingConfig  `yaml:"logging"`
	Output           OutputConfig   `yaml:"output"`
	Dates            []string       `yaml:"dates"             validate:"dive,datetime=2006-01-02"`
	API              APIConfig      `yaml:"api"`
}

// APIConfig describes the upstream schedules endpoint.
type APIConfig struct {
	Params     map[string]string `yaml:"params"`
	Headers    map[string]string `yaml:"headers"`
	BaseURL    string            `yaml:"base_url"    validate:"required,url"`
	DateParam  string            `yaml:"date_param"  validate:"required"`
	PageParam  string            `yaml:"page_param"  validate:"required"`
	UserAgent  string            `yaml:"user_agent"`
	WarmupURL  string            `yaml:"warmup_url"  validate:"omitempty,url"`
	DateValues []string          `yaml:"date_values" validate:"required,min=1"`
	MaxBodyKB  int               `yaml:"max_body_kb" validate:"gte=1"`
	MaxPages   int               `yaml:"max_pages"   validate:"gte=1"`
}

// OutputConfig defines where and how artifacts are written.
type OutputConfig struct {
	Dir            string `yaml:"dir"             validate:"required"`
	SchedulePrefix string `yaml:"schedule_prefix" validate:"required"`
	CalendarName   string `yaml:"calendar_name"`
	PrettyPrint    bool   `yaml:"pretty_print"`
	Calendar       bool   `yaml:"calendar"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProfilesConfig holds overrides for both throttling profiles.
type ProfilesConfig struct {
	Automated ProfileConfig `yaml:"automated"`
	Local     ProfileConfig `yaml:"local"`
}

// ProfileConfig is the YAML form of a profile.Profile.
type ProfileConfig struct {
	MaxConcurrentRequests int     `yaml:"max_concurrent_requests"`
	BaseRetryDelayMs      int     `yaml:"base_retry_delay_ms"`
	MaxRetries            int     `yaml:"max_retries"`
	RequestTimeoutSec     int     `yaml:"request_timeout_sec"`
	MinRequestDelayMs     int     `yaml:"min_request_delay_ms"`
	MaxRequestDelayMs     int     `yaml:"max_request_delay_ms"`
	RateLimitMultiplier   float64 `yaml:"rate_limit_multiplier"`
	JitterFraction        float64 `yaml:"jitter_fraction"`
}

// DefaultConfig returns the built-in configuration for the HackTown 2025 schedule.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://hacktown-2025-ss-v2.api.yazo.com.br/public/schedules",
			DateParam:  "day[]",
			DateValues: []string{DatePlaceholder, "00:00:00.000Z"},
			PageParam:  "page",
			Params: map[string]string{
				"category_id": "42",
				"tag_ids":     "[]",
				"search":      "",
				"product_ids": "[2]",
			},
			Headers: map[string]string{
				"Accept":             "application/json, text/plain, */*",
				"Origin":             "https://hacktown2025.yazo.app.br",
				"Referer":            "https://hacktown2025.yazo.app.br/",
				"Product-Identifier": "1",
				"X-Requested-With":   "XMLHttpRequest",
			},
			WarmupURL: "https://hacktown2025.yazo.app.br/",
			MaxBodyKB: 4096,
			MaxPages:  50,
		},
		Dates: []string{
			"2025-07-30",
			"2025-07-31",
			"2025-08-01",
			"2025-08-02",
			"2025-08-03",
		},
		Timezone:         "America/Sao_Paulo",
		LocationsFile:    "locations_config.json",
		FallbackLocation: "Other",
		Output: OutputConfig{
			Dir:            "events",
			SchedulePrefix: "hacktown_events_",
			PrettyPrint:    true,
			Calendar:       true,
			CalendarName:   "HackTown 2025",
		},
		Profiles: ProfilesConfig{
			Automated: FromProfile(profile.DefaultAutomated()),
			Local:     FromProfile(profile.DefaultLocal()),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. Keys absent from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration as YAML, replacing path atomically.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}

	if len(c.Dates) == 0 {
		return ErrNoDates
	}

	seen := make(map[string]bool, len(c.Dates))
	for _, d := range c.Dates {
		if seen[d] {
			return fmt.Errorf("%w: %s", ErrDuplicateDate, d)
		}

		seen[d] = true
	}

	if !utils.NewHTTPHelper().IsValidURL(c.API.BaseURL) {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.API.BaseURL)
	}

	hasPlaceholder := false

	for _, v := range c.API.DateValues {
		if strings.Contains(v, DatePlaceholder) {
			hasPlaceholder = true
		}
	}

	if !hasPlaceholder {
		return ErrMissingDateValue
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	profiles := c.ProfileSet()
	if err := profiles.Automated.Validate(); err != nil {
		return fmt.Errorf("profiles.automated: %w", err)
	}

	if err := profiles.Local.Validate(); err != nil {
		return fmt.Errorf("profiles.local: %w", err)
	}

	return nil
}

// Location returns the event time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, c.Timezone, err)
	}

	return loc, nil
}

// ProfileSet converts the YAML profile sections into a profile.Set.
func (c *Config) ProfileSet() profile.Set {
	automated := c.Profiles.Automated.ToProfile()
	automated.Kind = profile.Automated

	local := c.Profiles.Local.ToProfile()
	local.Kind = profile.Local

	return profile.Set{Automated: automated, Local: local}
}

// ToProfile converts the YAML form into a profile.Profile.
func (pc ProfileConfig) ToProfile() profile.Profile {
	return profile.Profile{
		MaxConcurrentRequests: pc.MaxConcurrentRequests,
		BaseRetryDelay:        time.Duration(pc.BaseRetryDelayMs) * time.Millisecond,
		MaxRetries:            pc.MaxRetries,
		RequestTimeout:        time.Duration(pc.RequestTimeoutSec) * time.Second,
		MinRequestDelay:       time.Duration(pc.MinRequestDelayMs) * time.Millisecond,
		MaxRequestDelay:       time.Duration(pc.MaxRequestDelayMs) * time.Millisecond,
		RateLimitMultiplier:   pc.RateLimitMultiplier,
		JitterFraction:        pc.JitterFraction,
	}
}

// FromProfile converts a profile.Profile into its YAML form.
func FromProfile(p profile.Profile) ProfileConfig {
	return ProfileConfig{
		MaxConcurrentRequests: p.MaxConcurrentRequests,
		BaseRetryDelayMs:      int(p.BaseRetryDelay / time.Millisecond),
		MaxRetries:            p.MaxRetries,
		RequestTimeoutSec:     int(p.RequestTimeout / time.Second),
		MinRequestDelayMs:     int(p.MinRequestDelay / time.Millisecond),
		MaxRequestDelayMs:     int(p.MaxRequestDelay / time.Millisecond),
		RateLimitMultiplier:   p.RateLimitMultiplier,
		JitterFraction:        p.JitterFraction,
	}
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Dates: %d, API: %s, Output: %s}",
		len(c.Dates),
		c.API.BaseURL,
		c.Output.Dir,
	)
}
