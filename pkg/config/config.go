package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scheduler holds the runtime tunables for the ride scheduler. Values come
// from the defaults below, optionally overridden by a YAML file pointed at by
// RAILWATCH_CONFIG.
type Scheduler struct {
	PollInterval    time.Duration
	GraceWindow     time.Duration
	MaxFutureWindow time.Duration
	StatusCacheTTL  time.Duration

	EventQueue string
}

type rawScheduler struct {
	PollInterval    string `yaml:"poll_interval"`
	GraceWindow     string `yaml:"grace_window"`
	MaxFutureWindow string `yaml:"max_future_window"`
	StatusCacheTTL  string `yaml:"status_cache_ttl"`
	EventQueue      string `yaml:"event_queue"`
}

func Defaults() Scheduler {
	return Scheduler{
		PollInterval:    2 * time.Minute,
		GraceWindow:     30 * time.Minute,
		MaxFutureWindow: 48 * time.Hour,
		StatusCacheTTL:  1 * time.Minute,

		EventQueue: "ride-events",
	}
}

// Load returns the defaults merged with the YAML file at path. An empty path
// falls back to RAILWATCH_CONFIG, and no file at all just means defaults.
func Load(path string) (Scheduler, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("RAILWATCH_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var raw rawScheduler
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, err
	}

	if err := applyDuration(&cfg.PollInterval, raw.PollInterval, "poll_interval"); err != nil {
		return cfg, err
	}
	if err := applyDuration(&cfg.GraceWindow, raw.GraceWindow, "grace_window"); err != nil {
		return cfg, err
	}
	if err := applyDuration(&cfg.MaxFutureWindow, raw.MaxFutureWindow, "max_future_window"); err != nil {
		return cfg, err
	}
	if err := applyDuration(&cfg.StatusCacheTTL, raw.StatusCacheTTL, "status_cache_ttl"); err != nil {
		return cfg, err
	}
	if raw.EventQueue != "" {
		cfg.EventQueue = raw.EventQueue
	}

	return cfg, cfg.Validate()
}

func (s Scheduler) Validate() error {
	if s.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if s.GraceWindow <= 0 {
		return errors.New("grace_window must be positive")
	}
	if s.MaxFutureWindow <= s.GraceWindow {
		return errors.New("max_future_window must be larger than grace_window")
	}
	if s.EventQueue == "" {
		return errors.New("event_queue must be set")
	}

	return nil
}

func applyDuration(target *time.Duration, value string, field string) error {
	if value == "" {
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}

	*target = parsed
	return nil
}
