package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pikaboard/pikausage/internal/model"
	"github.com/pikaboard/pikausage/internal/pricing"
)

const (
	envListen     = "PIKAUSAGE_LISTEN"
	envDBPath     = "PIKAUSAGE_DB_PATH"
	envAgentRoots = "PIKAUSAGE_AGENT_ROOTS"

	maxDefaultWorkers = 8
)

// Config holds the server and CLI configuration
type Config struct {
	Listen          string        `yaml:"listen"`
	DBPath          string        `yaml:"db_path"`
	Timezone        string        `yaml:"timezone"`
	AgentRoots      []string      `yaml:"agent_roots"`
	CacheMaxAge     time.Duration `yaml:"cache_max_age"`
	Scan            ScanConfig    `yaml:"scan"`
	WarmSchedule    string        `yaml:"warm_schedule"`
	RefreshDebounce time.Duration `yaml:"refresh_debounce"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
	APIKeys         []APIKey      `yaml:"api_keys"`

	Pricing         map[string]model.PricingEntry `yaml:"pricing"`
	PricingFallback string                        `yaml:"pricing_fallback"`

	// Used by the CLI to fetch reports from a running server
	Server string `yaml:"server,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

// ScanConfig tunes the recompute worker pool
type ScanConfig struct {
	Workers int `yaml:"workers"`
}

// RateLimit is the per-IP request budget for the usage endpoints
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// APIKey is a named bcrypt hash of a key accepted by the server
type APIKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		DBPath:          "./pikausage.db",
		Timezone:        "Local",
		AgentRoots:      []string{"~/.openclaw/agents"},
		CacheMaxAge:     time.Minute,
		Scan:            ScanConfig{Workers: min(runtime.NumCPU(), maxDefaultWorkers)},
		WarmSchedule:    "@every 5m",
		RefreshDebounce: 2 * time.Second,
		RateLimit:       RateLimit{RPS: 5, Burst: 20},
		SessionLifetime: 7 * 24 * time.Hour,
	}
}

// DefaultPath returns the path to the per-user config file
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pikausage.yaml"), nil
}

// Load reads the config at path, or the per-user file when path is empty.
// A missing file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.AgentRoots = expandAll(cfg.AgentRoots)
	cfg.DBPath = expandHome(cfg.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, readable only by the owner
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envAgentRoots); v != "" {
		c.AgentRoots = filepath.SplitList(v)
	}
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if len(c.AgentRoots) == 0 {
		errs = append(errs, errors.New("agent_roots must not be empty"))
	}
	if c.CacheMaxAge <= 0 {
		errs = append(errs, errors.New("cache_max_age must be positive"))
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, errors.New("scan.workers must be at least 1"))
	}
	if c.RefreshDebounce < 0 {
		errs = append(errs, errors.New("refresh_debounce must not be negative"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit needs a positive rps and burst"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.WarmSchedule != "" {
		if _, err := cron.ParseStandard(c.WarmSchedule); err != nil {
			errs = append(errs, fmt.Errorf("warm_schedule: %w", err))
		}
	}
	for i, k := range c.APIKeys {
		if k.Hash == "" {
			errs = append(errs, fmt.Errorf("api_keys[%d] has no hash", i))
		}
	}
	if _, err := c.PricingTable(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location returns the timezone used for calendar windows
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PricingTable builds the embedded pricing table with the configured overrides
func (c *Config) PricingTable() (*pricing.Table, error) {
	return pricing.NewTable(pricing.WithOverrides(pricing.Embedded(), c.Pricing), c.PricingFallback)
}

func expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, expandHome(p))
		}
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
