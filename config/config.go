package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultRetentionDays       = 30
	defaultConcurrency         = 1
	defaultLoginTimeoutMin     = 4
	defaultSecondFactorTimeMin = 2
)

// ServiceConfig describes one external service the manager keeps a session
// alive for. Loaded once at start and immutable during a run.
type ServiceConfig struct {
	Enabled              bool     `toml:"enabled"`
	Strategy             string   `toml:"strategy"`
	ExpirationDays       int      `toml:"expiration_days"`
	WarningDays          int      `toml:"warning_days"`
	CriticalDays         int      `toml:"critical_days"`
	Priority             int      `toml:"priority"`
	AuthURL              string   `toml:"auth_url"`
	RequiresSecondFactor bool     `toml:"requires_second_factor"`
	Accounts             []string `toml:"accounts"`

	// Optional per-service overrides for the manual-wait budgets, in minutes.
	LoginTimeoutMinutes        int `toml:"login_timeout_minutes"`
	SecondFactorTimeoutMinutes int `toml:"second_factor_timeout_minutes"`

	// Headless controls whether the browser window is shown. Services that
	// rely on a human completing the login need a visible window.
	Headless bool `toml:"headless"`
}

// LoginTimeout returns the bounded wait for primary login completion.
func (s ServiceConfig) LoginTimeout() time.Duration {
	m := s.LoginTimeoutMinutes
	if m <= 0 {
		m = defaultLoginTimeoutMin
	}
	return time.Duration(m) * time.Minute
}

// SecondFactorTimeout returns the separate, typically shorter wait for the
// second factor. It is independent of the primary login budget so a stuck
// factor cannot absorb it.
func (s ServiceConfig) SecondFactorTimeout() time.Duration {
	m := s.SecondFactorTimeoutMinutes
	if m <= 0 {
		m = defaultSecondFactorTimeMin
	}
	return time.Duration(m) * time.Minute
}

// AccountList returns the configured accounts, or the single implicit
// account ("") when none are configured.
func (s ServiceConfig) AccountList() []string {
	if len(s.Accounts) == 0 {
		return []string{""}
	}
	return s.Accounts
}

// Config is the full credkeeper configuration.
type Config struct {
	StateDir      string `toml:"state_dir"`
	BackupDir     string `toml:"backup_dir"`
	ScreenshotDir string `toml:"screenshot_dir"`
	HistoryDB     string `toml:"history_db"`
	NotifyFile    string `toml:"notify_file"`
	RetentionDays int    `toml:"retention_days"`
	Concurrency   int    `toml:"concurrency"`

	Services map[string]ServiceConfig `toml:"services"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".credkeeper", "config.toml")
}

// Load reads, defaults, and validates the configuration file. A .env file
// next to the config file is loaded into the environment when present, so
// per-service credentials can live alongside the config without being
// committed to it.
func Load(path string) (*Config, error) {
	if envPath := filepath.Join(filepath.Dir(path), ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			log.Warn().Err(err).Str("path", envPath).Msg("Failed to load .env file")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.New(clierr.Configuration, fmt.Sprintf("failed to read config file %s", path), err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, clierr.New(clierr.Configuration, fmt.Sprintf("failed to parse config file %s", path), err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.StateDir == "" {
		c.StateDir = filepath.Join(baseDir, "state")
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(baseDir, "backups")
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = filepath.Join(baseDir, "screenshots")
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(baseDir, "history.db")
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
}

// Validate checks every service entry. Disabled services are validated too:
// a typo should surface immediately, not when the service is re-enabled.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return clierr.New(clierr.Configuration, "no services configured", nil)
	}
	if err := validation.ValidateConcurrency(c.Concurrency); err != nil {
		return clierr.New(clierr.Configuration, err.Error(), nil)
	}
	for name, svc := range c.Services {
		if err := validation.ValidateServiceName(name); err != nil {
			return clierr.New(clierr.Configuration, err.Error(), nil)
		}
		if err := validation.ValidateNonEmptyString("strategy for "+name, svc.Strategy); err != nil {
			return clierr.New(clierr.Configuration, err.Error(), nil)
		}
		if err := validation.ValidateNonEmptyString("auth_url for "+name, svc.AuthURL); err != nil {
			return clierr.New(clierr.Configuration, err.Error(), nil)
		}
		if err := validation.ValidateExpirationWindow(svc.ExpirationDays, svc.WarningDays, svc.CriticalDays); err != nil {
			return clierr.New(clierr.Configuration, fmt.Sprintf("service %s: %v", name, err), nil)
		}
	}
	return nil
}

// EnabledServices returns enabled service names ordered by priority
// (ascending: priority 1 refreshes first), then by name for a stable order.
func (c *Config) EnabledServices() []string {
	var names []string
	for name, svc := range c.Services {
		if svc.Enabled {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := c.Services[names[i]].Priority, c.Services[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// Credentials returns the externally supplied username and password for a
// service, read from CREDKEEPER_<SERVICE>_USERNAME / _PASSWORD. For
// multi-account services the account name is appended:
// CREDKEEPER_<SERVICE>_<ACCOUNT>_USERNAME. The core never stores plaintext
// credentials itself.
func Credentials(service, account string) (username, password string, err error) {
	prefix := EnvPrefix(service, account)
	username = os.Getenv(prefix + "_USERNAME")
	password = os.Getenv(prefix + "_PASSWORD")
	if username == "" || password == "" {
		return "", "", clierr.New(clierr.Configuration,
			fmt.Sprintf("missing credentials for %s: set %s_USERNAME and %s_PASSWORD", service, prefix, prefix), nil)
	}
	return username, password, nil
}

// EnvPrefix returns the environment variable prefix carrying a target's
// credentials: CREDKEEPER_<SERVICE> or CREDKEEPER_<SERVICE>_<ACCOUNT>.
func EnvPrefix(service, account string) string {
	prefix := "CREDKEEPER_" + envKey(service)
	if account != "" {
		prefix += "_" + envKey(account)
	}
	return prefix
}

func envKey(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
