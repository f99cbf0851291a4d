// Package config provides configuration loading for consolesync.
//
// Configuration is loaded from a single YAML file specified by:
//   - CONSOLESYNC_CONFIG environment variable, or
//   - --config flag passed to the command
//
// Secrets may instead come from the environment: CONSOLESYNC_ACCESS_TOKEN,
// CONSOLESYNC_SUPABASE_KEY and CONSOLESYNC_REDIS_URL override the matching
// file values when set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/resource"
)

// Backend selects the remote.API implementation.
type Backend string

const (
	// BackendREST talks to the console HTTP API.
	BackendREST Backend = "rest"
	// BackendSupabase reads and writes the console tables directly.
	BackendSupabase Backend = "supabase"
)

// Config is the consolesync configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Cache     CacheConfig     `yaml:"cache"`
	Selection SelectionConfig `yaml:"selection"`
	Views     ViewsConfig     `yaml:"views"`
	Logging   LoggingConfig   `yaml:"logging"`

	// User is the authenticated user. Authentication itself happens
	// outside consolesync; the CLI takes the result from here.
	User IdentityConfig `yaml:"identity"`
}

// BackendConfig configures the remote API.
type BackendConfig struct {
	// Type is "rest" or "supabase". Default: rest
	Type     Backend        `yaml:"type"`
	REST     RESTConfig     `yaml:"rest"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// RESTConfig configures the HTTP backend.
type RESTConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	// Timeout bounds each request. Default: 30s
	Timeout string `yaml:"timeout"`
}

// SupabaseConfig configures the direct table backend.
type SupabaseConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	// MetadataTTL is how long organization metadata is reused. Default: 5m
	MetadataTTL string `yaml:"metadata_ttl"`
}

// CacheConfig configures the resource cache.
type CacheConfig struct {
	// DedupeInterval is how long a fetched value is served without a
	// request. "0s" turns reuse off. Default: 2s
	DedupeInterval string `yaml:"dedupe_interval"`
}

// SelectionConfig configures where the current selection is persisted.
type SelectionConfig struct {
	// Store is "sqlite", "redis" or "memory". A memory store forgets the
	// selection when the process exits. Default: sqlite
	Store string `yaml:"store"`
	// Path of the sqlite database. Default: <user config dir>/consolesync/selection.db
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	TTL       string `yaml:"ttl"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ViewsConfig configures the table views.
type ViewsConfig struct {
	// PageSize of the session and task tables. Default: 10
	PageSize int `yaml:"page_size"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`
	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// IdentityConfig describes the authenticated user.
type IdentityConfig struct {
	UserID      string             `yaml:"user_id"`
	Email       string             `yaml:"email"`
	Memberships []MembershipConfig `yaml:"memberships"`
}

// MembershipConfig is one organization membership, in enumeration order.
type MembershipConfig struct {
	OrgID   string `yaml:"org_id"`
	OrgName string `yaml:"org_name"`
	Role    string `yaml:"role"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Type: BackendREST,
			REST: RESTConfig{Timeout: "30s"},
			Supabase: SupabaseConfig{
				MetadataTTL: "5m",
			},
		},
		Cache: CacheConfig{DedupeInterval: "2s"},
		Selection: SelectionConfig{
			Store:     "sqlite",
			TTL:       "720h",
			KeyPrefix: "consolesync:selection:",
		},
		Views:   ViewsConfig{PageSize: 10},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from the CONSOLESYNC_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("CONSOLESYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONSOLESYNC_CONFIG environment variable not set; " +
			"set it to the path of your consolesync.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, then applies
// environment overrides for secrets.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CONSOLESYNC_ACCESS_TOKEN"); v != "" {
		c.Backend.REST.AccessToken = v
	}
	if v := os.Getenv("CONSOLESYNC_SUPABASE_KEY"); v != "" {
		c.Backend.Supabase.APIKey = v
	}
	if v := os.Getenv("CONSOLESYNC_REDIS_URL"); v != "" {
		c.Selection.RedisURL = v
	}
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Type {
	case BackendREST:
		if c.Backend.REST.BaseURL == "" {
			errs = append(errs, fmt.Errorf("backend.rest.base_url is required"))
		}
	case BackendSupabase:
		if c.Backend.Supabase.URL == "" {
			errs = append(errs, fmt.Errorf("backend.supabase.url is required"))
		}
		if c.Backend.Supabase.APIKey == "" {
			errs = append(errs, fmt.Errorf("backend.supabase.api_key is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend.type: %q", c.Backend.Type))
	}

	for name, value := range map[string]string{
		"backend.rest.timeout":          c.Backend.REST.Timeout,
		"backend.supabase.metadata_ttl": c.Backend.Supabase.MetadataTTL,
		"cache.dedupe_interval":         c.Cache.DedupeInterval,
		"selection.ttl":                 c.Selection.TTL,
	} {
		if _, err := parseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	switch c.Selection.Store {
	case "sqlite", "memory", "":
	case "redis":
		if c.Selection.RedisURL == "" {
			errs = append(errs, fmt.Errorf("selection.redis_url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid selection.store: %q", c.Selection.Store))
	}

	if c.Views.PageSize < 0 {
		errs = append(errs, fmt.Errorf("views.page_size must not be negative"))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("invalid logging.format: %q", f))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", consolesync.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RESTTimeout returns backend.rest.timeout, or zero when unset.
func (c *Config) RESTTimeout() time.Duration {
	d, _ := parseDuration(c.Backend.REST.Timeout)
	return d
}

// MetadataTTL returns backend.supabase.metadata_ttl.
func (c *Config) MetadataTTL() time.Duration {
	d, _ := parseDuration(c.Backend.Supabase.MetadataTTL)
	return d
}

// DedupeInterval returns cache.dedupe_interval as a resource.Config value:
// zero when unset, resource.NoDedupe when explicitly zero.
func (c *Config) DedupeInterval() time.Duration {
	d, _ := parseDuration(c.Cache.DedupeInterval)
	if d == 0 && c.Cache.DedupeInterval != "" {
		return resource.NoDedupe
	}
	return d
}

// SelectionTTL returns selection.ttl.
func (c *Config) SelectionTTL() time.Duration {
	d, _ := parseDuration(c.Selection.TTL)
	return d
}

// SelectionPath returns selection.path, or the default database location
// under the user's config directory.
func (c *Config) SelectionPath() string {
	if c.Selection.Path != "" {
		return c.Selection.Path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".consolesync", "selection.db")
	}
	return filepath.Join(dir, "consolesync", "selection.db")
}

// PersistsSelection reports whether the selection outlives the process.
func (c *Config) PersistsSelection() bool {
	return c.Selection.Store != "memory"
}

// Identity converts the identity section.
func (c *Config) Identity() *consolesync.Identity {
	if c.User.UserID == "" {
		return nil
	}
	identity := &consolesync.Identity{UserID: c.User.UserID, Email: c.User.Email}
	for _, m := range c.User.Memberships {
		identity.Memberships = append(identity.Memberships, consolesync.Membership{
			OrgID: m.OrgID, OrgName: m.OrgName, Role: m.Role,
		})
	}
	return identity
}

// NewLogger builds the process logger described by the logging section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Logging.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid logging.level: %q", s)
	}
	return level, nil
}
