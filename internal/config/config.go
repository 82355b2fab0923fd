// Package config provides configuration loading and management for the sync server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ukasha007/mizuho-algolia/internal/telemetry"
)

const (
	// DefaultStatusDir is where per-unit status files are written
	DefaultStatusDir = "/var/lib/mizuho-sync/status"

	// DefaultPerPage is the page size requested from the content API
	DefaultPerPage = 100

	// DefaultSafetyThreshold is the maximum fraction of the index a single
	// reconciliation may delete
	DefaultSafetyThreshold = 0.6

	// DefaultSafetyBuffer is the fraction of the rate limit quota kept in
	// reserve by the request scheduler
	DefaultSafetyBuffer = 0.05
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Source configures the upstream content API
	Source SourceConfig `yaml:"source"`

	// Index configures the search index the content is synced into
	Index IndexConfig `yaml:"index"`

	// Units lists the sync units (collection, optionally region) to keep
	// in sync
	Units []UnitConfig `yaml:"units"`

	// SyncPolicy configures the periodic sync schedule
	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`

	// Scheduler configures the shared rate-limited request scheduler
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`

	// Reconcile configures orphan deletion
	Reconcile *ReconcileConfig `yaml:"reconcile,omitempty"`

	// Telemetry configures OpenTelemetry metrics export
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// StatusDir is the directory where per-unit status files are written
	StatusDir string `yaml:"statusDir,omitempty"`
}

// SourceConfig defines the upstream content API settings
type SourceConfig struct {
	// Endpoint is the base API URL (without path), e.g.
	// "https://content.example.com/api"
	Endpoint string `yaml:"endpoint"`

	// TokenFile is the path to a file containing the API token.
	// This is the recommended approach for production deployments.
	TokenFile string `yaml:"tokenFile,omitempty"`

	// PerPage is the page size requested from the content API
	PerPage int `yaml:"perPage,omitempty"`
}

// IndexConfig defines the search index settings
type IndexConfig struct {
	// Endpoint is the base URL of the index REST API
	Endpoint string `yaml:"endpoint"`

	// AppID is the application identifier sent with index requests
	AppID string `yaml:"appId,omitempty"`

	// IndexName is the name of the index the content is written to
	IndexName string `yaml:"indexName"`

	// APIKeyFile is the path to a file containing the index API key
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`
}

// UnitConfig defines a single sync unit
type UnitConfig struct {
	// Name is the identifier for this unit, used in status files and the API
	Name string `yaml:"name"`

	// Collection is the content collection this unit syncs
	Collection string `yaml:"collection"`

	// Region optionally narrows the unit to one region
	Region string `yaml:"region,omitempty"`

	// Priority orders this unit's requests in the scheduler queue.
	// Higher values are dispatched first.
	Priority int `yaml:"priority,omitempty"`
}

// SyncPolicyConfig defines synchronization settings
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// SchedulerConfig defines request scheduler settings
type SchedulerConfig struct {
	// SafetyBuffer is the fraction of the rate limit quota kept in reserve
	// (0.0 to 1.0). Defaults to 0.05.
	SafetyBuffer float64 `yaml:"safetyBuffer,omitempty"`

	// InterRequestDelay is the pause between dispatched requests,
	// e.g. "200ms"
	InterRequestDelay string `yaml:"interRequestDelay,omitempty"`

	// RetryBudget is the total number of attempts per request
	RetryBudget int `yaml:"retryBudget,omitempty"`
}

// ReconcileConfig defines orphan deletion settings
type ReconcileConfig struct {
	// SafetyThreshold is the maximum fraction of the index a single
	// reconciliation may delete (0.0 to 1.0). Defaults to 0.6.
	SafetyThreshold float64 `yaml:"safetyThreshold,omitempty"`

	// DryRun computes orphans without deleting them
	DryRun bool `yaml:"dryRun,omitempty"`
}

// GetToken returns the content API token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from MIZUHO_SOURCE_TOKEN environment variable
//
// The token from file will have leading/trailing whitespace trimmed.
func (s *SourceConfig) GetToken() (string, error) {
	if s.TokenFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(s.TokenFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", s.TokenFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envToken := os.Getenv("MIZUHO_SOURCE_TOKEN"); envToken != "" {
		return envToken, nil
	}

	return "", fmt.Errorf(
		"no source token configured: set tokenFile or MIZUHO_SOURCE_TOKEN environment variable",
	)
}

// GetPerPage returns the page size, using the default if not specified
func (s *SourceConfig) GetPerPage() int {
	if s.PerPage <= 0 {
		return DefaultPerPage
	}
	return s.PerPage
}

// GetAPIKey returns the index API key using the following priority:
// 1. Read from APIKeyFile if specified
// 2. Read from MIZUHO_INDEX_API_KEY environment variable
func (i *IndexConfig) GetAPIKey() (string, error) {
	if i.APIKeyFile != "" {
		cleanPath := filepath.Clean(i.APIKeyFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read API key from file %s: %w", i.APIKeyFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envKey := os.Getenv("MIZUHO_INDEX_API_KEY"); envKey != "" {
		return envKey, nil
	}

	return "", fmt.Errorf(
		"no index API key configured: set apiKeyFile or MIZUHO_INDEX_API_KEY environment variable",
	)
}

// GetStatusDir returns the status directory, using the default if not specified
func (c *Config) GetStatusDir() string {
	if c.StatusDir == "" {
		return DefaultStatusDir
	}
	return c.StatusDir
}

// GetSafetyThreshold returns the reconcile safety threshold, using the
// default if not configured
func (c *Config) GetSafetyThreshold() float64 {
	if c.Reconcile == nil || c.Reconcile.SafetyThreshold == 0 {
		return DefaultSafetyThreshold
	}
	return c.Reconcile.SafetyThreshold
}

// GetSafetyBuffer returns the scheduler safety buffer, using the default
// if not configured
func (c *Config) GetSafetyBuffer() float64 {
	if c.Scheduler == nil || c.Scheduler.SafetyBuffer == 0 {
		return DefaultSafetyBuffer
	}
	return c.Scheduler.SafetyBuffer
}

// GetUnit returns the unit with the given name, or nil if not configured
func (c *Config) GetUnit(name string) *UnitConfig {
	for i := range c.Units {
		if c.Units[i].Name == name {
			return &c.Units[i]
		}
	}
	return nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Source.Endpoint == "" {
		return fmt.Errorf("source.endpoint is required")
	}

	if c.Index.Endpoint == "" {
		return fmt.Errorf("index.endpoint is required")
	}
	if c.Index.IndexName == "" {
		return fmt.Errorf("index.indexName is required")
	}

	if len(c.Units) == 0 {
		return fmt.Errorf("at least one sync unit must be configured")
	}

	unitNames := make(map[string]bool)
	for i, unit := range c.Units {
		if err := validateUnitConfig(&unit, i); err != nil {
			return err
		}

		if unitNames[unit.Name] {
			return fmt.Errorf("unit[%d]: duplicate unit name '%s'", i, unit.Name)
		}
		unitNames[unit.Name] = true
	}

	if err := validateSyncPolicy(c.SyncPolicy); err != nil {
		return err
	}

	if err := validateScheduler(c.Scheduler); err != nil {
		return err
	}

	if err := validateReconcile(c.Reconcile); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

// validateUnitConfig validates a single unit configuration
func validateUnitConfig(unit *UnitConfig, index int) error {
	prefix := fmt.Sprintf("unit[%d]", index)

	if unit.Name == "" {
		return fmt.Errorf("%s: name is required", prefix)
	}
	if unit.Collection == "" {
		return fmt.Errorf("%s (%s): collection is required", prefix, unit.Name)
	}
	if unit.Priority < 0 {
		return fmt.Errorf("%s (%s): priority must not be negative", prefix, unit.Name)
	}

	return nil
}

// validateSyncPolicy validates the sync policy configuration
func validateSyncPolicy(policy *SyncPolicyConfig) error {
	if policy == nil || policy.Interval == "" {
		// No policy means no periodic sync, only manual triggers
		return nil
	}

	if _, err := time.ParseDuration(policy.Interval); err != nil {
		return fmt.Errorf("syncPolicy.interval must be a valid duration (e.g., '30m', '1h'): %w", err)
	}

	return nil
}

// validateScheduler validates the request scheduler configuration
func validateScheduler(sched *SchedulerConfig) error {
	if sched == nil {
		return nil
	}

	if sched.SafetyBuffer < 0 || sched.SafetyBuffer > 1.0 {
		return fmt.Errorf("scheduler.safetyBuffer must be between 0.0 and 1.0, got %f", sched.SafetyBuffer)
	}

	if sched.InterRequestDelay != "" {
		if _, err := time.ParseDuration(sched.InterRequestDelay); err != nil {
			return fmt.Errorf("scheduler.interRequestDelay must be a valid duration (e.g., '200ms'): %w", err)
		}
	}

	if sched.RetryBudget < 0 {
		return fmt.Errorf("scheduler.retryBudget must not be negative, got %d", sched.RetryBudget)
	}

	return nil
}

// validateReconcile validates the reconcile configuration
func validateReconcile(rec *ReconcileConfig) error {
	if rec == nil {
		return nil
	}

	if rec.SafetyThreshold < 0 || rec.SafetyThreshold > 1.0 {
		return fmt.Errorf("reconcile.safetyThreshold must be between 0.0 and 1.0, got %f", rec.SafetyThreshold)
	}

	return nil
}
