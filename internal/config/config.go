// Package config provides centralized configuration for the wallet ledger
// daemon: lock timeouts and retry policy, CAS retry policy, worker pool
// size, minimum transfer amount, and connection strings. Other settings,
// such as the Redis client's pool size and timeouts and the HTTP server's
// timeouts, are fixed in the packages that use them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the walletd daemon.
type Config struct {
	// Storage holds durable ledger store settings.
	Storage StorageConfig `yaml:"storage"`

	// Cache holds the shared cache/lease store connection settings.
	Cache CacheConfig `yaml:"cache"`

	// Lock holds the two-level lock manager's tunables.
	Lock LockConfig `yaml:"lock"`

	// Transfer holds the transfer engine's tunables.
	Transfer TransferConfig `yaml:"transfer"`

	// API holds the HTTP surface settings.
	API APIConfig `yaml:"api"`

	// Logging holds logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds durable ledger store settings.
type StorageConfig struct {
	// DataDir is the directory for the SQLite ledger database.
	DataDir string `yaml:"data_dir"`
}

// CacheConfig holds Redis connection settings for the cache layer and the
// lock manager's shared leases (they share one connection pool).
type CacheConfig struct {
	// Addr is the Redis server address, e.g. "127.0.0.1:6379".
	Addr string `yaml:"addr"`

	// Password is the Redis AUTH password, empty if unauthenticated.
	Password string `yaml:"password"`

	// DB selects the Redis logical database index.
	DB int `yaml:"db"`
}

// LockConfig holds the two-level lock manager's timeouts and retry policy.
type LockConfig struct {
	// AppLockTimeout bounds acquisition of the in-process mutex (T_app).
	AppLockTimeout time.Duration `yaml:"app_lock_timeout"`

	// LeaseTTL is how long a shared-store lease is held before auto-expiry (T_lease).
	LeaseTTL time.Duration `yaml:"lease_ttl"`

	// RetryAttempts is the max number of lease-acquisition attempts (R_lock).
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the delay between lease-acquisition attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// TransferConfig holds the transfer engine's worker pool size and CAS retry
// policy.
type TransferConfig struct {
	// WorkerPoolSize is the number of goroutines processing transfers.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// CASRetryAttempts is the max number of compare-and-swap retries (R_cas).
	CASRetryAttempts int `yaml:"cas_retry_attempts"`

	// CASRetryBaseDelay is the backoff unit; attempt N sleeps N*this.
	CASRetryBaseDelay time.Duration `yaml:"cas_retry_base_delay"`

	// MinimumAmount is the minimum amount the transfer engine accepts for a
	// charge sale. Request intake checks charge sales and credit requests
	// against the fixed ledger.MinimumTransferAmount instead.
	MinimumAmount string `yaml:"minimum_amount"`
}

// APIConfig holds the HTTP surface's listen address.
type APIConfig struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "~/.walletd",
		},
		Cache: CacheConfig{
			Addr:     "127.0.0.1:6379",
			Password: "",
			DB:       0,
		},
		Lock: LockConfig{
			AppLockTimeout: 5 * time.Second,
			LeaseTTL:       60 * time.Second,
			RetryAttempts:  20,
			RetryDelay:     200 * time.Millisecond,
		},
		Transfer: TransferConfig{
			WorkerPoolSize:    10,
			CASRetryAttempts:  3,
			CASRetryBaseDelay: 100 * time.Millisecond,
			MinimumAmount:     "1000.00",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# wallet ledger daemon configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
