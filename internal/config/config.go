// Package config loads the migration engine's configuration from
// environment variables, layered over defaults from an optional YAML
// file. Loading is a pure function of its inputs so it can be unit
// tested without touching the real environment or filesystem.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
)

// Config holds everything the migration driver needs to run.
type Config struct {
	LegacyDatabaseURL string
	TargetDatabaseURL string
	CoordinationURL   string
	WorkerID          string

	TestMode bool

	ChunkSize         int
	LockTTL           time.Duration
	LockRenewInterval time.Duration

	MaxRetries int
	RetryDelay time.Duration

	LegacyStatementTimeout time.Duration
	LegacyIdleTxTimeout    time.Duration
	LegacyLockWaitTimeout  time.Duration
	TargetStatementTimeout time.Duration
	TargetIdleTxTimeout    time.Duration
	TargetLockWaitTimeout  time.Duration

	SnapshotPath string
}

// fileDefaults is the shape of the optional migration.yaml file. Only
// fields that are safe to default (never secrets) live here.
type fileDefaults struct {
	ChunkSize            int    `yaml:"chunk_size"`
	LockTTLSeconds       int    `yaml:"lock_ttl_seconds"`
	LockRenewIntervalMS  int    `yaml:"lock_renew_interval_ms"`
	MaxRetries           int    `yaml:"max_retries"`
	RetryDelaySeconds    int    `yaml:"retry_delay_seconds"`
	SnapshotPath         string `yaml:"snapshot_path"`
}

const (
	defaultChunkSize     = 500
	defaultLockTTL       = 120 * time.Second
	defaultMaxRetries    = 3
	defaultRetryDelay    = 2 * time.Second
	defaultStatementTO   = 5 * time.Minute
	defaultIdleTxTO      = 10 * time.Minute
	defaultLockWaitTO    = 2 * time.Minute
	testModeRecordCap    = 50
	defaultSnapshotPath  = "data/products/all-products.json"
)

// TestModeRecordCap is the small constant TEST_MODE caps total records to.
const TestModeRecordCap = testModeRecordCap

// Load builds a Config from an environment map and an optional YAML
// file's raw bytes (nil/empty if no file is present).
func Load(env map[string]string, yamlFile []byte) (Config, error) {
	var defaults fileDefaults
	if len(yamlFile) > 0 {
		if err := yaml.Unmarshal(yamlFile, &defaults); err != nil {
			return Config{}, fmt.Errorf("%w: parsing migration.yaml: %v", storeerr.ErrConfiguration, err)
		}
	}

	cfg := Config{
		ChunkSize:         orInt(defaults.ChunkSize, defaultChunkSize),
		LockTTL:           orDuration(time.Duration(defaults.LockTTLSeconds)*time.Second, defaultLockTTL),
		MaxRetries:        orInt(defaults.MaxRetries, defaultMaxRetries),
		RetryDelay:        orDuration(time.Duration(defaults.RetryDelaySeconds)*time.Second, defaultRetryDelay),
		SnapshotPath:      orString(defaults.SnapshotPath, defaultSnapshotPath),

		LegacyStatementTimeout: defaultStatementTO,
		LegacyIdleTxTimeout:    defaultIdleTxTO,
		LegacyLockWaitTimeout:  defaultLockWaitTO,
		TargetStatementTimeout: defaultStatementTO,
		TargetIdleTxTimeout:    defaultIdleTxTO,
		TargetLockWaitTimeout:  defaultLockWaitTO,
	}
	if defaults.LockRenewIntervalMS > 0 {
		cfg.LockRenewInterval = time.Duration(defaults.LockRenewIntervalMS) * time.Millisecond
	} else {
		cfg.LockRenewInterval = (4 * cfg.LockTTL) / 10
	}

	cfg.LegacyDatabaseURL = firstNonEmpty(env["OLD_DATABASE_URL"], env["LEGACY_DATABASE_URL"])
	if cfg.LegacyDatabaseURL == "" {
		return Config{}, fmt.Errorf("%w: OLD_DATABASE_URL or LEGACY_DATABASE_URL is required", storeerr.ErrConfiguration)
	}

	cfg.TargetDatabaseURL = env["PRODUCTS_DATABASE_URL"]
	if cfg.TargetDatabaseURL == "" {
		return Config{}, fmt.Errorf("%w: PRODUCTS_DATABASE_URL is required", storeerr.ErrConfiguration)
	}

	cfg.CoordinationURL = env["REDIS_URL"]
	if cfg.CoordinationURL == "" {
		return Config{}, fmt.Errorf("%w: REDIS_URL is required", storeerr.ErrConfiguration)
	}

	cfg.WorkerID = env["WORKER_ID"]

	if v, ok := env["TEST_MODE"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid TEST_MODE %q: %v", storeerr.ErrConfiguration, v, err)
		}
		cfg.TestMode = b
	}

	if v, ok := env["MAX_RETRIES"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid MAX_RETRIES %q: %v", storeerr.ErrConfiguration, v, err)
		}
		cfg.MaxRetries = n
	}
	if v, ok := env["RETRY_DELAY"]; ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid RETRY_DELAY %q: %v", storeerr.ErrConfiguration, v, err)
		}
		cfg.RetryDelay = time.Duration(secs) * time.Second
	}
	if v, ok := env["CHUNK_SIZE"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: invalid CHUNK_SIZE %q", storeerr.ErrConfiguration, v)
		}
		cfg.ChunkSize = n
	}
	if v, ok := env["LOCK_TTL_SECONDS"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: invalid LOCK_TTL_SECONDS %q", storeerr.ErrConfiguration, v)
		}
		cfg.LockTTL = time.Duration(n) * time.Second
		if _, ok := env["LOCK_RENEW_INTERVAL_MS"]; !ok && defaults.LockRenewIntervalMS == 0 {
			cfg.LockRenewInterval = (4 * cfg.LockTTL) / 10
		}
	}
	if v, ok := env["LOCK_RENEW_INTERVAL_MS"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: invalid LOCK_RENEW_INTERVAL_MS %q", storeerr.ErrConfiguration, v)
		}
		cfg.LockRenewInterval = time.Duration(n) * time.Millisecond
	}

	return cfg, nil
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
