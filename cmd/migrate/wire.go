package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dropkiller/catalog-migration/internal/chunker"
	"github.com/dropkiller/catalog-migration/internal/config"
	"github.com/dropkiller/catalog-migration/internal/coordination"
	"github.com/dropkiller/catalog-migration/internal/history"
	"github.com/dropkiller/catalog-migration/internal/migration"
	"github.com/dropkiller/catalog-migration/internal/multimedia"
	"github.com/dropkiller/catalog-migration/internal/product"
	"github.com/dropkiller/catalog-migration/internal/provider"
	"github.com/dropkiller/catalog-migration/internal/reference"
	"github.com/dropkiller/catalog-migration/internal/source"
	"github.com/dropkiller/catalog-migration/internal/targetstore"
)

const schedulerNamespace = "catalog-migration"

// env captures a loaded configuration plus every live connection the
// CLI commands need. Build it once per invocation and defer Close.
type env struct {
	cfg          config.Config
	log          *slog.Logger
	legacyDB     *sql.DB
	targetDB     *sql.DB
	coordination *coordination.RedisService
	scheduler    *chunker.Scheduler
}

func loadEnv() (*env, error) {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var yamlBytes []byte
	if data, err := os.ReadFile("migration.yaml"); err == nil {
		yamlBytes = data
	}

	cfg, err := config.Load(envMap(), yamlBytes)
	if err != nil {
		return nil, err
	}

	legacyCfg, err := mysql.ParseDSN(cfg.LegacyDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing legacy database URL: %w", err)
	}
	legacyCfg.ParseTime = true
	legacyDB, err := sql.Open("mysql", legacyCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening legacy database: %w", err)
	}

	targetCfg, err := mysql.ParseDSN(cfg.TargetDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing target database URL: %w", err)
	}
	targetCfg.ParseTime = true
	targetDB, err := sql.Open("mysql", targetCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening target database: %w", err)
	}

	svc, err := coordination.NewRedisService(cfg.CoordinationURL, cfg.MaxRetries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	sched := chunker.New(svc, schedulerNamespace, cfg.ChunkSize, cfg.LockTTL, workerID(cfg))

	return &env{
		cfg:          cfg,
		log:          log,
		legacyDB:     legacyDB,
		targetDB:     targetDB,
		coordination: svc,
		scheduler:    sched,
	}, nil
}

func (e *env) Close() {
	_ = e.legacyDB.Close()
	_ = e.targetDB.Close()
	_ = e.coordination.Close()
}

func workerID(cfg config.Config) string {
	if cfg.WorkerID != "" {
		return cfg.WorkerID
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}
	return host
}

func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// buildPipeline wires the five reconciliation components against one
// shared targetstore.Store.
func buildPipeline(e *env) migration.Pipeline {
	store := targetstore.New(e.targetDB, e.legacyDB)
	resolver := reference.New(store, slogWarner{e.log})

	return migration.Pipeline{
		Reference:  resolver,
		Providers:  provider.New(store, resolver, provider.UUIDGenerator, nil),
		Products:   product.New(store, resolver, nil),
		History:    history.New(store, provider.UUIDGenerator),
		Multimedia: multimedia.New(store, provider.UUIDGenerator, nil),
	}
}

func buildSourceReader(e *env) source.Reader {
	return source.Select(e.legacyDB, e.cfg.SnapshotPath, e.log)
}

// slogWarner adapts *slog.Logger to reference.Logger.
type slogWarner struct{ log *slog.Logger }

func (w slogWarner) Warn(msg string, args ...any) { w.log.Warn(msg, args...) }
