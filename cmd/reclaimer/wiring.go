package main

import (
	"context"
	"fmt"
	"os"

	"github.com/FairForge/reclaimer/internal/advisory"
	"github.com/FairForge/reclaimer/internal/api"
	"github.com/FairForge/reclaimer/internal/audit"
	"github.com/FairForge/reclaimer/internal/config"
	"github.com/FairForge/reclaimer/internal/database"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/engine"
	"github.com/FairForge/reclaimer/internal/logging"
	"github.com/FairForge/reclaimer/internal/metrics"
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/FairForge/reclaimer/internal/usage"
	"go.uber.org/zap"
)

// app holds everything a command needs, built from one configuration
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store       drivers.ObjectStore
	storeHealth api.HealthCheck
	db          *database.Postgres

	log        audit.Log
	history    audit.History
	holds      *retention.HoldService
	policies   retention.Source
	fileSource *retention.FileSource

	engine *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.openPolicies(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildEngine(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Mode {
	case config.StoreS3:
		s3cfg := a.cfg.Store.S3
		driver, err := drivers.NewS3Driver(ctx, drivers.S3Options{
			Endpoint:     s3cfg.Endpoint,
			Region:       s3cfg.Region,
			Bucket:       s3cfg.Bucket,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			PathStyle:    s3cfg.PathStyle,
			ArchiveClass: s3cfg.ArchiveClass,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("create s3 driver: %w", err)
		}
		a.store, a.storeHealth = driver, driver.HealthCheck

	default:
		path := a.cfg.Store.Local.Path
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
		driver := drivers.NewLocalDriver(path, a.logger)
		a.store, a.storeHealth = driver, driver.HealthCheck
	}

	if a.cfg.Store.RetryAttempts > 1 {
		a.store = drivers.NewRetryingStore(a.store, drivers.NewRetryPolicy(
			drivers.WithMaxAttempts(a.cfg.Store.RetryAttempts),
			drivers.WithLogger(a.logger)))
	}

	a.logger.Info("object store ready",
		zap.String("mode", a.cfg.Store.Mode),
		zap.Int("retry_attempts", a.cfg.Store.RetryAttempts))
	return nil
}

// openDatabase connects to Postgres when configured and falls back to
// in-memory usage, audit and hold stores otherwise.
func (a *app) openDatabase(ctx context.Context) error {
	if !a.cfg.Database.Enabled() {
		mem := audit.NewMemoryLog()
		a.log, a.history = mem, mem
		a.holds = retention.NewHoldService(nil, a.logger)
		a.logger.Warn("no database configured, audit log is in memory and runs will not execute")
		return nil
	}

	db, err := database.NewPostgres(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.CreateTables(ctx); err != nil {
		_ = db.Close()
		return err
	}

	pg := audit.NewPostgresLog(db.DB())
	a.db = db
	a.log, a.history = pg, pg
	a.holds = retention.NewHoldService(db.DB(), a.logger)
	return nil
}

func (a *app) usageStore() usage.Store {
	if a.db != nil {
		return usage.NewPostgresStore(a.db.DB(), a.logger)
	}
	return usage.NewMemoryStore()
}

// openPolicies picks the policy source: a policy file wins, then the
// database, else only the default policy applies.
func (a *app) openPolicies() error {
	switch {
	case a.cfg.Policies.File != "":
		src, err := retention.NewFileSource(a.cfg.Policies.File, a.logger)
		if err != nil {
			return err
		}
		a.policies, a.fileSource = src, src
	case a.db != nil:
		a.policies = retention.NewPolicyService(a.db.DB(), a.logger)
	default:
		a.policies = retention.StaticSource{}
	}
	return nil
}

func (a *app) buildEngine() error {
	ecfg := a.cfg.Engine

	codec, err := drivers.NewCodec(ecfg.Codec, ecfg.CodecLevel)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	fallback := retention.DefaultPolicy()
	fallback.RetentionDays = ecfg.DefaultRetentionDays

	opts := []engine.Option{
		engine.WithAuditLog(a.log),
		engine.WithHolds(a.holds),
		engine.WithCodec(codec),
		engine.WithWorkers(ecfg.Workers),
		engine.WithProtectTTL(ecfg.ProtectTTL),
		engine.WithDefaultPolicy(fallback),
		engine.WithMetrics(collector),
	}
	if a.db == nil {
		opts = append(opts, engine.WithoutUsageHistory())
	}

	if acfg := a.cfg.Advisory; acfg.Enabled {
		oracle, err := advisory.NewHTTPOracle(advisory.Config{
			BaseURL:       acfg.Endpoint,
			APIKey:        acfg.APIKey,
			Model:         acfg.Model,
			MaxTokens:     acfg.MaxTokens,
			RatePerSecond: acfg.RatePerSecond,
			Burst:         acfg.Burst,
		}, collector, a.logger)
		if err != nil {
			return err
		}
		opts = append(opts,
			engine.WithBlender(advisory.NewBlender(oracle, acfg.Threshold, acfg.Timeout, a.logger)),
			engine.WithBatchInsights(acfg.BatchInsights))
	}

	a.engine = engine.New(a.store, a.usageStore(), a.logger, opts...)
	return nil
}

func (a *app) loadPolicies(ctx context.Context, scope string) ([]retention.RetentionPolicy, error) {
	policies, err := a.policies.Policies(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load policies for %s: %w", scope, err)
	}
	return policies, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}
