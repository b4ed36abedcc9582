// Package engine runs retention decisions over a scope of stored artifacts
// and applies them to an object store.
package engine

import (
	"context"
	"time"

	"github.com/FairForge/reclaimer/internal/advisory"
	"github.com/FairForge/reclaimer/internal/audit"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/metrics"
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/FairForge/reclaimer/internal/usage"
	"go.uber.org/zap"
)

const (
	// DefaultWorkers is the size of the per-run worker pool
	DefaultWorkers = 8

	// DefaultProtectTTL is how long a protect tag short-circuits analysis
	DefaultProtectTTL = 7 * 24 * time.Hour
)

// HoldLister returns the legal holds active for a scope
type HoldLister interface {
	ActiveHolds(ctx context.Context, scope string) ([]*retention.LegalHold, error)
}

// Engine decides and executes retention actions. It is built once with its
// collaborators and is safe for concurrent runs.
type Engine struct {
	store   drivers.ObjectStore
	usage   usage.Store
	audit   audit.Log
	holds   HoldLister
	blender *advisory.Blender
	codec   drivers.Codec

	workers       int
	protectTTL    time.Duration
	defaultPolicy retention.RetentionPolicy
	batchInsights bool
	usageRecorded bool

	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
	executor *Executor
}

// Option configures an Engine
type Option func(*Engine)

// WithAuditLog records executed actions
func WithAuditLog(log audit.Log) Option {
	return func(e *Engine) {
		e.audit = log
	}
}

// WithHolds enables legal hold checks
func WithHolds(holds HoldLister) Option {
	return func(e *Engine) {
		e.holds = holds
	}
}

// WithBlender enables advisory opinions
func WithBlender(b *advisory.Blender) Option {
	return func(e *Engine) {
		e.blender = b
	}
}

// WithBatchInsights asks the oracle to summarize each run
func WithBatchInsights(enabled bool) Option {
	return func(e *Engine) {
		e.batchInsights = enabled
	}
}

// WithCodec sets the codec used by COMPRESS
func WithCodec(codec drivers.Codec) Option {
	return func(e *Engine) {
		e.codec = codec
	}
}

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProtectTTL sets how long a protect tag is honored
func WithProtectTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.protectTTL = d
		}
	}
}

// WithDefaultPolicy sets the policy used when no format matches
func WithDefaultPolicy(p retention.RetentionPolicy) Option {
	return func(e *Engine) {
		e.defaultPolicy = p
	}
}

// WithMetrics records Prometheus metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithoutUsageHistory marks the usage store as one nothing records into.
// Runs still analyze, but executing runs are downgraded to dry run.
func WithoutUsageHistory() Option {
	return func(e *Engine) {
		e.usageRecorded = false
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over a store and a usage history
func New(store drivers.ObjectStore, usageStore usage.Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		usage:         usageStore,
		workers:       DefaultWorkers,
		protectTTL:    DefaultProtectTTL,
		defaultPolicy: retention.DefaultPolicy(),
		usageRecorded: true,
		logger:        logger,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.executor = NewExecutor(store, e.audit, e.codec, e.metrics, logger)
	e.executor.now = e.now
	return e
}
