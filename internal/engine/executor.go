package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/FairForge/reclaimer/internal/audit"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/metrics"
	"github.com/FairForge/reclaimer/internal/retention"
	"go.uber.org/zap"
)

// protectTagConfidence is the minimum confidence at which PROTECT tags the object
const protectTagConfidence = 0.8

// Outcome is the result of executing one recommendation
type Outcome struct {
	Executed   bool
	SavedBytes int64
}

// Executor applies recommendations to an object store
type Executor struct {
	store   drivers.ObjectStore
	audit   audit.Log
	codec   drivers.Codec
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewExecutor creates an executor. A nil audit log disables auditing.
func NewExecutor(store drivers.ObjectStore, log audit.Log, codec drivers.Codec, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if codec == nil {
		codec, _ = drivers.NewCodec(drivers.CodecZstd, 0)
	}
	return &Executor{
		store:   store,
		audit:   log,
		codec:   codec,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute applies one recommendation. Under dry run nothing is touched and
// the zero Outcome is returned.
func (x *Executor) Execute(ctx context.Context, scope string, rec retention.Recommendation, dryRun bool) (Outcome, error) {
	if dryRun {
		return Outcome{}, nil
	}

	saved, err := x.apply(ctx, rec)
	if err != nil {
		return Outcome{}, ExecutionError{Path: rec.ArtifactPath, Action: rec.Action, Err: err}
	}

	x.metrics.RecordExecuted(string(rec.Action), saved)
	x.logger.Info("action executed",
		zap.String("scope", scope),
		zap.String("path", rec.ArtifactPath),
		zap.String("action", string(rec.Action)),
		zap.Int64("saved_bytes", saved))

	if rec.Action != retention.ActionProtect && x.audit != nil {
		entry := retention.NewLogEntry(scope, rec, saved, x.now())
		if err := x.audit.Append(ctx, entry); err != nil {
			x.logger.Error("failed to append cleanup log entry",
				zap.String("path", rec.ArtifactPath),
				zap.String("action", string(rec.Action)),
				zap.Error(err))
		}
	}

	return Outcome{Executed: true, SavedBytes: saved}, nil
}

func (x *Executor) apply(ctx context.Context, rec retention.Recommendation) (int64, error) {
	switch rec.Action {
	case retention.ActionDelete:
		if err := x.store.Delete(ctx, rec.ArtifactPath); err != nil {
			return 0, err
		}
		return rec.EstimatedSavingsBytes, nil

	case retention.ActionArchive:
		if err := x.store.Archive(ctx, rec.ArtifactPath); err != nil {
			return 0, err
		}
		return rec.EstimatedSavingsBytes, nil

	case retention.ActionCompress:
		if retention.AlreadyCompressed(formatOf(rec.ArtifactPath)) {
			return 0, fmt.Errorf("%s is already compressed", rec.ArtifactPath)
		}
		return drivers.CompressObject(ctx, x.store, x.codec, rec.ArtifactPath)

	case retention.ActionProtect:
		if rec.Confidence >= protectTagConfidence {
			if err := x.store.Protect(ctx, rec.ArtifactPath, x.now()); err != nil {
				return 0, err
			}
		}
		return 0, nil

	default:
		return 0, fmt.Errorf("unknown action %q", rec.Action)
	}
}
