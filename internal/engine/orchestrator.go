package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/reclaimer/internal/advisory"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/intelligence"
	"github.com/FairForge/reclaimer/internal/retention"
	"go.uber.org/zap"
)

// result is what one worker reports for one artifact
type result struct {
	rec      *retention.Recommendation
	outcome  Outcome
	warnings []retention.Warning
}

// runOptions selects what a run does after deciding
type runOptions struct {
	dryRun   bool
	execute  bool
	insights bool
}

// RunCleanup analyzes every artifact under scope and, unless dryRun is set,
// executes the decided actions. Only a failure to enumerate the scope is
// returned as an error; everything else becomes a run warning.
func (e *Engine) RunCleanup(ctx context.Context, scope string, policies []retention.RetentionPolicy, dryRun bool) (*retention.CleanupRun, error) {
	start := time.Now()
	run, err := e.run(ctx, scope, policies, runOptions{
		dryRun:   dryRun,
		execute:  true,
		insights: e.batchInsights,
	})
	if run != nil {
		dryRun = run.DryRun
	}
	e.metrics.RecordRun(dryRun, err != nil, time.Since(start))
	return run, err
}

// AnalyzeOnly decides without executing anything
func (e *Engine) AnalyzeOnly(ctx context.Context, scope string, policies []retention.RetentionPolicy) ([]retention.Recommendation, []retention.Warning, error) {
	run, err := e.run(ctx, scope, policies, runOptions{dryRun: true})
	if err != nil {
		return nil, nil, err
	}
	return run.Recommendations, run.Warnings, nil
}

func (e *Engine) run(ctx context.Context, scope string, policies []retention.RetentionPolicy, opts runOptions) (*retention.CleanupRun, error) {
	run := retention.NewCleanupRun(scope, opts.dryRun, e.now())
	logger := e.logger.With(
		zap.String("run_id", run.ID.String()),
		zap.String("scope", scope),
		zap.Bool("dry_run", opts.dryRun))

	paths, err := e.store.List(ctx, scope)
	if err != nil {
		logger.Error("failed to enumerate scope", zap.Error(err))
		return nil, ScopeEnumerationError{Scope: scope, Err: err}
	}
	logger.Info("cleanup run started", zap.Int("artifacts", len(paths)))

	holds := e.activeHolds(ctx, scope, run, logger)
	if holds == nil && e.holds != nil && !opts.dryRun {
		// without the hold list nothing may be removed
		opts.dryRun = true
		run.DryRun = true
	}
	if !e.usageRecorded && !opts.dryRun {
		// every artifact would look never accessed
		logger.Warn("no usage history configured, run degraded to dry run")
		run.Warnings = append(run.Warnings, retention.Warning{
			Kind:    retention.WarningAnalysis,
			Message: "no usage history configured, nothing executed",
		})
		e.metrics.RecordWarning(string(retention.WarningAnalysis))
		opts.dryRun = true
		run.DryRun = true
	}

	artifacts, headWarnings, headed := e.headAll(ctx, paths)
	run.Warnings = append(run.Warnings, headWarnings...)

	dups := intelligence.IndexDuplicates(artifacts)
	policies = retention.InScope(policies, scope)

	results := make(chan result, e.workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range results {
			e.aggregate(run, res)
		}
	}()

	analyzed := e.forEach(ctx, len(artifacts), func(wctx context.Context, i int) {
		results <- e.process(wctx, scope, artifacts[i], dups, holds, policies, opts)
	})
	close(results)
	<-done

	if skipped := (len(paths) - headed) + (len(artifacts) - analyzed); skipped > 0 {
		run.Cancelled = true
		run.Warnings = append(run.Warnings, retention.Warning{
			Kind:    retention.WarningCancelled,
			Message: fmt.Sprintf("run cancelled, %d artifacts not processed", skipped),
		})
		e.metrics.RecordWarning(string(retention.WarningCancelled))
	}

	sort.SliceStable(run.Recommendations, func(i, j int) bool {
		return run.Recommendations[i].ArtifactPath < run.Recommendations[j].ArtifactPath
	})
	run.TotalAnalyzed = len(run.Recommendations)
	run.PolicyViolations = retention.CheckLimits(run.Recommendations, policies, e.defaultPolicy)

	if opts.insights && e.blender.Enabled() && !run.Cancelled {
		insights, err := e.blender.Summarize(ctx, run)
		if err != nil {
			run.Warnings = append(run.Warnings, toWarning(AdvisoryError{Err: err}))
			e.metrics.RecordWarning(string(retention.WarningAdvisory))
		} else {
			run.Insights = insights
		}
	}

	run.CompletedAt = e.now()
	logger.Info("cleanup run completed",
		zap.Int("analyzed", run.TotalAnalyzed),
		zap.Int("executed", run.ExecutedTotal()),
		zap.Int("protected", run.ProtectedCount),
		zap.Int64("potential_savings_bytes", run.PotentialSavingsBytes),
		zap.Int64("space_saved_bytes", run.SpaceSavedBytes),
		zap.Int("warnings", len(run.Warnings)),
		zap.Bool("cancelled", run.Cancelled))

	return run, nil
}

// activeHolds loads the legal holds for a scope. It returns nil when holds
// are not configured or could not be loaded; the latter adds a warning.
func (e *Engine) activeHolds(ctx context.Context, scope string, run *retention.CleanupRun, logger *zap.Logger) []*retention.LegalHold {
	if e.holds == nil {
		return nil
	}
	holds, err := e.holds.ActiveHolds(ctx, scope)
	if err != nil {
		logger.Error("failed to load legal holds, run degraded to dry run", zap.Error(err))
		run.Warnings = append(run.Warnings, retention.Warning{
			Kind:    retention.WarningAnalysis,
			Message: fmt.Sprintf("legal holds unavailable, nothing executed: %v", err),
		})
		e.metrics.RecordWarning(string(retention.WarningAnalysis))
		return nil
	}
	if holds == nil {
		holds = []*retention.LegalHold{}
	}
	return holds
}

// headAll fetches metadata for every path. Each slot of the returned slice
// is written by exactly one worker.
func (e *Engine) headAll(ctx context.Context, paths []string) ([]intelligence.Artifact, []retention.Warning, int) {
	artifacts := make([]*intelligence.Artifact, len(paths))
	failures := make([]error, len(paths))

	headed := e.forEach(ctx, len(paths), func(wctx context.Context, i int) {
		info, err := e.store.Head(wctx, paths[i])
		if err != nil {
			failures[i] = ArtifactAnalysisError{Path: paths[i], Err: err}
			return
		}
		artifacts[i] = &intelligence.Artifact{
			Path:           info.Path,
			SizeBytes:      info.SizeBytes,
			LastModifiedAt: info.LastModifiedAt,
			Format:         formatOf(info.Path),
			StorageClass:   info.StorageClass,
			Archived:       info.Archived || drivers.IsArchiveClass(info.StorageClass),
			ProtectedAt:    info.ProtectedAt,
		}
	})

	out := make([]intelligence.Artifact, 0, len(paths))
	var warnings []retention.Warning
	for i := range paths {
		if failures[i] != nil {
			warnings = append(warnings, toWarning(failures[i]))
			e.metrics.RecordWarning(string(retention.WarningAnalysis))
			continue
		}
		if artifacts[i] != nil {
			out = append(out, *artifacts[i])
		}
	}
	return out, warnings, headed
}

// forEach runs fn for indexes 0..n-1 on the worker pool and returns how many
// were scheduled. Scheduling stops when ctx is cancelled; scheduled work
// finishes on a context that ignores the cancellation.
func (e *Engine) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) int {
	jobs := make(chan int)
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for w := 0; w < e.workers && w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(workCtx, i)
			}
		}()
	}

	scheduled := 0
schedule:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break schedule
		case jobs <- i:
			scheduled++
		}
	}
	close(jobs)
	wg.Wait()
	return scheduled
}

// process decides and, when asked, executes one artifact
func (e *Engine) process(ctx context.Context, scope string, a intelligence.Artifact, dups *intelligence.DuplicateIndex,
	holds []*retention.LegalHold, policies []retention.RetentionPolicy, opts runOptions) result {
	now := e.now()
	var res result

	rec, final, err := e.decide(ctx, scope, a, dups, holds, policies, now)
	var analysisErr ArtifactAnalysisError
	if errors.As(err, &analysisErr) {
		res.warnings = append(res.warnings, toWarning(analysisErr))
		return res
	}
	if err != nil {
		// advisory failures keep the deterministic recommendation
		res.warnings = append(res.warnings, toWarning(err))
	}
	res.rec = &rec

	if !opts.execute || final {
		return res
	}

	outcome, err := e.executor.Execute(ctx, scope, rec, opts.dryRun)
	if err != nil {
		e.logger.Warn("action failed",
			zap.String("path", a.Path),
			zap.String("action", string(rec.Action)),
			zap.Error(err))
		res.warnings = append(res.warnings, toWarning(err))
		return res
	}
	res.outcome = outcome
	return res
}

// decide produces the recommendation for one artifact. final reports a
// decision that needs no execution: a legal hold, a fresh protect tag or an
// ARCHIVE of an object already in a cold tier.
func (e *Engine) decide(ctx context.Context, scope string, a intelligence.Artifact, dups *intelligence.DuplicateIndex,
	holds []*retention.LegalHold, policies []retention.RetentionPolicy, now time.Time) (retention.Recommendation, bool, error) {
	if hold := retention.FindHold(holds, scope, a.Path, now); hold != nil {
		reason := fmt.Sprintf("under legal hold %s: %s", hold.ID, hold.Reason)
		if hold.CaseNumber != "" {
			reason += " (case " + hold.CaseNumber + ")"
		}
		return retention.Protect(a, 1.0, reason), true, nil
	}

	if a.ProtectedAt != nil && now.Sub(*a.ProtectedAt) < e.protectTTL {
		reason := fmt.Sprintf("protected by previous run on %s", a.ProtectedAt.UTC().Format("2006-01-02"))
		return retention.Protect(a, 0.9, reason), true, nil
	}

	records, err := e.usage.QueryAccesses(ctx, a.Path, scope)
	if err != nil {
		return retention.Recommendation{}, false, ArtifactAnalysisError{Path: a.Path, Err: fmt.Errorf("query usage: %w", err)}
	}

	in := retention.Input{
		Artifact: a,
		Profile:  intelligence.Analyze(a, records, dups),
		Policy:   retention.Resolve(policies, a.Format, e.defaultPolicy),
		Now:      now,
	}
	rec := retention.Recommend(in)

	var advisoryErr error
	if e.blender.Enabled() {
		blended, err := e.blender.Blend(ctx, advisory.NewBrief(in, rec), rec)
		if err != nil {
			advisoryErr = AdvisoryError{Path: a.Path, Err: err}
		}
		rec = blended
	}

	if rec.Action == retention.ActionArchive && a.Archived {
		rec.EstimatedSavingsBytes = 0
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("already in archive tier %s", a.StorageClass))
		return rec, true, advisoryErr
	}
	return rec, false, advisoryErr
}

// aggregate folds one result into the run. Only the aggregation goroutine
// calls it.
func (e *Engine) aggregate(run *retention.CleanupRun, res result) {
	for _, w := range res.warnings {
		run.Warnings = append(run.Warnings, w)
		e.metrics.RecordWarning(string(w.Kind))
	}
	if res.rec == nil {
		return
	}

	rec := *res.rec
	run.Recommendations = append(run.Recommendations, rec)
	run.PotentialSavingsBytes += rec.EstimatedSavingsBytes
	if rec.Action == retention.ActionProtect {
		run.ProtectedCount++
	}
	if res.outcome.Executed {
		run.Executed[rec.Action]++
		run.SpaceSavedBytes += res.outcome.SavedBytes
	}
	e.metrics.RecordRecommendation(string(rec.Action))
}

// formatOf derives an artifact's format from its file extension
func formatOf(p string) string {
	return retention.NormalizeFormat(path.Ext(p))
}
