package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/reclaimer/internal/advisory"
	"github.com/FairForge/reclaimer/internal/audit"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/metrics"
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const scope = "reports/acme/"

var csvPolicy = retention.RetentionPolicy{Format: "csv", RetentionDays: 30, Priority: retention.PriorityMedium}

// scenario builds the two reference artifacts: a stale sales export and a
// heavily used quarterly report.
func scenario(t *testing.T) (*memStore, *countingUsage) {
	t.Helper()
	store := newMemStore()
	store.add(scope+"sales-2023-01.csv", 5_000_000, daysAgo(120))
	store.add(scope+"quarterly.pdf", 2_000, daysAgo(200))

	accesses := make([]time.Time, 12)
	for i := range accesses {
		accesses[i] = daysAgo(2 + float64(i)*3)
	}
	return store, newUsage(t, scope, map[string][]time.Time{scope + "quarterly.pdf": accesses})
}

func newTestEngine(store drivers.ObjectStore, u *countingUsage, opts ...Option) *Engine {
	opts = append([]Option{WithClock(fixedClock), WithWorkers(4)}, opts...)
	return New(store, u, zap.NewNop(), opts...)
}

func findRec(t *testing.T, recs []retention.Recommendation, p string) retention.Recommendation {
	t.Helper()
	for _, r := range recs {
		if r.ArtifactPath == p {
			return r
		}
	}
	t.Fatalf("no recommendation for %s", p)
	return retention.Recommendation{}
}

func TestRunCleanup_DryRun(t *testing.T) {
	store, u := scenario(t)
	log := audit.NewMemoryLog()
	e := newTestEngine(store, u, WithAuditLog(log))

	run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, true)
	require.NoError(t, err)

	assert.True(t, run.DryRun)
	assert.Equal(t, 2, run.TotalAnalyzed)
	assert.Len(t, run.Recommendations, 2)
	assert.Equal(t, int64(0), run.SpaceSavedBytes)
	assert.Equal(t, 0, run.ExecutedTotal())
	assert.Equal(t, 0, store.mutated(), "dry run must not touch the store")
	assert.Empty(t, log.Entries())
	assert.Empty(t, run.Warnings)
	assert.False(t, run.Cancelled)

	sales := findRec(t, run.Recommendations, scope+"sales-2023-01.csv")
	assert.Equal(t, retention.ActionDelete, sales.Action)
	assert.Equal(t, 0.9, sales.Confidence)
	assert.Equal(t, int64(5_000_000), sales.EstimatedSavingsBytes)

	quarterly := findRec(t, run.Recommendations, scope+"quarterly.pdf")
	assert.Equal(t, retention.ActionProtect, quarterly.Action)
	assert.Equal(t, retention.RiskLow, quarterly.RiskLevel)
	assert.Equal(t, 1, run.ProtectedCount)

	assert.Equal(t, int64(5_000_000), run.PotentialSavingsBytes)
}

func TestRunCleanup_Execute(t *testing.T) {
	store, u := scenario(t)
	log := audit.NewMemoryLog()
	e := newTestEngine(store, u, WithAuditLog(log))

	run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, false)
	require.NoError(t, err)

	assert.Nil(t, store.object(scope+"sales-2023-01.csv"))
	assert.Equal(t, 1, run.Executed[retention.ActionDelete])
	assert.Equal(t, 1, run.Executed[retention.ActionProtect])
	assert.Equal(t, int64(5_000_000), run.SpaceSavedBytes)

	protected := store.object(scope + "quarterly.pdf")
	require.NotNil(t, protected)
	require.NotNil(t, protected.protectedAt, "confident PROTECT tags the object")
	assert.True(t, now.Equal(*protected.protectedAt))

	entries := log.Entries()
	require.Len(t, entries, 1, "only removals are audited")
	assert.Equal(t, scope+"sales-2023-01.csv", entries[0].ArtifactPath)
	assert.Equal(t, retention.ActionDelete, entries[0].Action)
	assert.Equal(t, int64(5_000_000), entries[0].SpaceSavedBytes)
	assert.Equal(t, scope, entries[0].Scope)
}

func TestRunCleanup_ArchiveIsNotRepeated(t *testing.T) {
	store := newMemStore()
	store.add(scope+"old.csv", 10_000, daysAgo(100))
	u := newUsage(t, scope, map[string][]time.Time{scope + "old.csv": {daysAgo(40)}})
	log := audit.NewMemoryLog()
	e := newTestEngine(store, u, WithAuditLog(log))
	policies := []retention.RetentionPolicy{csvPolicy}

	first, err := e.RunCleanup(context.Background(), scope, policies, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Executed[retention.ActionArchive])
	assert.Equal(t, int64(9_000), first.SpaceSavedBytes)
	assert.Equal(t, "GLACIER_IR", store.object(scope+"old.csv").class)

	for i := 0; i < 2; i++ {
		t.Run(fmt.Sprintf("rerun %d", i+1), func(t *testing.T) {
			run, err := e.RunCleanup(context.Background(), scope, policies, false)
			require.NoError(t, err)

			rec := findRec(t, run.Recommendations, scope+"old.csv")
			assert.Equal(t, retention.ActionArchive, rec.Action)
			assert.Zero(t, rec.EstimatedSavingsBytes)
			assert.Contains(t, rec.Reasoning[len(rec.Reasoning)-1], "GLACIER_IR")
			assert.Zero(t, run.ExecutedTotal())
			assert.Zero(t, run.SpaceSavedBytes)
			assert.Zero(t, run.PotentialSavingsBytes)
		})
	}

	assert.Len(t, log.Entries(), 1)
}

func TestRunCleanup_PotentialSavingsIsSumOfRecommendations(t *testing.T) {
	store := newMemStore()
	store.add(scope+"a.csv", 1000, daysAgo(100))
	store.add(scope+"b.csv", 3000, daysAgo(45))
	store.add(scope+"c.json", 7000, daysAgo(5))
	store.add(scope+"d.pdf", 500, daysAgo(400))
	u := newUsage(t, scope, map[string][]time.Time{
		scope + "b.csv": {daysAgo(40)},
	})

	run, err := newTestEngine(store, u).RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, true)
	require.NoError(t, err)

	var sum int64
	for _, r := range run.Recommendations {
		sum += r.EstimatedSavingsBytes
	}
	assert.Equal(t, sum, run.PotentialSavingsBytes)
	assert.Equal(t, 4, run.TotalAnalyzed)
}

func TestRunCleanup_PartialFailure(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 3; i++ {
		store.add(fmt.Sprintf("%sold-%d.csv", scope, i), 100, daysAgo(200))
	}
	store.mutateErr[scope+"old-1.csv"] = drivers.ErrPermission
	log := audit.NewMemoryLog()

	e := newTestEngine(store, newUsage(t, scope, nil), WithAuditLog(log))
	run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, false)
	require.NoError(t, err)

	assert.Equal(t, 3, run.TotalAnalyzed)
	require.Len(t, run.Warnings, 1)
	w := run.Warnings[0]
	assert.Equal(t, retention.WarningExecution, w.Kind)
	assert.Equal(t, scope+"old-1.csv", w.ArtifactPath)
	assert.Equal(t, retention.ActionDelete, w.Action)

	assert.Equal(t, 2, run.Executed[retention.ActionDelete])
	assert.Equal(t, int64(200), run.SpaceSavedBytes)
	assert.Len(t, log.Entries(), 2)
	assert.NotNil(t, store.object(scope+"old-1.csv"))
}

func TestRunCleanup_EnumerationFailure(t *testing.T) {
	store := newMemStore()
	store.listErr = drivers.ErrPermission

	run, err := newTestEngine(store, newUsage(t, scope, nil)).RunCleanup(context.Background(), scope, nil, false)
	assert.Nil(t, run)

	var enumErr ScopeEnumerationError
	require.True(t, errors.As(err, &enumErr))
	assert.Equal(t, scope, enumErr.Scope)
	assert.ErrorIs(t, err, drivers.ErrPermission)
}

func TestRunCleanup_AnalysisFailures(t *testing.T) {
	store := newMemStore()
	store.add(scope+"a.csv", 100, daysAgo(200))
	store.add(scope+"b.csv", 100, daysAgo(200))
	store.add(scope+"c.csv", 100, daysAgo(200))
	store.headErr[scope+"a.csv"] = errors.New("timeout")

	u := newUsage(t, scope, nil)
	u.failOn[scope+"b.csv"] = errors.New("db down")

	run, err := newTestEngine(store, u).RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, run.TotalAnalyzed)
	require.Len(t, run.Warnings, 2)
	for _, w := range run.Warnings {
		assert.Equal(t, retention.WarningAnalysis, w.Kind)
	}
	assert.Equal(t, scope+"c.csv", run.Recommendations[0].ArtifactPath)
}

func TestRunCleanup_ProtectTag(t *testing.T) {
	store := newMemStore()
	store.add(scope+"fresh.csv", 100, daysAgo(200))
	store.add(scope+"stale.csv", 100, daysAgo(200))
	fresh, stale := daysAgo(2), daysAgo(10)
	store.objects[scope+"fresh.csv"].protectedAt = &fresh
	store.objects[scope+"stale.csv"].protectedAt = &stale

	oracle := &stubOracle{}
	u := newUsage(t, scope, nil)
	e := newTestEngine(store, u, WithBlender(advisory.NewBlender(oracle, 0, 0, zap.NewNop())))

	run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, false)
	require.NoError(t, err)

	rec := findRec(t, run.Recommendations, scope+"fresh.csv")
	assert.Equal(t, retention.ActionProtect, rec.Action)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Equal(t, retention.RiskLow, rec.RiskLevel)
	assert.False(t, u.queried(scope+"fresh.csv"), "tagged artifacts skip usage queries")
	assert.Equal(t, 1, oracle.advised(), "tagged artifacts skip the oracle")

	obj := store.object(scope + "fresh.csv")
	require.NotNil(t, obj)
	assert.True(t, fresh.Equal(*obj.protectedAt), "an existing tag is not refreshed")

	assert.Equal(t, retention.ActionDelete, findRec(t, run.Recommendations, scope+"stale.csv").Action)
	assert.Nil(t, store.object(scope+"stale.csv"))
}

func TestRunCleanup_LegalHold(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.add(scope+"litigation/contract.csv", 100, daysAgo(300))
	store.add(scope+"other.csv", 100, daysAgo(300))

	holds := retention.NewHoldService(nil, zap.NewNop())
	_, err := holds.CreateHold(ctx, &retention.LegalHold{
		Prefix:     scope + "litigation/",
		Reason:     "pending lawsuit",
		CaseNumber: "2026-CV-0042",
		CreatedBy:  "legal@acme.test",
	})
	require.NoError(t, err)

	u := newUsage(t, scope, nil)
	e := newTestEngine(store, u, WithHolds(holds))
	run, err := e.RunCleanup(ctx, scope, []retention.RetentionPolicy{csvPolicy}, false)
	require.NoError(t, err)

	held := findRec(t, run.Recommendations, scope+"litigation/contract.csv")
	assert.Equal(t, retention.ActionProtect, held.Action)
	assert.Equal(t, 1.0, held.Confidence)
	assert.Contains(t, held.Reasoning[0], "2026-CV-0042")
	assert.False(t, u.queried(scope+"litigation/contract.csv"))
	assert.NotNil(t, store.object(scope+"litigation/contract.csv"))

	assert.Nil(t, store.object(scope+"other.csv"))

	t.Run("unavailable holds degrade to dry run", func(t *testing.T) {
		store := newMemStore()
		store.add(scope+"other.csv", 100, daysAgo(300))
		e := newTestEngine(store, newUsage(t, scope, nil), WithHolds(failingHolds{}))

		run, err := e.RunCleanup(ctx, scope, []retention.RetentionPolicy{csvPolicy}, false)
		require.NoError(t, err)
		assert.True(t, run.DryRun)
		assert.Equal(t, 0, store.mutated())
		require.Len(t, run.Warnings, 1)
		assert.Contains(t, run.Warnings[0].Message, "legal holds unavailable")
	})
}

func TestRunCleanup_WithoutUsageHistory(t *testing.T) {
	ctx := context.Background()
	store, u := scenario(t)
	e := newTestEngine(store, u, WithoutUsageHistory())

	t.Run("executing run is downgraded", func(t *testing.T) {
		run, err := e.RunCleanup(ctx, scope, []retention.RetentionPolicy{csvPolicy}, false)
		require.NoError(t, err)

		assert.True(t, run.DryRun)
		assert.Zero(t, run.ExecutedTotal())
		assert.Equal(t, 0, store.mutated())
		require.Len(t, run.Warnings, 1)
		assert.Equal(t, retention.WarningAnalysis, run.Warnings[0].Kind)
		assert.Contains(t, run.Warnings[0].Message, "no usage history")
		assert.Len(t, run.Recommendations, 2)
	})

	t.Run("dry run has no warning", func(t *testing.T) {
		run, err := e.RunCleanup(ctx, scope, []retention.RetentionPolicy{csvPolicy}, true)
		require.NoError(t, err)
		assert.Empty(t, run.Warnings)
	})
}

// runsRecorded reads reclaimer_runs_total for a mode from the default registry
func runsRecorded(t *testing.T, mode string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "reclaimer_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["mode"] == mode && labels["result"] == "completed" {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRunCleanup_DowngradedRunMetrics(t *testing.T) {
	store := newMemStore()
	store.add(scope+"other.csv", 100, daysAgo(300))
	e := newTestEngine(store, newUsage(t, scope, nil),
		WithHolds(failingHolds{}), WithMetrics(metrics.NewCollector()))

	dryBefore := runsRecorded(t, "dry_run")
	execBefore := runsRecorded(t, "execute")

	run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, false)
	require.NoError(t, err)
	require.True(t, run.DryRun)

	assert.Equal(t, dryBefore+1, runsRecorded(t, "dry_run"))
	assert.Equal(t, execBefore, runsRecorded(t, "execute"))
}

func TestRunCleanup_Duplicates(t *testing.T) {
	store := newMemStore()
	store.add(scope+"export-2026-01-01.csv", 640, daysAgo(20))
	store.add(scope+"export-2026-02-01.csv", 640, daysAgo(10))

	run, err := newTestEngine(store, newUsage(t, scope, nil)).
		RunCleanup(context.Background(), scope, []retention.RetentionPolicy{{Format: "csv", RetentionDays: 90}}, true)
	require.NoError(t, err)

	older := findRec(t, run.Recommendations, scope+"export-2026-01-01.csv")
	assert.Equal(t, retention.ActionDelete, older.Action)
	assert.Equal(t, 0.85, older.Confidence)

	newer := findRec(t, run.Recommendations, scope+"export-2026-02-01.csv")
	assert.NotEqual(t, retention.ActionDelete, newer.Action, "the canonical copy is kept")
}

func TestRunCleanup_Advisory(t *testing.T) {
	newStore := func() *memStore {
		store := newMemStore()
		// idle 40 days on a 30 day policy with 4 accesses: ARCHIVE 0.7
		store.add(scope+"q1.csv", 1000, daysAgo(200))
		return store
	}
	accesses := map[string][]time.Time{
		scope + "q1.csv": {daysAgo(40), daysAgo(80), daysAgo(120), daysAgo(160)},
	}

	t.Run("confident opinion overrides", func(t *testing.T) {
		oracle := &stubOracle{opinions: map[string]*retention.AdvisoryOpinion{
			scope + "q1.csv": {Action: retention.ActionDelete, Confidence: 0.95, Reasoning: "superseded by q2"},
		}}
		e := newTestEngine(newStore(), newUsage(t, scope, accesses),
			WithBlender(advisory.NewBlender(oracle, 0.8, time.Second, zap.NewNop())))

		recs, warnings, err := e.AnalyzeOnly(context.Background(), scope, []retention.RetentionPolicy{csvPolicy})
		require.NoError(t, err)
		assert.Empty(t, warnings)
		require.Len(t, recs, 1)
		assert.Equal(t, retention.ActionDelete, recs[0].Action)
		assert.InDelta(t, 0.9, recs[0].Confidence, 1e-9)
		assert.Equal(t, int64(1000), recs[0].EstimatedSavingsBytes)
		assert.Contains(t, recs[0].Reasoning[0], "superseded by q2")
		assert.NotNil(t, recs[0].AdvisoryOpinion)
	})

	t.Run("oracle failure falls back to rules", func(t *testing.T) {
		oracle := &stubOracle{err: errors.New("503")}
		e := newTestEngine(newStore(), newUsage(t, scope, accesses),
			WithBlender(advisory.NewBlender(oracle, 0, 0, zap.NewNop())))

		recs, warnings, err := e.AnalyzeOnly(context.Background(), scope, []retention.RetentionPolicy{csvPolicy})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, retention.ActionArchive, recs[0].Action)
		assert.Equal(t, 0.7, recs[0].Confidence)
		require.Len(t, warnings, 1)
		assert.Equal(t, retention.WarningAdvisory, warnings[0].Kind)
	})

	t.Run("batch insights", func(t *testing.T) {
		oracle := &stubOracle{insights: &retention.Insights{OverallRecommendation: "archive q1"}}
		e := newTestEngine(newStore(), newUsage(t, scope, accesses),
			WithBlender(advisory.NewBlender(oracle, 0, 0, zap.NewNop())), WithBatchInsights(true))

		run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, true)
		require.NoError(t, err)
		require.NotNil(t, run.Insights)
		assert.Equal(t, "archive q1", run.Insights.OverallRecommendation)
	})

	t.Run("batch insights failure only warns", func(t *testing.T) {
		oracle := &stubOracle{}
		e := newTestEngine(newStore(), newUsage(t, scope, accesses),
			WithBlender(advisory.NewBlender(oracle, 0, 0, zap.NewNop())), WithBatchInsights(true))

		run, err := e.RunCleanup(context.Background(), scope, []retention.RetentionPolicy{csvPolicy}, true)
		require.NoError(t, err)
		assert.Nil(t, run.Insights)
		assert.Len(t, run.Recommendations, 1)
		require.Len(t, run.Warnings, 1)
		assert.Equal(t, retention.WarningAdvisory, run.Warnings[0].Kind)
	})
}

func TestRunCleanup_PolicyViolations(t *testing.T) {
	store := newMemStore()
	store.add(scope+"a.csv", 100, daysAgo(1))
	store.add(scope+"b.csv", 100, daysAgo(1))
	policy := retention.RetentionPolicy{Format: "csv", RetentionDays: 30, MaxFiles: 1}

	run, err := newTestEngine(store, newUsage(t, scope, nil)).
		RunCleanup(context.Background(), scope, []retention.RetentionPolicy{policy}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, run.PolicyViolations)
	assert.Equal(t, 0, store.mutated())
}

func TestRunCleanup_Cancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		store, u := scenario(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		run, err := newTestEngine(store, u).RunCleanup(ctx, scope, nil, false)
		require.NoError(t, err)
		assert.True(t, run.Cancelled)
		assert.Empty(t, run.Recommendations)
		require.Len(t, run.Warnings, 1)
		assert.Equal(t, retention.WarningCancelled, run.Warnings[0].Kind)
		assert.Contains(t, run.Warnings[0].Message, "2 artifacts")
		assert.Equal(t, 0, store.mutated())
	})

	t.Run("cancelled mid run finishes in-flight work", func(t *testing.T) {
		store := newMemStore()
		for i := 0; i < 5; i++ {
			store.add(fmt.Sprintf("%sold-%d.csv", scope, i), 100, daysAgo(200))
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		u := newUsage(t, scope, nil)
		var once sync.Once
		u.onQuery = func() { once.Do(cancel) }

		e := newTestEngine(store, u, WithWorkers(1))
		run, err := e.RunCleanup(ctx, scope, []retention.RetentionPolicy{csvPolicy}, false)
		require.NoError(t, err)

		assert.True(t, run.Cancelled)
		assert.GreaterOrEqual(t, len(run.Recommendations), 1)
		assert.Less(t, len(run.Recommendations), 5)
		assert.Equal(t, len(run.Recommendations), run.Executed[retention.ActionDelete],
			"scheduled artifacts complete despite cancellation")
		last := run.Warnings[len(run.Warnings)-1]
		assert.Equal(t, retention.WarningCancelled, last.Kind)
	})
}

func TestAnalyzeOnly_NeverMutates(t *testing.T) {
	store, u := scenario(t)
	recs, warnings, err := newTestEngine(store, u).AnalyzeOnly(context.Background(), scope, []retention.RetentionPolicy{csvPolicy})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Empty(t, warnings)
	assert.Equal(t, 0, store.mutated())
}
