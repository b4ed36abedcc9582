package advisory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOracle struct {
	opinion  *retention.AdvisoryOpinion
	insights *retention.Insights
	err      error
	delay    time.Duration
}

func (s *stubOracle) AdviseArtifact(ctx context.Context, _ ArtifactBrief) (*retention.AdvisoryOpinion, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.opinion, s.err
}

func (s *stubOracle) SummarizeRun(_ context.Context, _ RunSummary) (*retention.Insights, error) {
	return s.insights, s.err
}

func archiveRec() retention.Recommendation {
	return retention.Recommendation{
		ArtifactPath:          "reports/acme/q1.csv",
		SizeBytes:             1000,
		Action:                retention.ActionArchive,
		Confidence:            0.7,
		RiskLevel:             retention.RiskMedium,
		Reasoning:             []string{"idle for 120 days, past 90 day retention"},
		EstimatedSavingsBytes: 900,
	}
}

func TestMerge(t *testing.T) {
	t.Run("confident opinion overrides", func(t *testing.T) {
		rec := archiveRec()
		op := retention.AdvisoryOpinion{Action: retention.ActionDelete, Confidence: 0.95, Reasoning: "superseded by q2"}

		got := Merge(rec, op, DefaultThreshold)

		assert.Equal(t, retention.ActionDelete, got.Action)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9)
		assert.Equal(t, retention.RiskLow, got.RiskLevel)
		assert.Equal(t, int64(1000), got.EstimatedSavingsBytes)
		require.Len(t, got.Reasoning, 2)
		assert.Contains(t, got.Reasoning[0], "superseded by q2")
		assert.Equal(t, rec.Reasoning[0], got.Reasoning[1])
		require.NotNil(t, got.AdvisoryOpinion)
		assert.Equal(t, op, *got.AdvisoryOpinion)

		// the input is untouched
		assert.Equal(t, retention.ActionArchive, rec.Action)
		assert.Len(t, rec.Reasoning, 1)
	})

	t.Run("confidence capped at one", func(t *testing.T) {
		rec := archiveRec()
		rec.Confidence = 0.9
		got := Merge(rec, retention.AdvisoryOpinion{Action: retention.ActionProtect, Confidence: 0.99}, DefaultThreshold)
		assert.Equal(t, 1.0, got.Confidence)
		assert.Equal(t, int64(0), got.EstimatedSavingsBytes)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		got := Merge(archiveRec(), retention.AdvisoryOpinion{Action: retention.ActionDelete, Confidence: 0.8, Reasoning: "maybe"}, DefaultThreshold)
		assert.Equal(t, retention.ActionArchive, got.Action)
		assert.Equal(t, 0.7, got.Confidence)
		require.Len(t, got.Reasoning, 2)
		assert.Contains(t, got.Reasoning[1], "maybe")
		assert.NotNil(t, got.AdvisoryOpinion)
	})

	t.Run("unknown action never overrides", func(t *testing.T) {
		got := Merge(archiveRec(), retention.AdvisoryOpinion{Action: "SHRED", Confidence: 1}, DefaultThreshold)
		assert.Equal(t, retention.ActionArchive, got.Action)
	})
}

func TestBlender_Blend(t *testing.T) {
	ctx := context.Background()
	brief := ArtifactBrief{Path: "reports/acme/q1.csv"}

	t.Run("nil oracle is rule based", func(t *testing.T) {
		b := NewBlender(nil, 0, 0, zap.NewNop())
		assert.False(t, b.Enabled())
		got, err := b.Blend(ctx, brief, archiveRec())
		require.NoError(t, err)
		assert.Equal(t, archiveRec(), got)
	})

	t.Run("oracle failure keeps deterministic result", func(t *testing.T) {
		b := NewBlender(&stubOracle{err: errors.New("connection refused")}, 0, 0, zap.NewNop())
		got, err := b.Blend(ctx, brief, archiveRec())
		assert.Error(t, err)
		assert.Equal(t, archiveRec(), got)
	})

	t.Run("timeout keeps deterministic result", func(t *testing.T) {
		oracle := &stubOracle{
			opinion: &retention.AdvisoryOpinion{Action: retention.ActionDelete, Confidence: 1},
			delay:   time.Second,
		}
		b := NewBlender(oracle, 0, 10*time.Millisecond, zap.NewNop())
		got, err := b.Blend(ctx, brief, archiveRec())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, retention.ActionArchive, got.Action)
	})

	t.Run("override applied", func(t *testing.T) {
		b := NewBlender(&stubOracle{opinion: &retention.AdvisoryOpinion{Action: retention.ActionDelete, Confidence: 0.9}}, 0, 0, zap.NewNop())
		got, err := b.Blend(ctx, brief, archiveRec())
		require.NoError(t, err)
		assert.Equal(t, retention.ActionDelete, got.Action)
	})
}

func TestBlender_Summarize(t *testing.T) {
	run := retention.NewCleanupRun("reports/acme/", true, time.Now())
	run.Recommendations = []retention.Recommendation{
		{ArtifactPath: "a", Action: retention.ActionDelete, SizeBytes: 10},
		{ArtifactPath: "b", Action: retention.ActionProtect, SizeBytes: 1000},
		{ArtifactPath: "c", Action: retention.ActionArchive, SizeBytes: 500},
	}

	summary := NewRunSummary(run)
	assert.Equal(t, 1, summary.Recommended[retention.ActionDelete])
	assert.Equal(t, 1, summary.Recommended[retention.ActionProtect])
	require.Len(t, summary.LargestCandidates, 2)
	assert.Equal(t, "c", summary.LargestCandidates[0].Path)

	t.Run("failure omits insights", func(t *testing.T) {
		b := NewBlender(&stubOracle{err: fmt.Errorf("boom")}, 0, 0, zap.NewNop())
		insights, err := b.Summarize(context.Background(), run)
		assert.Error(t, err)
		assert.Nil(t, insights)
	})

	t.Run("disabled returns nothing", func(t *testing.T) {
		insights, err := NewBlender(nil, 0, 0, zap.NewNop()).Summarize(context.Background(), run)
		assert.NoError(t, err)
		assert.Nil(t, insights)
	})
}
