package advisory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/FairForge/reclaimer/internal/intelligence"
	"github.com/FairForge/reclaimer/internal/retention"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the oracle confidence above which it overrides
	DefaultThreshold = 0.8

	// DefaultTimeout bounds a single oracle call
	DefaultTimeout = 20 * time.Second

	overrideBoost    = 0.2
	largestInSummary = 10
)

// Blender merges oracle opinions into deterministic recommendations.
// A nil oracle leaves every recommendation untouched.
type Blender struct {
	oracle    Oracle
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewBlender creates a blender; zero threshold or timeout use defaults.
func NewBlender(oracle Oracle, threshold float64, timeout time.Duration, logger *zap.Logger) *Blender {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Blender{
		oracle:    oracle,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
	}
}

// Enabled reports whether an oracle is configured
func (b *Blender) Enabled() bool {
	return b != nil && b.oracle != nil
}

// NewBrief describes an artifact and its deterministic decision for the oracle
func NewBrief(in retention.Input, rec retention.Recommendation) ArtifactBrief {
	return ArtifactBrief{
		Path:                    in.Artifact.Path,
		Format:                  in.Artifact.Format,
		SizeBytes:               in.Artifact.SizeBytes,
		AgeDays:                 math.Round(retention.DaysSince(in.Artifact.LastModifiedAt, in.Now)),
		DaysSinceAccess:         math.Round(retention.DaysSince(in.Profile.LastAccessedAt, in.Now)),
		AccessCount:             in.Profile.AccessCount,
		Pattern:                 string(patternOrNever(in.Profile.Pattern)),
		RetentionDays:           in.Policy.RetentionDays,
		DeterministicAction:     rec.Action,
		DeterministicConfidence: rec.Confidence,
	}
}

func patternOrNever(p intelligence.Pattern) intelligence.Pattern {
	if p == "" {
		return intelligence.PatternNever
	}
	return p
}

// Blend asks the oracle about one artifact. On failure the deterministic
// recommendation is returned unchanged together with the error.
func (b *Blender) Blend(ctx context.Context, brief ArtifactBrief, rec retention.Recommendation) (retention.Recommendation, error) {
	if !b.Enabled() {
		return rec, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	opinion, err := b.oracle.AdviseArtifact(callCtx, brief)
	if err != nil {
		return rec, fmt.Errorf("advise %s: %w", brief.Path, err)
	}
	if opinion == nil {
		return rec, fmt.Errorf("advise %s: empty opinion", brief.Path)
	}

	merged := Merge(rec, *opinion, b.threshold)
	if merged.Action != rec.Action {
		b.logger.Info("advisory override",
			zap.String("path", rec.ArtifactPath),
			zap.String("from", string(rec.Action)),
			zap.String("to", string(merged.Action)),
			zap.Float64("oracle_confidence", opinion.Confidence))
	}
	return merged, nil
}

// Merge folds an opinion into a recommendation. Opinions with confidence
// above threshold and a valid action replace the action; others are
// attached as supplementary context only.
func Merge(rec retention.Recommendation, op retention.AdvisoryOpinion, threshold float64) retention.Recommendation {
	out := rec
	out.Reasoning = append([]string(nil), rec.Reasoning...)
	opinion := op
	out.AdvisoryOpinion = &opinion

	action, err := retention.ParseAction(string(op.Action))
	if err == nil && op.Confidence > threshold {
		out.Action = action
		out.Confidence = math.Min(1, rec.Confidence+overrideBoost)
		out.RiskLevel = retention.DefaultRisk(action)
		out.EstimatedSavingsBytes = retention.EstimateSavings(action, rec.SizeBytes)
		out.Reasoning = append([]string{"advisory: " + op.Reasoning}, out.Reasoning...)
		return out
	}

	if op.Reasoning != "" {
		out.Reasoning = append(out.Reasoning, fmt.Sprintf("advisory (%s, %.2f): %s", op.Action, op.Confidence, op.Reasoning))
	}
	return out
}

// Summarize asks the oracle for batch insights on a finished run
func (b *Blender) Summarize(ctx context.Context, run *retention.CleanupRun) (*retention.Insights, error) {
	if !b.Enabled() {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	insights, err := b.oracle.SummarizeRun(callCtx, NewRunSummary(run))
	if err != nil {
		return nil, fmt.Errorf("summarize run %s: %w", run.ID, err)
	}
	return insights, nil
}

// NewRunSummary condenses a run for the oracle
func NewRunSummary(run *retention.CleanupRun) RunSummary {
	summary := RunSummary{
		Scope:                 run.Scope,
		DryRun:                run.DryRun,
		TotalAnalyzed:         run.TotalAnalyzed,
		PotentialSavingsBytes: run.PotentialSavingsBytes,
		SpaceSavedBytes:       run.SpaceSavedBytes,
		ProtectedCount:        run.ProtectedCount,
		Recommended:           make(map[retention.Action]int, len(retention.Actions)),
		Warnings:              len(run.Warnings),
		LargestCandidates:     []Candidate{},
	}

	for _, rec := range run.Recommendations {
		summary.Recommended[rec.Action]++
		if rec.Action != retention.ActionProtect {
			summary.LargestCandidates = append(summary.LargestCandidates, Candidate{
				Path:      rec.ArtifactPath,
				Action:    rec.Action,
				SizeBytes: rec.SizeBytes,
			})
		}
	}

	sort.SliceStable(summary.LargestCandidates, func(i, j int) bool {
		return summary.LargestCandidates[i].SizeBytes > summary.LargestCandidates[j].SizeBytes
	})
	if len(summary.LargestCandidates) > largestInSummary {
		summary.LargestCandidates = summary.LargestCandidates[:largestInSummary]
	}
	return summary
}
