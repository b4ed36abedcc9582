// Package advisory blends opinions from an external advisory oracle into
// the deterministic retention recommendations.
package advisory

import (
	"context"

	"github.com/FairForge/reclaimer/internal/retention"
)

// Oracle is an external service offering non-authoritative opinions
type Oracle interface {
	AdviseArtifact(ctx context.Context, brief ArtifactBrief) (*retention.AdvisoryOpinion, error)
	SummarizeRun(ctx context.Context, summary RunSummary) (*retention.Insights, error)
}

// ArtifactBrief describes one artifact and the rule-based decision for it
type ArtifactBrief struct {
	Path                    string           `json:"path"`
	Format                  string           `json:"format"`
	SizeBytes               int64            `json:"size_bytes"`
	AgeDays                 float64          `json:"age_days"`
	DaysSinceAccess         float64          `json:"days_since_access"`
	AccessCount             int              `json:"access_count"`
	Pattern                 string           `json:"pattern"`
	RetentionDays           int              `json:"retention_days"`
	DeterministicAction     retention.Action `json:"deterministic_action"`
	DeterministicConfidence float64          `json:"deterministic_confidence"`
}

// RunSummary condenses a finished run for the batch-level opinion
type RunSummary struct {
	Scope                 string                   `json:"scope"`
	DryRun                bool                     `json:"dry_run"`
	TotalAnalyzed         int                      `json:"total_analyzed"`
	PotentialSavingsBytes int64                    `json:"potential_savings_bytes"`
	SpaceSavedBytes       int64                    `json:"space_saved_bytes"`
	ProtectedCount        int                      `json:"protected_count"`
	Recommended           map[retention.Action]int `json:"recommended"`
	Warnings              int                      `json:"warnings"`
	LargestCandidates     []Candidate              `json:"largest_candidates"`
}

// Candidate is one removal candidate in a RunSummary
type Candidate struct {
	Path      string           `json:"path"`
	Action    retention.Action `json:"action"`
	SizeBytes int64            `json:"size_bytes"`
}
