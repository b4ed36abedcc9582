package retention

import (
	"fmt"
	"time"

	"github.com/FairForge/reclaimer/internal/intelligence"
)

const (
	// largeArtifactBytes is the size above which rarely used artifacts are compressed
	largeArtifactBytes = 100 * 1024 * 1024

	// archiveHorizonDays is how far out a predicted access must be to archive
	archiveHorizonDays = 90
)

// Input carries everything the rule chain needs for one artifact
type Input struct {
	Artifact intelligence.Artifact
	Profile  intelligence.AccessProfile
	Policy   RetentionPolicy
	Now      time.Time
}

// Recommend runs the ordered rule chain; the first matching rule decides.
func Recommend(in Input) Recommendation {
	a, p, pol := in.Artifact, in.Profile, in.Policy
	days := DaysSince(p.LastAccessedAt, in.Now)
	score := ImportanceScore(p, in.Now)
	limit := float64(pol.RetentionDays)

	rec := Recommendation{
		ArtifactPath: a.Path,
		Format:       a.Format,
		SizeBytes:    a.SizeBytes,
	}

	switch {
	case Criticality(a.Path, p, in.Now) == Critical:
		rec.decide(ActionProtect, 0.9, RiskLow,
			fmt.Sprintf("critical artifact: %d accesses, last used %.0f days ago", p.AccessCount, days))

	case score >= 8:
		rec.decide(ActionProtect, 0.8, RiskLow,
			fmt.Sprintf("high importance score %.1f", score))

	case days > limit && p.AccessCount == 0:
		rec.decide(ActionDelete, 0.9, RiskLow,
			fmt.Sprintf("never accessed and %.0f days old, past %d day retention", days, pol.RetentionDays))

	case days > limit && p.AccessCount < 3 && days > 2*limit:
		rec.decide(ActionDelete, 0.8, RiskLow,
			fmt.Sprintf("only %d accesses and idle for %.0f days, over twice the %d day retention", p.AccessCount, days, pol.RetentionDays))

	case days > limit:
		rec.decide(ActionArchive, 0.7, RiskMedium,
			fmt.Sprintf("idle for %.0f days, past %d day retention", days, pol.RetentionDays))

	case len(p.DuplicateOf) > 0 && !p.IsCanonical(a.Path):
		rec.decide(ActionDelete, 0.85, RiskLow,
			fmt.Sprintf("duplicate of %s", p.CanonicalPath))

	case a.SizeBytes > largeArtifactBytes && p.AccessCount < 2 && !AlreadyCompressed(a.Format):
		rec.decide(ActionCompress, 0.7, RiskLow,
			fmt.Sprintf("large artifact (%d bytes) with %d accesses", a.SizeBytes, p.AccessCount))

	case p.PredictedNextAccessAt != nil && p.PredictedNextAccessAt.Sub(in.Now) > archiveHorizonDays*24*time.Hour:
		rec.decide(ActionArchive, 0.6, RiskMedium,
			fmt.Sprintf("next access predicted for %s", p.PredictedNextAccessAt.Format("2006-01-02")))

	default:
		rec.decide(ActionProtect, 0.6, RiskHigh,
			fmt.Sprintf("actively used (%s), not enough evidence to remove", p.Pattern))
	}

	return rec
}

func (r *Recommendation) decide(action Action, confidence float64, risk RiskLevel, reason string) {
	r.Action = action
	r.Confidence = confidence
	r.RiskLevel = risk
	r.Reasoning = append(r.Reasoning, reason)
	r.EstimatedSavingsBytes = EstimateSavings(action, r.SizeBytes)
}

// EstimateSavings returns the bytes an action is expected to free
func EstimateSavings(action Action, size int64) int64 {
	switch action {
	case ActionDelete:
		return size
	case ActionArchive:
		return size * 9 / 10
	case ActionCompress:
		return size * 7 / 10
	default:
		return 0
	}
}

// DefaultRisk is the risk level attached to an action chosen outside the
// rule chain, such as an advisory override.
func DefaultRisk(action Action) RiskLevel {
	switch action {
	case ActionArchive:
		return RiskMedium
	case ActionDelete, ActionCompress, ActionProtect:
		return RiskLow
	default:
		return RiskHigh
	}
}

// Protect builds a PROTECT recommendation decided outside the rule chain
func Protect(a intelligence.Artifact, confidence float64, reason string) Recommendation {
	rec := Recommendation{ArtifactPath: a.Path, Format: a.Format, SizeBytes: a.SizeBytes}
	rec.decide(ActionProtect, confidence, RiskLow, reason)
	return rec
}
