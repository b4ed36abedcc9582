// internal/intelligence/analyzer.go
package intelligence

import (
	"math"
	"sort"
	"time"
)

const day = 24 * time.Hour

// Analyze builds the access profile for one artifact from its usage records.
// dups may be nil when duplicate detection is not wanted.
func Analyze(artifact Artifact, records []UsageRecord, dups *DuplicateIndex) AccessProfile {
	profile := AccessProfile{
		AccessCount:    len(records),
		LastAccessedAt: artifact.LastModifiedAt,
	}

	if len(records) > 0 {
		times := make([]time.Time, len(records))
		for i, r := range records {
			times[i] = r.AccessedAt
		}
		sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })

		profile.LastAccessedAt = times[0]
		profile.AccessIntervalsDays = intervalsDays(times)
	}

	profile.Pattern = ClassifyPattern(profile.AccessCount, profile.AccessIntervalsDays)

	if next, ok := PredictNextAccess(profile.LastAccessedAt, profile.AccessIntervalsDays); ok {
		profile.PredictedNextAccessAt = &next
	}

	if dups != nil {
		profile.DuplicateOf = dups.DuplicatesOf(artifact.Path)
		if len(profile.DuplicateOf) > 0 {
			profile.CanonicalPath = dups.Canonical(artifact.Path)
		}
	}

	return profile
}

// intervalsDays returns the gaps between consecutive timestamps, which must
// already be sorted newest first.
func intervalsDays(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	out := make([]float64, 0, len(times)-1)
	for i := 0; i < len(times)-1; i++ {
		out = append(out, float64(times[i].Sub(times[i+1]))/float64(day))
	}
	return out
}

// ClassifyPattern maps an access history onto a Pattern.
//
// The checks run in a fixed order: frequent (every gap under 7 days), then
// rare (every gap over 30 days). Gaps over 60 days are therefore already
// rare. Histories that match neither, and therefore sit between the two
// bands or mix them, are occasional. A single access has no gaps and is rare.
func ClassifyPattern(accessCount int, intervals []float64) Pattern {
	if accessCount == 0 {
		return PatternNever
	}
	if len(intervals) == 0 {
		return PatternRare
	}

	switch {
	case every(intervals, func(d float64) bool { return d < 7 }):
		return PatternFrequent
	case every(intervals, func(d float64) bool { return d > 30 }):
		return PatternRare
	default:
		return PatternOccasional
	}
}

// PredictNextAccess projects the next access as the last access plus the mean
// gap and half a standard deviation.
func PredictNextAccess(last time.Time, intervals []float64) (time.Time, bool) {
	if len(intervals) == 0 {
		return time.Time{}, false
	}
	days := Mean(intervals) + 0.5*StdDev(intervals)
	return last.Add(time.Duration(days * float64(day))), true
}

// Mean returns the arithmetic mean, or 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var acc float64
	for _, v := range values {
		acc += (v - m) * (v - m)
	}
	return math.Sqrt(acc / float64(len(values)))
}

func every(values []float64, pred func(float64) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}
