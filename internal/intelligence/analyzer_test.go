package intelligence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func accesses(path string, daysAgo ...float64) []UsageRecord {
	records := make([]UsageRecord, 0, len(daysAgo))
	for _, d := range daysAgo {
		records = append(records, UsageRecord{
			ArtifactPath: path,
			AccessedAt:   epoch.Add(-time.Duration(d * float64(day))),
		})
	}
	return records
}

func TestAnalyze(t *testing.T) {
	t.Run("no history falls back to modification time", func(t *testing.T) {
		artifact := Artifact{Path: "reports/acme/a.csv", LastModifiedAt: epoch.Add(-120 * day)}

		profile := Analyze(artifact, nil, nil)

		assert.Equal(t, 0, profile.AccessCount)
		assert.Equal(t, artifact.LastModifiedAt, profile.LastAccessedAt)
		assert.Equal(t, PatternNever, profile.Pattern)
		assert.Empty(t, profile.AccessIntervalsDays)
		assert.Nil(t, profile.PredictedNextAccessAt)
	})

	t.Run("intervals are ordered most recent first", func(t *testing.T) {
		artifact := Artifact{Path: "reports/acme/a.csv", LastModifiedAt: epoch.Add(-400 * day)}
		// deliberately unsorted input
		records := accesses(artifact.Path, 10, 1, 4)

		profile := Analyze(artifact, records, nil)

		require.Len(t, profile.AccessIntervalsDays, 2)
		assert.InDelta(t, 3.0, profile.AccessIntervalsDays[0], 1e-9)
		assert.InDelta(t, 6.0, profile.AccessIntervalsDays[1], 1e-9)
		assert.Equal(t, epoch.Add(-1*day), profile.LastAccessedAt)
		assert.Equal(t, PatternFrequent, profile.Pattern)
	})

	t.Run("predicts next access from mean and spread", func(t *testing.T) {
		artifact := Artifact{Path: "reports/acme/a.csv"}
		records := accesses(artifact.Path, 0, 10, 30)

		profile := Analyze(artifact, records, nil)

		// gaps 10 and 20: mean 15, population stddev 5
		require.NotNil(t, profile.PredictedNextAccessAt)
		expected := epoch.Add(time.Duration(17.5 * float64(day)))
		assert.WithinDuration(t, expected, *profile.PredictedNextAccessAt, time.Second)
	})

	t.Run("attaches duplicate links", func(t *testing.T) {
		a := Artifact{Path: "reports/acme/sales-2024-01-01.csv", SizeBytes: 10, LastModifiedAt: epoch.Add(-2 * day)}
		b := Artifact{Path: "reports/acme/sales-2024-02-01.csv", SizeBytes: 10, LastModifiedAt: epoch.Add(-1 * day)}
		idx := IndexDuplicates([]Artifact{a, b})

		profile := Analyze(a, nil, idx)

		assert.Equal(t, []string{b.Path}, profile.DuplicateOf)
		assert.Equal(t, b.Path, profile.CanonicalPath)
		assert.False(t, profile.IsCanonical(a.Path))
	})
}

func TestClassifyPattern(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		intervals []float64
		want      Pattern
	}{
		{"no accesses", 0, nil, PatternNever},
		{"single access", 1, nil, PatternRare},
		{"all gaps under a week", 3, []float64{1, 6.9}, PatternFrequent},
		{"all gaps over a month", 3, []float64{31, 45}, PatternRare},
		{"all gaps over two months", 3, []float64{61, 90}, PatternRare},
		{"gaps between the bands", 3, []float64{10, 20}, PatternOccasional},
		{"mixed gaps", 3, []float64{2, 40}, PatternOccasional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPattern(tt.count, tt.intervals))
		})
	}
}

func TestClassifyPattern_NeverOnlyWithoutHistory(t *testing.T) {
	for count := 1; count < 5; count++ {
		intervals := make([]float64, count-1)
		for i := range intervals {
			intervals[i] = float64(15 * (i + 1))
		}
		assert.NotEqual(t, PatternNever, ClassifyPattern(count, intervals))
	}
}

func TestStats(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev(nil))
	assert.InDelta(t, 5.0, Mean([]float64{2, 4, 6, 8}), 1e-9)
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}
