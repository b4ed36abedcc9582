package retention

import (
	"math"
	"strings"
	"time"

	"github.com/FairForge/reclaimer/internal/intelligence"
)

// businessKeywords mark paths that hold business-sensitive content
var businessKeywords = []string{
	"financial", "finance", "revenue", "sales", "invoice", "payroll",
	"tax", "audit", "compliance", "contract", "legal", "board",
}

// DaysSince returns the fractional number of days between t and now
func DaysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// ImportanceScore rates an artifact between 0 and 10. It never decreases
// as accesses grow and never increases as the last access ages.
func ImportanceScore(p intelligence.AccessProfile, now time.Time) float64 {
	usage := math.Min(float64(p.AccessCount)/10, 5)
	recency := math.Max(5-DaysSince(p.LastAccessedAt, now)/30, 0)
	return math.Min(10, usage+recency)
}

// Criticality flags artifacts that are heavily used, or recently used and
// business-sensitive by name.
func Criticality(path string, p intelligence.AccessProfile, now time.Time) CriticalityFlag {
	if p.AccessCount >= 5 {
		return Critical
	}
	if DaysSince(p.LastAccessedAt, now) <= 7 && hasBusinessKeyword(path) {
		return Critical
	}
	return NotCritical
}

func hasBusinessKeyword(path string) bool {
	lower := strings.ToLower(path)
	for _, kw := range businessKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
