// internal/intelligence/types.go
package intelligence

import (
	"time"
)

// Artifact is a stored object subject to retention evaluation
type Artifact struct {
	Path           string     `json:"path"`
	SizeBytes      int64      `json:"size_bytes"`
	LastModifiedAt time.Time  `json:"last_modified_at"`
	Format         string     `json:"format"`
	StorageClass   string     `json:"storage_class,omitempty"`
	Archived       bool       `json:"archived,omitempty"`
	ProtectedAt    *time.Time `json:"protected_at,omitempty"`
}

// UsageRecord is one historical access to an artifact
type UsageRecord struct {
	ArtifactPath string    `json:"artifact_path"`
	AccessedAt   time.Time `json:"accessed_at"`
	Requester    string    `json:"requester,omitempty"`
}

// Pattern classifies how an artifact is accessed over time
type Pattern string

const (
	PatternFrequent   Pattern = "frequent"
	PatternOccasional Pattern = "occasional"
	PatternRare       Pattern = "rare"
	PatternNever      Pattern = "never"
)

// AccessProfile summarizes the usage history of one artifact.
// Pattern is PatternNever exactly when AccessCount is zero, and
// PredictedNextAccessAt is only set when AccessIntervalsDays is non-empty.
type AccessProfile struct {
	AccessCount           int        `json:"access_count"`
	LastAccessedAt        time.Time  `json:"last_accessed_at"`
	AccessIntervalsDays   []float64  `json:"access_intervals_days,omitempty"`
	Pattern               Pattern    `json:"pattern"`
	PredictedNextAccessAt *time.Time `json:"predicted_next_access_at,omitempty"`
	DuplicateOf           []string   `json:"duplicate_of,omitempty"`
	CanonicalPath         string     `json:"canonical_path,omitempty"`
}

// IsCanonical reports whether the artifact is the copy kept within its
// duplicate set. Artifacts without duplicates are always canonical.
func (p AccessProfile) IsCanonical(path string) bool {
	return p.CanonicalPath == "" || p.CanonicalPath == path
}
