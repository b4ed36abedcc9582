package retention

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the disposition decided for one artifact
type Action string

// Retention actions
const (
	ActionDelete   Action = "DELETE"
	ActionArchive  Action = "ARCHIVE"
	ActionCompress Action = "COMPRESS"
	ActionProtect  Action = "PROTECT"
)

// Actions lists every action in a stable order
var Actions = []Action{ActionDelete, ActionArchive, ActionCompress, ActionProtect}

// ParseAction accepts any casing of a known action
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionDelete, ActionArchive, ActionCompress, ActionProtect:
		return a, nil
	}
	return "", fmt.Errorf("invalid action: %q", s)
}

// RiskLevel grades how costly a wrong decision would be
type RiskLevel string

// Risk levels
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Priority of a retention policy
type Priority string

// Policy priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CriticalityFlag marks artifacts that must not be removed
type CriticalityFlag string

// Criticality values
const (
	Critical    CriticalityFlag = "critical"
	NotCritical CriticalityFlag = "low"
)

// Legal hold statuses
const (
	HoldStatusActive   = "active"
	HoldStatusExpired  = "expired"
	HoldStatusReleased = "released"
)

// RetentionPolicy defines how long artifacts of one format are kept
type RetentionPolicy struct {
	ID            uuid.UUID `yaml:"-" json:"id,omitempty"`
	Format        string    `yaml:"format" json:"format"`
	RetentionDays int       `yaml:"retention_days" json:"retention_days"`
	MaxFiles      int       `yaml:"max_files" json:"max_files"`
	MaxSizeBytes  int64     `yaml:"max_size_bytes" json:"max_size_bytes"`
	Priority      Priority  `yaml:"priority" json:"priority"`

	// Scope restricts the policy to one namespace prefix. Empty = all scopes.
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	CreatedAt time.Time `yaml:"-" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at,omitempty"`
}

// Validate checks the policy fields
func (p RetentionPolicy) Validate() error {
	if strings.TrimSpace(p.Format) == "" {
		return fmt.Errorf("format is required")
	}
	if p.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	if p.MaxFiles < 0 || p.MaxSizeBytes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch p.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, "":
	default:
		return fmt.Errorf("invalid priority: %s", p.Priority)
	}
	return nil
}

// LegalHold prevents any removal of artifacts under a path prefix
type LegalHold struct {
	ID         uuid.UUID  `json:"id"`
	Scope      string     `json:"scope"`
	Prefix     string     `json:"prefix"`
	Reason     string     `json:"reason"`
	CaseNumber string     `json:"case_number,omitempty"`
	CreatedBy  string     `json:"created_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Covers reports whether the hold applies to a path at the given time
func (h *LegalHold) Covers(scope, path string, now time.Time) bool {
	if h.Status != HoldStatusActive {
		return false
	}
	if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
		return false
	}
	if h.Scope != "" && h.Scope != scope {
		return false
	}
	return strings.HasPrefix(path, h.Prefix)
}

// AdvisoryOpinion is the advisory oracle's view on one artifact
type AdvisoryOpinion struct {
	ContentType            string  `json:"content_type"`
	BusinessValue          int     `json:"business_value"`
	SuggestedRetentionDays int     `json:"suggested_retention_days"`
	Action                 Action  `json:"action"`
	Confidence             float64 `json:"confidence"`
	Reasoning              string  `json:"reasoning"`
}

// Recommendation is the decision for one artifact
type Recommendation struct {
	ArtifactPath          string           `json:"artifact_path"`
	Format                string           `json:"format,omitempty"`
	SizeBytes             int64            `json:"size_bytes"`
	Action                Action           `json:"action"`
	Confidence            float64          `json:"confidence"`
	Reasoning             []string         `json:"reasoning"`
	RiskLevel             RiskLevel        `json:"risk_level"`
	EstimatedSavingsBytes int64            `json:"estimated_savings_bytes"`
	AdvisoryOpinion       *AdvisoryOpinion `json:"advisory_opinion,omitempty"`
}

// CleanupLogEntry is the audit record of an executed action
type CleanupLogEntry struct {
	ID              uuid.UUID `json:"id"`
	Scope           string    `json:"scope"`
	ArtifactPath    string    `json:"artifact_path"`
	Action          Action    `json:"action"`
	SpaceSavedBytes int64     `json:"space_saved_bytes"`
	Reasoning       string    `json:"reasoning"`
	Confidence      float64   `json:"confidence"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// NewLogEntry flattens an executed recommendation into an audit record
func NewLogEntry(scope string, rec Recommendation, saved int64, at time.Time) CleanupLogEntry {
	return CleanupLogEntry{
		ID:              uuid.New(),
		Scope:           scope,
		ArtifactPath:    rec.ArtifactPath,
		Action:          rec.Action,
		SpaceSavedBytes: saved,
		Reasoning:       strings.Join(rec.Reasoning, "; "),
		Confidence:      rec.Confidence,
		ExecutedAt:      at,
	}
}

// Insights is the batch-level advisory summary of a run
type Insights struct {
	OverallRecommendation string `json:"overall_recommendation"`
	BusinessImpact        string `json:"business_impact"`
	EstimatedCostSavings  string `json:"estimated_cost_savings"`
	RiskAssessment        string `json:"risk_assessment"`
}

// WarningKind classifies a non-fatal failure
type WarningKind string

// Warning kinds
const (
	WarningAnalysis  WarningKind = "analysis"
	WarningAdvisory  WarningKind = "advisory"
	WarningExecution WarningKind = "execution"
	WarningCancelled WarningKind = "cancelled"
)

// Warning records one non-fatal failure of a run
type Warning struct {
	ArtifactPath string      `json:"artifact_path,omitempty"`
	Kind         WarningKind `json:"kind"`
	Action       Action      `json:"action,omitempty"`
	Message      string      `json:"message"`
}

func (w Warning) String() string {
	var sb strings.Builder
	sb.WriteString(string(w.Kind))
	if w.ArtifactPath != "" {
		sb.WriteString(" ")
		sb.WriteString(w.ArtifactPath)
	}
	if w.Action != "" {
		sb.WriteString(" (")
		sb.WriteString(string(w.Action))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(w.Message)
	return sb.String()
}

// CleanupRun is the aggregate result of one run over a scope
type CleanupRun struct {
	ID                    uuid.UUID        `json:"id"`
	Scope                 string           `json:"scope"`
	DryRun                bool             `json:"dry_run"`
	StartedAt             time.Time        `json:"started_at"`
	CompletedAt           time.Time        `json:"completed_at"`
	TotalAnalyzed         int              `json:"total_analyzed"`
	Recommendations       []Recommendation `json:"recommendations"`
	PotentialSavingsBytes int64            `json:"potential_savings_bytes"`
	ProtectedCount        int              `json:"protected_count"`
	Executed              map[Action]int   `json:"executed"`
	SpaceSavedBytes       int64            `json:"space_saved_bytes"`
	Warnings              []Warning        `json:"warnings"`
	Insights              *Insights        `json:"insights,omitempty"`
	PolicyViolations      []string         `json:"policy_violations,omitempty"`
	Cancelled             bool             `json:"cancelled"`
}

// NewCleanupRun starts an empty run
func NewCleanupRun(scope string, dryRun bool, startedAt time.Time) *CleanupRun {
	executed := make(map[Action]int, len(Actions))
	for _, a := range Actions {
		executed[a] = 0
	}
	return &CleanupRun{
		ID:              uuid.New(),
		Scope:           scope,
		DryRun:          dryRun,
		StartedAt:       startedAt,
		Recommendations: []Recommendation{},
		Executed:        executed,
		Warnings:        []Warning{},
	}
}

// ExecutedTotal sums the executed action counters
func (r *CleanupRun) ExecutedTotal() int {
	total := 0
	for _, n := range r.Executed {
		total += n
	}
	return total
}
