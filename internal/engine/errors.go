package engine

import (
	"fmt"

	"github.com/FairForge/reclaimer/internal/retention"
)

// ScopeEnumerationError means the artifacts of a scope could not be listed.
// It is the only error that fails a run.
type ScopeEnumerationError struct {
	Scope string
	Err   error
}

func (e ScopeEnumerationError) Error() string {
	return fmt.Sprintf("enumerate scope %q: %v", e.Scope, e.Err)
}

func (e ScopeEnumerationError) Unwrap() error { return e.Err }

// ArtifactAnalysisError means one artifact could not be analyzed
type ArtifactAnalysisError struct {
	Path string
	Err  error
}

func (e ArtifactAnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

func (e ArtifactAnalysisError) Unwrap() error { return e.Err }

// AdvisoryError means the oracle gave no usable answer
type AdvisoryError struct {
	Path string
	Err  error
}

func (e AdvisoryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("advisory: %v", e.Err)
	}
	return fmt.Sprintf("advisory %s: %v", e.Path, e.Err)
}

func (e AdvisoryError) Unwrap() error { return e.Err }

// ExecutionError means an action against the object store failed
type ExecutionError struct {
	Path   string
	Action retention.Action
	Err    error
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("execute %s on %s: %v", e.Action, e.Path, e.Err)
}

func (e ExecutionError) Unwrap() error { return e.Err }

// toWarning converts a non-fatal error into a run warning
func toWarning(err error) retention.Warning {
	switch e := err.(type) {
	case ArtifactAnalysisError:
		return retention.Warning{ArtifactPath: e.Path, Kind: retention.WarningAnalysis, Message: e.Err.Error()}
	case AdvisoryError:
		return retention.Warning{ArtifactPath: e.Path, Kind: retention.WarningAdvisory, Message: e.Err.Error()}
	case ExecutionError:
		return retention.Warning{ArtifactPath: e.Path, Kind: retention.WarningExecution, Action: e.Action, Message: e.Err.Error()}
	default:
		return retention.Warning{Kind: retention.WarningAnalysis, Message: err.Error()}
	}
}
