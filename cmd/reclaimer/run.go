package main

import (
	"fmt"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/spf13/cobra"
)

var (
	// run and analyze flags
	runScope  string
	runDryRun bool
)

func init() {
	runCmd.Flags().StringVar(&runScope, "scope", "", "Artifact prefix to clean up (required)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", true, "Report what would happen without changing the store")
	_ = runCmd.MarkFlagRequired("scope")

	analyzeCmd.Flags().StringVar(&runScope, "scope", "", "Artifact prefix to analyze (required)")
	_ = analyzeCmd.MarkFlagRequired("scope")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one cleanup pass over a scope",
	Long: `Run one cleanup pass over a scope and print the CleanupRun as JSON.

Dry run is the default; pass --dry-run=false to execute actions. Without a
database there is no usage history, so executing runs are downgraded to dry
run with a warning.

Examples:
  # Preview a cleanup
  reclaimer run --scope reports/acme/

  # Execute it
  reclaimer run --scope reports/acme/ --dry-run=false --config /etc/reclaimer.yaml`,
	RunE: runCleanup,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print recommendations without executing or auditing anything",
	Long: `Analyze a scope and print the recommendations and warnings as JSON.
Nothing is executed, tagged or written to the audit log.

Examples:
  reclaimer analyze --scope reports/acme/`,
	RunE: runAnalyze,
}

// AnalyzeResult is the output of the analyze command
type AnalyzeResult struct {
	Scope           string                     `json:"scope"`
	Recommendations []retention.Recommendation `json:"recommendations"`
	Warnings        []retention.Warning        `json:"warnings"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	policies, err := a.loadPolicies(ctx, runScope)
	if err != nil {
		return err
	}

	run, err := a.engine.RunCleanup(ctx, runScope, policies, runDryRun)
	if err != nil {
		return fmt.Errorf("cleanup %s: %w", runScope, err)
	}
	return printJSON(cmd.OutOrStdout(), run)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	policies, err := a.loadPolicies(ctx, runScope)
	if err != nil {
		return err
	}

	recs, warnings, err := a.engine.AnalyzeOnly(ctx, runScope, policies)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", runScope, err)
	}
	if recs == nil {
		recs = []retention.Recommendation{}
	}
	if warnings == nil {
		warnings = []retention.Warning{}
	}
	return printJSON(cmd.OutOrStdout(), AnalyzeResult{
		Scope:           runScope,
		Recommendations: recs,
		Warnings:        warnings,
	})
}
