package main

import (
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/spf13/cobra"
)

var (
	listScope    string
	historyLimit int
)

func init() {
	policiesCmd.Flags().StringVar(&listScope, "scope", "", "Scope to resolve policies for (required)")
	_ = policiesCmd.MarkFlagRequired("scope")

	historyCmd.Flags().StringVar(&listScope, "scope", "", "Scope to read the audit log for (required)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of entries")
	_ = historyCmd.MarkFlagRequired("scope")
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Print the retention policies that apply to a scope",
	Long: `Print the retention policies that apply to a scope as JSON, followed by
the fallback policy used for formats no policy names.

Examples:
  reclaimer policies --scope reports/acme/`,
	RunE: runPolicies,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the newest audit log entries for a scope",
	Long: `Print executed cleanup actions for a scope, newest first.

Without a database the audit log lives in memory, so this only shows
entries written by the same process.

Examples:
  reclaimer history --scope reports/acme/ --limit 20`,
	RunE: runHistory,
}

// PoliciesResult is the output of the policies command
type PoliciesResult struct {
	Scope    string                      `json:"scope"`
	Policies []retention.RetentionPolicy `json:"policies"`
	Fallback retention.RetentionPolicy   `json:"fallback"`
}

func runPolicies(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	policies, err := a.loadPolicies(ctx, listScope)
	if err != nil {
		return err
	}
	if policies == nil {
		policies = []retention.RetentionPolicy{}
	}

	fallback := retention.DefaultPolicy()
	fallback.RetentionDays = a.cfg.Engine.DefaultRetentionDays

	return printJSON(cmd.OutOrStdout(), PoliciesResult{
		Scope:    listScope,
		Policies: policies,
		Fallback: fallback,
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.history.Recent(ctx, listScope, historyLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entries)
}
