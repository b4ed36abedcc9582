// Package main implements the reclaimer CLI: one-off cleanup runs, read-only
// analysis and the scheduled daemon.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is the YAML configuration file
	cfgFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reclaimer",
	Short: "Storage retention decision engine",
	Long: `reclaimer analyzes stored report artifacts, recommends keep, archive,
compress or delete actions per artifact from usage history and retention
policies, and optionally executes them.

Settings come from the --config file and RECLAIMER_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("RECLAIMER_CONFIG"), "path to YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(policiesCmd)
	rootCmd.AddCommand(historyCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
