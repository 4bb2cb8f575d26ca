// Package main is the vecrag service binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/vecrag/internal/config"
	"github.com/kailas-cloud/vecrag/internal/version"
)

// env selects config/<env>.yaml.
var env string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vecrag",
	Short: "Multi-tenant retrieval-augmented answering service",
	Long: `vecrag answers tenant questions from their own document indexes.

Indexes live in a memory LRU, on local disk and in an object store.
Answers come from an LLM with provider fallback.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "config environment (config/<env>.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}
