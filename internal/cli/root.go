// Package cli defines the Cobra command tree for the docsage CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docsage",
	Short: "Conversational question answering over your own documents",
	Long: `Docsage indexes your documents and answers questions about them.

It chunks each document at two granularities, embeds the fine-grained
passages for semantic search, and feeds the surrounding context to your
configured LLM — with conversational memory, so follow-up questions
understand what came before.

Run 'docsage setup' once, then 'docsage ingest <path>' and 'docsage ask'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newIngestCmd(),
		newAskCmd(),
		newSourcesCmd(),
		newSessionCmd(),
		newWatchCmd(),
		newSetupCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docsage %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
