// Package cmd implements the agentwire CLI.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "WebSocket endpoint (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Auth token (overrides config)")
	rootCmd.PersistentFlags().StringVar(&debugLogFlag, "debug-log", "", "Append wire diagnostics to this JSONL file")
}

var rootCmd = &cobra.Command{
	Use:   "agentwire",
	Short: "Follow and drive agent sessions from the terminal",
	Long: `agentwire attaches to a running agent backend over WebSocket and keeps a
live, ordered view of each session's conversation.

Examples:
  agentwire sessions                  # list live sessions
  agentwire tail <session-id>         # follow a session's stream
  agentwire send <session-id> "run the tests and summarize failures"
  agentwire config                    # view effective configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var serverFlag string
var tokenFlag string
var debugLogFlag string

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
