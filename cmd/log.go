package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samsaffron/agentwire/internal/config"
	"github.com/samsaffron/agentwire/internal/debuglog"
)

var logKind string
var logTail int

func init() {
	logCmd.Flags().StringVar(&logKind, "kind", "", "Only show entries of this kind (ws, resync, cache, session)")
	logCmd.Flags().IntVarP(&logTail, "tail", "n", 0, "Only show the last N entries")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log [path]",
	Short: "Show the wire debug log",
	Long: `Print entries from the JSONL debug log written with --debug-log or the
debug.log config setting. With no path argument the configured location
is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.Debug.Log
	}
	if path == "" {
		return fmt.Errorf("no debug log configured; pass a path or set debug.log")
	}

	entries, err := debuglog.Read(path)
	if err != nil {
		return err
	}
	if logKind != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Kind == logKind {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if logTail > 0 && len(entries) > logTail {
		entries = entries[len(entries)-logTail:]
	}
	for _, e := range entries {
		fmt.Println(e.Format())
	}
	return nil
}
