package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/agentwire/internal/client"
)

func init() {
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(compactCmd)
}

var abortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "Stop a session's current run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		sess, err := app.manager.Open(ctx, args[0], false, client.Callbacks{})
		if err != nil {
			return err
		}
		if err := sess.Abort(ctx); err != nil {
			return err
		}
		fmt.Println("abort requested")
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact <session-id> [instructions...]",
	Short: "Compact a session's conversation context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		sess, err := app.manager.Open(ctx, args[0], false, client.Callbacks{})
		if err != nil {
			return err
		}
		if err := sess.Compact(ctx, strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Println("compaction requested")
		return nil
	},
}
