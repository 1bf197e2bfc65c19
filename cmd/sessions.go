package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samsaffron/agentwire/internal/cache"
	"github.com/samsaffron/agentwire/internal/config"
	"github.com/samsaffron/agentwire/internal/protocol"
)

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
	sessionsCmd.AddCommand(sessionsCachedCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage agent sessions",
	Long: `List, create, and close sessions on the backend.

Examples:
  agentwire sessions                  # list live sessions
  agentwire sessions new              # create a session, print its id
  agentwire sessions close <id>
  agentwire sessions cached           # list locally cached timelines`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE:  runSessionsList,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session",
	RunE:  runSessionsNew,
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a session on the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClose,
}

var sessionsCachedCmd = &cobra.Command{
	Use:   "cached",
	Short: "List locally cached session timelines",
	RunE:  runSessionsCached,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	sessions, err := app.manager.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No live sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMSGS\tMODEL\tTITLE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.SessionID, s.Status, s.MessageCount, s.Model, s.Title)
	}
	return w.Flush()
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	id, err := app.manager.NewSession(ctx)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runSessionsClose(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	resp, err := app.transport.Send(ctx, protocol.CmdCloseSession, args[0], nil)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	fmt.Printf("closed %s\n", args[0])
	return nil
}

// runSessionsCached reads the local cache only; it works with the backend down.
func runSessionsCached(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No cached sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n",
			e.SessionID, e.Version, e.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
