package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/agentwire/internal/client"
	"github.com/samsaffron/agentwire/internal/timeline"
	"github.com/samsaffron/agentwire/internal/ui"
)

var tailCreate bool
var tailWidth int

func init() {
	tailCmd.Flags().BoolVar(&tailCreate, "create", false, "Create the session if it does not exist")
	tailCmd.Flags().IntVar(&tailWidth, "width", 0, "Render width (0 = detect)")
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a session's conversation",
	Long: `Attach to a session and print its conversation as it happens. The
existing timeline is printed first, then each message as it finalizes.
Interrupt with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	width := renderWidth()
	sessionID := args[0]

	// Callbacks fire on the session's event loop; the backlog print below
	// runs here. One mutex covers the shared print state.
	var mu sync.Mutex
	printed := make(map[string]bool)
	busyShown := false

	cbs := client.Callbacks{
		OnFinalized: func(m timeline.Message) {
			mu.Lock()
			defer mu.Unlock()
			if printed[m.ID] {
				return
			}
			printed[m.ID] = true
			clearStatus(&busyShown)
			fmt.Println(ui.RenderMessage(m, width))
		},
		OnBusy: func(busy bool) {
			mu.Lock()
			defer mu.Unlock()
			if busy && !busyShown {
				fmt.Println(ui.StatusLine(true))
				busyShown = true
			} else if !busy {
				clearStatus(&busyShown)
			}
		},
		OnTitle: func(_, title string) {
			fmt.Fprintf(os.Stderr, "· session titled %q\n", title)
		},
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, ui.RenderError(err))
		},
	}

	sess, err := app.manager.Open(ctx, sessionID, tailCreate, cbs)
	if err != nil {
		return err
	}

	// Print what the session already holds; later finalizations skip these.
	// Snapshot outside the lock: Messages round-trips the event loop, and the
	// loop may itself be waiting on mu inside a callback.
	backlog := sess.Messages()
	mu.Lock()
	for _, m := range backlog {
		if m.IsStreaming {
			continue
		}
		printed[m.ID] = true
		fmt.Println(ui.RenderMessage(m, width))
	}
	mu.Unlock()

	<-ctx.Done()
	return nil
}

func clearStatus(busyShown *bool) {
	if *busyShown {
		// Overwrite the status line in place.
		fmt.Print("\033[1A\033[2K")
		*busyShown = false
	}
}

func renderWidth() int {
	if tailWidth > 0 {
		return tailWidth
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		if w > 100 {
			return 100
		}
		return w
	}
	return 80
}
