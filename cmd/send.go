package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samsaffron/agentwire/internal/client"
	"github.com/samsaffron/agentwire/internal/timeline"
	"github.com/samsaffron/agentwire/internal/ui"
)

var sendWait bool
var sendSteer bool
var sendFollowUp bool

func init() {
	sendCmd.Flags().BoolVarP(&sendWait, "wait", "w", false, "Wait for the reply and print it")
	sendCmd.Flags().BoolVar(&sendSteer, "steer", false, "Interrupt the agent mid-run with this message")
	sendCmd.Flags().BoolVar(&sendFollowUp, "follow-up", false, "Queue the message for after the current run")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <session-id> <message...>",
	Short: "Send a message to a session",
	Long: `Send a user message to a session. By default the command returns as soon
as the backend accepts the message; --wait blocks until the agent's reply
finalizes and prints it.

Examples:
  agentwire send abc123 "run the tests"
  agentwire send abc123 --wait "summarize the failures"
  agentwire send abc123 --steer "stop, wrong directory"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendSteer && sendFollowUp {
		return fmt.Errorf("--steer and --follow-up are mutually exclusive")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	sessionID := args[0]
	text := strings.Join(args[1:], " ")
	width := renderWidth()

	replies := make(chan timeline.Message, 8)
	idle := make(chan struct{}, 1)
	cbs := client.Callbacks{}
	if sendWait {
		cbs.OnFinalized = func(m timeline.Message) {
			if m.Role == timeline.RoleAssistant {
				replies <- m
			}
		}
		cbs.OnBusy = func(busy bool) {
			if !busy {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		}
	}

	sess, err := app.manager.Open(ctx, sessionID, false, cbs)
	if err != nil {
		return err
	}

	switch {
	case sendSteer:
		err = sess.Steer(ctx, text)
	case sendFollowUp:
		err = sess.FollowUp(ctx, text)
	default:
		err = sess.Send(ctx, text)
	}
	if err != nil {
		return err
	}
	if !sendWait {
		return nil
	}

	// Print assistant replies until the agent goes idle again. Idle can
	// race ahead of the finalized reply on the buffered channels, so drain
	// replies before honoring it.
	sawReply, sawIdle := false, false
	for {
		select {
		case m := <-replies:
			sawReply = true
			fmt.Println(ui.RenderMessage(m, width))
			if sawIdle && len(replies) == 0 {
				return nil
			}
		case <-idle:
			sawIdle = true
			if sawReply && len(replies) == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
