package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/storge/internal/app"
	"github.com/nfrund/storge/internal/chat/events"
	"github.com/nfrund/storge/internal/chat/session"
	"github.com/nfrund/storge/internal/chat/topics"
	"github.com/nfrund/storge/internal/config"
	"github.com/nfrund/storge/internal/pubsub"
)

var chatCmd = &cobra.Command{
	Use:   "chat <room-id>",
	Short: "Open a room and chat interactively",
	Long: `Open a room session and chat from the terminal.

Anything you type is sent to the room. Lines starting with "/" are
commands:

  /switch <room-id>   Leave the current room and open another
  /away               Mark the window hidden (alerts fire for new messages)
  /back               Mark the window visible again
  /quit               Leave and exit

Examples:
  storge chat rooms:design
  storge chat 7f3a`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, config.MustNew(), session.Participant{
			ID:          sess.ParticipantID,
			DisplayName: sess.Username,
		})
		if err != nil {
			return err
		}
		defer a.Shutdown(context.Background())

		if err := subscribeRenderers(ctx, a); err != nil {
			return err
		}

		if _, err := a.Coordinator.Activate(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Joined %s. Type /quit to leave.\n", args[0])

		return inputLoop(ctx, a)
	},
}

// subscribeRenderers prints the derived-view events the session publishes.
func subscribeRenderers(ctx context.Context, a *app.App) error {
	if err := pubsub.SubscribeTyped(ctx, a.Bus, topics.TimelineUpdated,
		func(ctx context.Context, roomID string, ev events.TimelineUpdated) error {
			fmt.Printf("[%s] %s: %s\n", roomID, ev.Author, ev.Text)
			return nil
		}); err != nil {
		return err
	}
	if err := pubsub.SubscribeTyped(ctx, a.Bus, topics.PresenceUpdated,
		func(ctx context.Context, roomID string, ev events.PresenceUpdated) error {
			fmt.Printf("-- online: %s\n", strings.Join(ev.Online, ", "))
			return nil
		}); err != nil {
		return err
	}
	if err := pubsub.SubscribeTyped(ctx, a.Bus, topics.TypingUpdated,
		func(ctx context.Context, roomID string, ev events.TypingUpdated) error {
			if len(ev.Names) > 0 {
				fmt.Printf("-- typing: %s\n", strings.Join(ev.Names, ", "))
			}
			return nil
		}); err != nil {
		return err
	}
	if err := pubsub.SubscribeTyped(ctx, a.Bus, topics.SessionDegraded,
		func(ctx context.Context, roomID string, ev events.SessionDegraded) error {
			fmt.Printf("!! %s degraded (%s); /switch back in to recover\n", ev.Source, ev.Reason)
			return nil
		}); err != nil {
		return err
	}
	return pubsub.SubscribeTyped(ctx, a.Bus, topics.NotificationFired,
		func(ctx context.Context, roomID string, ev events.NotificationFired) error {
			fmt.Printf("** alert: %s\n", ev.Title)
			return nil
		})
}

func inputLoop(ctx context.Context, a *app.App) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runChatCommand(ctx, a, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		// The terminal delivers whole lines, so this is the closest
		// observable point to a keystroke before the send.
		a.Coordinator.Keystroke()
		if err := a.Coordinator.SendMessage(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runChatCommand(ctx context.Context, a *app.App, line string) (done bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, a.Coordinator.Close(ctx)
	case "/switch":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /switch <room-id>")
		}
		if _, err := a.Coordinator.Activate(ctx, fields[1]); err != nil {
			return false, err
		}
		fmt.Printf("Joined %s.\n", fields[1])
		return false, nil
	case "/away":
		a.Visibility.Set(true)
		fmt.Println("Marked away; alerts will fire for new messages.")
		return false, nil
	case "/back":
		a.Visibility.Set(false)
		fmt.Println("Welcome back.")
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
