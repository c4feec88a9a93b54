package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/siasat-client/internal/notify"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func (a *app) openNotifications(cmd *cobra.Command) (*notify.Log, error) {
	ctx := cmd.Context()
	st, err := a.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return notify.Open(ctx, store, st.User.Role, notify.Options{Logger: a.log})
}

func printNotification(out io.Writer, n notify.Notification, now time.Time) {
	mark := " "
	if !n.Read {
		mark = "*"
	}
	fmt.Fprintf(out, "%s %-8s %s  (%s)\n", mark, n.ID[:min(8, len(n.ID))], n.Title, notify.TimeAgo(n.At, now))
	if n.Body != "" {
		fmt.Fprintf(out, "           %s\n", n.Body)
	}
}

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notes"},
		Short:   "Show recent notifications",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.openNotifications(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			items := l.List()
			if len(items) == 0 {
				fmt.Fprintln(out, "No notifications")
				return nil
			}
			if badge := notify.Badge(l.Unread()); badge != "" {
				fmt.Fprintf(out, "%s unread\n", badge)
			}
			now := time.Now()
			for _, n := range items {
				printNotification(out, n, now)
			}
			return nil
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "read",
			Short: "Mark every notification read",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := a.openNotifications(cmd)
				if err != nil {
					return err
				}
				l.MarkAllRead()
				return nil
			},
		},
		&cobra.Command{
			Use:   "dismiss <id-prefix>",
			Short: "Remove one notification",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := a.openNotifications(cmd)
				if err != nil {
					return err
				}
				id, ok := matchID(l.List(), args[0])
				if !ok || !l.Dismiss(id) {
					return fmt.Errorf("no notification %q", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every notification",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := a.openNotifications(cmd)
				if err != nil {
					return err
				}
				l.Clear()
				return nil
			},
		},
		newNotificationsWatchCmd(a),
	)
	return cmd
}

// matchID resolves a unique id prefix, as printed by the list.
func matchID(items []notify.Notification, prefix string) (string, bool) {
	found := ""
	for _, n := range items {
		if len(n.ID) >= len(prefix) && n.ID[:len(prefix)] == prefix {
			if found != "" {
				return "", false
			}
			found = n.ID
		}
	}
	return found, found != ""
}

func newNotificationsWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow notifications as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.openNotifications(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := a.whileSignedIn(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()
			fresh := make(chan notify.Notification, 16)
			a.onClose(a.realtime().Subscribe(func(f types.Frame) {
				if !l.Handle(f) {
					return
				}
				select {
				case fresh <- l.List()[0]:
				default:
				}
			}))
			fmt.Fprintln(out, "Watching for notifications. Ctrl+C to stop.")
			for {
				select {
				case <-ctx.Done():
					if errors.Is(context.Cause(ctx), errSessionEnded) {
						return errSessionEnded
					}
					return nil
				case n := <-fresh:
					printNotification(out, n, time.Now())
				}
			}
		},
	}
}
