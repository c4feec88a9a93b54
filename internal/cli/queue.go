package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/queue"
	"github.com/DoyleJ11/siasat-client/internal/tui"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func newQueueCmd(a *app) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Join the registration queue and wait for your turn",
		Long: `Join the registration queue and wait. Position and estimated wait update
live from the server; the command returns once you are let through.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQueue(cmd, plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print updates as lines instead of the full-screen view")
	return cmd
}

func (a *app) newRunner() *queue.Runner {
	return queue.NewRunner(a.api, a.realtime(), queue.Options{
		PollInterval:      a.cfg.Queue.PollInterval,
		CountdownInterval: a.cfg.Queue.CountdownInterval,
		Logger:            a.log,
	})
}

func (a *app) runQueue(cmd *cobra.Command, plain bool) error {
	if _, err := a.requireRole(cmd.Context(), types.RoleStudent); err != nil {
		return err
	}
	ctx, cancel := a.whileSignedIn(cmd.Context())
	defer cancel()

	r := a.newRunner()
	snaps, stop := r.Watch()
	defer stop()
	r.Start(ctx)
	defer r.Stop()

	out := cmd.OutOrStdout()
	if !plain && interactive(cmd) {
		final, err := tea.NewProgram(tui.NewQueueModel(snaps), tea.WithContext(ctx)).Run()
		if ctx.Err() != nil {
			return stopped(ctx)
		}
		if err != nil {
			return err
		}
		if m, ok := final.(tui.QueueModel); ok && m.Admitted {
			fmt.Fprintln(out, "You're in. Next: siasat workshops")
			return nil
		}
		fmt.Fprintln(out, "Left the waiting room. Your place is kept while the server holds it.")
		return nil
	}

	last := -1
	for {
		select {
		case <-ctx.Done():
			return stopped(ctx)
		case s, ok := <-snaps:
			if !ok {
				if ctx.Err() != nil {
					return stopped(ctx)
				}
				select {
				case <-r.Done():
					fmt.Fprintln(out, "You're in. Next: siasat workshops")
				default:
				}
				return nil
			}
			if s.State.Phase == engine.PhaseActive {
				fmt.Fprintln(out, "You're in. Next: siasat workshops")
				return nil
			}
			if s.LastError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "! %s\n", s.LastError)
			}
			if s.State.Phase == engine.PhaseWaiting && s.State.Version != last {
				last = s.State.Version
				fmt.Fprintf(out, "Position %d, %d in front, estimated %s\n", s.State.Position, s.InFront, s.Countdown)
			}
		}
	}
}
