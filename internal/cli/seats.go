package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/DoyleJ11/siasat-client/internal/seating"
	"github.com/DoyleJ11/siasat-client/internal/tui"
)

func newSeatsCmd(a *app) *cobra.Command {
	var (
		seat     string
		noEnroll bool
	)
	cmd := &cobra.Command{
		Use:   "seats <session-id>",
		Short: "Pick a seat and enroll",
		Long: `Open the live seat map for a session. Seats taken by others update as
they happen. Confirm a seat to enroll with it; backing out releases it.
Without a terminal, pass --seat to hold a specific seat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			w, err := c.CheckAdd(args[0])
			if err != nil {
				return userError(err)
			}
			if !w.SeatsEnabled {
				return fmt.Errorf("%s has no seat map; enroll with 'siasat enroll %s'", w.Code, w.SessionID)
			}
			st, _ := a.sessions.Current()
			ctx, cancel := a.whileSignedIn(cmd.Context())
			defer cancel()

			hub := a.realtime()
			a.onClose(c.Attach(hub))
			p, err := seating.NewPicker(a.api, hub, seating.Options{
				SessionID: w.SessionID,
				Self:      st.User.ID,
				Logger:    a.log,
			})
			if err != nil {
				return userError(err)
			}
			p.Start(ctx)
			defer p.Stop()
			select {
			case <-p.Ready():
			case <-ctx.Done():
				return stopped(ctx)
			}

			chosen := ""
			if seat != "" || !interactive(cmd) {
				if seat == "" {
					return errors.New("no terminal for the seat map; pass --seat")
				}
				if err := p.Click(ctx, seat); err != nil {
					if ctx.Err() != nil {
						return stopped(ctx)
					}
					return errors.New(tui.ClickMessage(err))
				}
				chosen = seat
			} else {
				snaps, stop := p.Watch()
				defer stop()
				title := fmt.Sprintf("%s %s", w.Code, w.Name)
				final, err := tea.NewProgram(tui.NewSeatModel(title, p, snaps), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if ctx.Err() != nil {
					return stopped(ctx)
				}
				if err != nil {
					return err
				}
				if m, ok := final.(tui.SeatModel); ok {
					chosen = m.Confirmed
				}
			}

			out := cmd.OutOrStdout()
			if chosen == "" {
				fmt.Fprintln(out, "No seat chosen")
				return nil
			}
			if noEnroll {
				fmt.Fprintf(out, "Holding seat %s\n", seatLabel(p, chosen))
				return nil
			}
			if err := a.enroll(cmd, c, w, chosen); err != nil {
				return err
			}
			fmt.Fprintf(out, "Seat %s\n", seatLabel(p, chosen))
			return nil
		},
	}
	cmd.Flags().StringVar(&seat, "seat", "", "seat id to hold without opening the map")
	cmd.Flags().BoolVar(&noEnroll, "no-enroll", false, "hold the seat but don't enroll yet")
	return cmd
}

func seatLabel(p *seating.Picker, id string) string {
	snaps, stop := p.Watch()
	defer stop()
	s, ok := <-snaps
	if !ok {
		return id
	}
	if seat, found := s.Grid.Seat(id); found && seat.SeatNumber != "" {
		return seat.SeatNumber
	}
	return id
}

var _ tui.SeatPicker = (*seating.Picker)(nil)
