package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/siasat-client/internal/catalog"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// openCatalog loads the selection page: queue admission first, then the
// available and enrolled lists.
func (a *app) openCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	ctx := cmd.Context()
	if _, err := a.requireRole(ctx, types.RoleStudent); err != nil {
		return nil, err
	}
	c := catalog.New(a.api, catalog.Options{Logger: a.log})
	if err := c.Load(ctx); err != nil {
		return nil, userError(err)
	}
	return c, nil
}

func schedule(w types.Workshop) string {
	if w.Schedule != "" {
		return w.Schedule
	}
	parts := make([]string, 0, len(w.Schedules))
	for _, s := range w.Schedules {
		parts = append(parts, fmt.Sprintf("%s %s-%s", s.Day, s.StartTime, s.EndTime))
	}
	if len(parts) == 0 && w.Date != "" {
		return w.Date
	}
	return strings.Join(parts, ", ")
}

func printCredits(out io.Writer, c *catalog.Catalog) {
	total, limit := c.Credits()
	fmt.Fprintf(out, "Credits: %d / %d", total, limit)
	if left := c.SessionLeft(); left > 0 {
		fmt.Fprintf(out, "   Session time left: %s", left)
	}
	fmt.Fprintln(out)
}

func newWorkshopsCmd(a *app) *cobra.Command {
	var f catalog.Filter
	cmd := &cobra.Command{
		Use:     "workshops",
		Aliases: []string{"ws"},
		Short:   "List workshops open for registration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printCredits(out, c)
			entries := c.Entries(f)
			if len(entries) == 0 {
				fmt.Fprintln(out, "No workshops match.")
				return nil
			}
			fmt.Fprintf(out, "%-10s %-8s %-32s %3s %9s  %-9s %s\n", "SESSION", "CODE", "NAME", "CR", "SEATS", "STATUS", "SCHEDULE")
			for _, e := range entries {
				status := string(e.Registration)
				switch {
				case e.IsEnrolled():
					status = "ENROLLED"
				case e.Full():
					status = "FULL"
				}
				fmt.Fprintf(out, "%-10s %-8s %-32s %3d %4d/%-4d  %-9s %s\n",
					e.SessionID, e.Code, truncate(e.Name, 32), e.Credits, e.Enrolled, e.Quota, status, schedule(e.Workshop))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "match name or code")
	cmd.Flags().StringVarP(&f.Type, "type", "t", "", "workshop type, or all")
	cmd.AddCommand(newWorkshopShowCmd(a))
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newWorkshopShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workshop-id>",
		Short: "Show one workshop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			d, err := a.api.Workshop(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			w := d.Workshop
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", w.Code, w.Name)
			fmt.Fprintf(out, "Session:  %s\n", w.SessionID)
			fmt.Fprintf(out, "Credits:  %d\n", w.Credits)
			fmt.Fprintf(out, "Enrolled: %d / %d\n", w.Enrolled, w.Quota)
			if w.Mentor != "" {
				fmt.Fprintf(out, "Mentor:   %s\n", w.Mentor)
			}
			if s := schedule(w); s != "" {
				fmt.Fprintf(out, "When:     %s\n", s)
			}
			if w.Room != "" {
				fmt.Fprintf(out, "Room:     %s\n", w.Room)
			}
			if w.SeatsEnabled {
				fmt.Fprintf(out, "Seats:    pick with 'siasat seats %s'\n", w.SessionID)
			}
			return nil
		},
	}
}

func newEnrollCmd(a *app) *cobra.Command {
	var seat string
	cmd := &cobra.Command{
		Use:   "enroll <session-id>",
		Short: "Enroll in a workshop session",
		Long: `Enroll in a workshop session. Sessions with a seat map need a seat: hold one
with 'siasat seats <session-id>' first, or pass --seat.`,
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
			if w.SeatsEnabled && seat == "" {
				return fmt.Errorf("%s has a seat map; choose a seat with 'siasat seats %s'", w.Code, w.SessionID)
			}
			return a.enroll(cmd, c, w, seat)
		},
	}
	cmd.Flags().StringVar(&seat, "seat", "", "seat id already held for this session")
	return cmd
}

func (a *app) enroll(cmd *cobra.Command, c *catalog.Catalog, w types.Workshop, seatID string) error {
	res, err := c.Enroll(cmd.Context(), w.SessionID, seatID)
	if err != nil {
		return userError(err)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "Enrollment failed"
		}
		return errors.New(msg)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Enrolled in %s %s\n", w.Code, w.Name)
	printCredits(out, c)
	return nil
}

func newDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <enrollment-id>",
		Short: "Drop an enrolled workshop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			if err := c.Drop(cmd.Context(), args[0]); err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Dropped")
			printCredits(out, c)
			return nil
		},
	}
}

func newMyWorkshopsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "my-workshops",
		Short: "List your current enrollments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireRole(cmd.Context(), types.RoleStudent); err != nil {
				return err
			}
			m, err := a.api.MyWorkshops(cmd.Context())
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Credits: %d / %d\n", m.TotalCredits, m.MaxCredits)
			if len(m.Workshops) == 0 {
				fmt.Fprintln(out, "You are not enrolled in any workshop yet.")
				return nil
			}
			for _, e := range m.Workshops {
				line := fmt.Sprintf("%-10s %-8s %-32s %2d cr", e.ID, e.WorkshopCode, truncate(e.WorkshopName, 32), e.Credits)
				if e.SeatNumber != "" {
					line += "  seat " + e.SeatNumber
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show completed and upcoming workshops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireRole(cmd.Context(), types.RoleStudent); err != nil {
				return err
			}
			h, err := a.api.History(cmd.Context())
			if err != nil {
				return userError(err)
			}
			s := catalog.Summarize(h.History)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Credits: %d   Tuition: %s   Awaiting rating: %d\n", s.Credits, s.Tuition.StringFixed(2), s.Unrated)
			if len(s.Upcoming) > 0 {
				fmt.Fprintln(out, "\nUpcoming")
				for _, e := range s.Upcoming {
					fmt.Fprintf(out, "  %-10s %-8s %s\n", e.ID, e.WorkshopCode, e.WorkshopName)
				}
			}
			if len(s.Completed) > 0 {
				fmt.Fprintln(out, "\nCompleted")
				for _, e := range s.Completed {
					rating := "not rated"
					if e.Rating > 0 {
						rating = fmt.Sprintf("%d/5 %s", e.Rating, catalog.RatingLabels[e.Rating])
					}
					fmt.Fprintf(out, "  %-10s %-8s %-32s %s\n", e.ID, e.WorkshopCode, truncate(e.WorkshopName, 32), rating)
				}
			}
			return nil
		},
	}
}

func newRateCmd(a *app) *cobra.Command {
	var review string
	cmd := &cobra.Command{
		Use:   "rate <enrollment-id> <1-5>",
		Short: "Rate a completed workshop",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireRole(cmd.Context(), types.RoleStudent); err != nil {
				return err
			}
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.New("rating must be a number from 1 to 5")
			}
			if _, err := a.api.Rate(cmd.Context(), args[0], rating, review); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rated %s: %s\n", args[0], catalog.RatingLabels[rating])
			return nil
		},
	}
	cmd.Flags().StringVar(&review, "review", "", "optional written review")
	return cmd
}
