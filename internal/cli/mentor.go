package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// mentorOnly wraps run with the role check every mentor command shares.
func mentorOnly(a *app, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if _, err := a.requireRole(cmd.Context(), types.RoleMentor); err != nil {
			return err
		}
		if err := run(cmd, args); err != nil {
			return userError(err)
		}
		return nil
	}
}

func printAck(out io.Writer, ack types.Ack, fallback string) {
	msg := ack.Message
	if msg == "" {
		msg = fallback
	}
	fmt.Fprintln(out, msg)
}

func newMentorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mentor",
		Short: "Mentor tools: workshops, students, approvals and the queue",
	}
	cmd.AddCommand(
		newMentorWorkshopsCmd(a),
		newMentorWorkshopWriteCmd(a, "create", "Create a workshop", cobra.NoArgs),
		newMentorWorkshopWriteCmd(a, "update <session-id>", "Update a workshop", cobra.ExactArgs(1)),
		&cobra.Command{
			Use:   "students [session-id]",
			Short: "List students, or those enrolled in one session",
			Args:  cobra.MaximumNArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				var (
					l   types.StudentList
					err error
				)
				if len(args) == 1 {
					l, err = a.api.EnrolledStudents(cmd.Context(), args[0])
				} else {
					l, err = a.api.Students(cmd.Context())
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range l.Students {
					fmt.Fprintf(out, "%-10s %-12s %-28s max %d cr\n", s.ID, s.NIM, truncate(s.Name, 28), s.MaxCredits)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "quota <session-id> <quota>",
			Short: "Change a session's quota",
			Args:  cobra.ExactArgs(2),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return errors.New("quota must be a whole number")
				}
				ack, err := a.api.UpdateQuota(cmd.Context(), args[0], n)
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "Quota updated")
				return nil
			}),
		},
		newMentorUsersCmd(a),
		&cobra.Command{
			Use:   "approve <user-id>",
			Short: "Approve a pending account",
			Args:  cobra.ExactArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ack, err := a.api.ApproveUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "User approved")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reject <user-id>",
			Short: "Reject a pending account",
			Args:  cobra.ExactArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ack, err := a.api.RejectUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "User rejected")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "credit-limit <student-id> <max-credits>",
			Short: "Set a student's credit limit",
			Args:  cobra.ExactArgs(2),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ack, err := a.api.SetCreditLimit(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "Credit limit updated")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "queue-limit <n>",
			Short: "Set how many students may select workshops at once",
			Args:  cobra.ExactArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.New("limit must be a whole number")
				}
				ack, err := a.api.SetQueueLimit(cmd.Context(), n)
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "Queue limit updated")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "queue-users",
			Short: "Show queue metrics with active and waiting students",
			Args:  cobra.NoArgs,
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				m, err := a.api.QueueMetrics(ctx)
				if err != nil {
					return err
				}
				active, err := a.api.ActiveQueueUsers(ctx)
				if err != nil {
					return err
				}
				waiting, err := a.api.WaitingQueueUsers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Limit %d   Active %d   Waiting %d\n", m.Limit, m.ActiveCount, m.WaitingCount)
				fmt.Fprintln(out, "\nActive")
				for _, u := range active.Users {
					fmt.Fprintf(out, "  %-12s %-28s %ds left\n", u.NIM, truncate(u.Name, 28), u.ExpiresIn)
				}
				fmt.Fprintln(out, "\nWaiting")
				for _, u := range waiting.Users {
					fmt.Fprintf(out, "  #%-4d %-12s %s\n", u.Position, u.NIM, u.Name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "feedback",
			Short: "Show workshop ratings",
			Args:  cobra.NoArgs,
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				f, err := a.api.Feedback(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Overall %.1f from %d ratings\n", f.Overall, f.Total)
				for _, w := range f.Workshops {
					fmt.Fprintf(out, "  %-8s %-32s %.1f (%d)\n", w.WorkshopCode, truncate(w.WorkshopName, 32), w.AverageRating, w.TotalRatings)
					for _, r := range w.Reviews {
						fmt.Fprintf(out, "      %q\n", r)
					}
				}
				return nil
			}),
		},
		newMentorPasswordResetsCmd(a),
		newMentorAISuggestionsCmd(a),
	)
	return cmd
}

func newMentorWorkshopsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workshops",
		Short: "List your workshops",
		Args:  cobra.NoArgs,
		RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
			m, err := a.api.MentorWorkshops(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range m.Workshops {
				fmt.Fprintf(out, "%-10s %-8s %-32s %4d/%-4d %s\n", w.SessionID, w.Code, truncate(w.Name, 32), w.Enrolled, w.Quota, schedule(w))
			}
			return nil
		}),
	}
}

func workshopFlags(fs *pflag.FlagSet, in *types.WorkshopInput) {
	fs.StringVar(&in.Name, "name", "", "workshop name")
	fs.StringVar(&in.Code, "code", "", "workshop code")
	fs.IntVar(&in.Credits, "credits", 0, "credits")
	fs.IntVar(&in.Quota, "quota", 0, "seat quota")
	fs.StringVar(&in.WorkshopType, "type", "", "workshop type")
	fs.StringVar(&in.Day, "day", "", "weekday")
	fs.StringVar(&in.TimeStart, "start", "", "start time, HH:MM")
	fs.StringVar(&in.TimeEnd, "end", "", "end time, HH:MM")
	fs.StringVar(&in.Date, "date", "", "date, YYYY-MM-DD")
	fs.StringVar(&in.Room, "room", "", "room")
	fs.BoolVar(&in.SeatsEnabled, "seats", false, "enable a seat map")
	fs.IntVar(&in.Rows, "rows", 0, "seat rows")
	fs.IntVar(&in.Cols, "cols", 0, "seats per row")
	fs.StringVar(&in.RegistrationStart, "registration-start", "", "registration opens, RFC 3339")
	fs.StringVar(&in.RegistrationEnd, "registration-end", "", "registration closes, RFC 3339")
}

func newMentorWorkshopWriteCmd(a *app, use, short string, args cobra.PositionalArgs) *cobra.Command {
	var in types.WorkshopInput
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
			var (
				ack types.Ack
				err error
			)
			if len(args) == 1 {
				ack, err = a.api.UpdateWorkshop(cmd.Context(), args[0], in)
			} else {
				ack, err = a.api.CreateWorkshop(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			printAck(cmd.OutOrStdout(), ack, "Workshop saved")
			return nil
		}),
	}
	workshopFlags(cmd.Flags(), &in)
	return cmd
}

func newMentorUsersCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
			l, err := a.api.Users(cmd.Context(), status)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, u := range l.Users {
				fmt.Fprintf(out, "%-10s %-12s %-28s %-8s %s\n", u.ID, u.NIM, truncate(u.Name, 28), u.Role, u.Status)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&status, "status", "all", "all, PENDING or ACTIVE")
	return cmd
}

func newMentorPasswordResetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password-resets",
		Short: "Review password reset requests",
		Args:  cobra.NoArgs,
		RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
			l, err := a.api.PasswordResets(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(l.Requests) == 0 {
				fmt.Fprintln(out, "No pending requests")
			}
			for _, r := range l.Requests {
				fmt.Fprintf(out, "%-10s %-12s %-28s %s\n", r.ID, r.NIM, r.Email, r.Status)
			}
			return nil
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "approve <request-id>",
			Short: "Approve a reset request",
			Args:  cobra.ExactArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ack, err := a.api.ApprovePasswordReset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "Password reset approved")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reject <request-id>",
			Short: "Reject a reset request",
			Args:  cobra.ExactArgs(1),
			RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
				ack, err := a.api.RejectPasswordReset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), ack, "Password reset rejected")
				return nil
			}),
		},
	)
	return cmd
}

func newMentorAISuggestionsCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "ai-suggestions",
		Short: "Show generated workshop suggestions",
		Args:  cobra.NoArgs,
		RunE: mentorOnly(a, func(cmd *cobra.Command, args []string) error {
			s, err := a.api.AISuggestions(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, sg := range s.Suggestions {
				fmt.Fprintf(out, "%d. %s", i+1, sg.Title)
				if sg.Priority != "" {
					fmt.Fprintf(out, " [%s]", sg.Priority)
				}
				fmt.Fprintf(out, "\n   %s\n", sg.Description)
			}
			if s.CachedAt != "" {
				fmt.Fprintf(out, "\nGenerated %s\n", s.CachedAt)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "regenerate instead of using the cached set")
	return cmd
}
