package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/siasat-client/internal/catalog"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/session"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func parseRole(s string) (types.Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(types.RoleStudent):
		return types.RoleStudent, nil
	case string(types.RoleMentor):
		return types.RoleMentor, nil
	}
	return "", fmt.Errorf("unknown role %q (want student or mentor)", s)
}

// userError turns API and validation failures into the copy the web client
// shows. Anything else (store, config) passes through untouched.
func userError(err error) error {
	var (
		verr   *gateway.ValidationError
		apiErr *gateway.APIError
		climit *catalog.CreditLimitError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr), errors.As(err, &apiErr), errors.As(err, &climit),
		errors.Is(err, gateway.ErrServerUnreachable),
		errors.Is(err, catalog.ErrNotAdmitted), errors.Is(err, catalog.ErrWorkshopFull),
		errors.Is(err, catalog.ErrWorkshopNotFound), errors.Is(err, catalog.ErrRegistrationClosed),
		errors.Is(err, catalog.ErrEnrollmentNotFound):
		return errors.New(catalog.UserMessage(err))
	}
	return err
}

func newLoginCmd(a *app) *cobra.Command {
	var (
		role     string
		password string
		join     bool
	)
	cmd := &cobra.Command{
		Use:   "login <nim|nidn>",
		Short: "Sign in and save the session",
		Long: `Sign in with your NIM (students) or NIDN (mentors). Students can pass
--join to go straight into the registration queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = a.promptSecret(cmd, "Password"); err != nil {
					return err
				}
			}
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			st, err := m.Login(ctx, args[0], password, r)
			if errors.Is(err, session.ErrLoginRejected) {
				return errors.New(strings.TrimPrefix(err.Error(), session.ErrLoginRejected.Error()+": "))
			}
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", st.User.Name, st.User.Role)
			if st.User.Role == types.RoleMentor {
				fmt.Fprintln(out, "Mentor tools: siasat mentor --help")
				return nil
			}
			if !join {
				fmt.Fprintln(out, "Next: siasat queue")
				return nil
			}
			return a.runQueue(cmd, false)
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "student", "student or mentor")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&join, "join", false, "join the queue right after signing in")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.sessions.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", st.User.Name, st.User.Role)
			if st.User.NIM != "" {
				fmt.Fprintf(out, "NIM:     %s\n", st.User.NIM)
			}
			if st.User.Major != "" {
				fmt.Fprintf(out, "Major:   %s\n", st.User.Major)
			}
			if !st.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires: %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var req types.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  "Create an account. Mentor accounts wait for approval before they can sign in.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			req.Role = r
			for _, f := range []struct {
				dst   *string
				label string
			}{
				{&req.Name, "Full name"},
				{&req.NIMNIDN, "NIM / NIDN"},
				{&req.Email, "Email"},
				{&req.Major, "Major"},
			} {
				if *f.dst != "" {
					continue
				}
				if *f.dst, err = a.prompt(cmd, f.label); err != nil {
					return err
				}
			}
			if req.Password, err = a.promptSecret(cmd, "Password"); err != nil {
				return err
			}
			confirm, err := a.promptSecret(cmd, "Confirm password")
			if err != nil {
				return err
			}
			ack, err := a.api.Register(cmd.Context(), req, confirm)
			if err != nil {
				return userError(err)
			}
			msg := ack.Message
			if msg == "" {
				msg = "Registration successful. You can now sign in."
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "full name")
	f.StringVar(&req.NIMNIDN, "nim", "", "NIM (students) or NIDN (mentors)")
	f.StringVar(&req.Email, "email", "", "email address")
	f.StringVar(&req.Major, "major", "", "major or department")
	f.StringVarP(&role, "role", "r", "student", "student or mentor")
	return cmd
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	var nim, email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Ask a mentor to reset your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if nim == "" {
				if nim, err = a.prompt(cmd, "NIM"); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = a.prompt(cmd, "Email"); err != nil {
					return err
				}
			}
			pw, err := a.promptSecret(cmd, "New password")
			if err != nil {
				return err
			}
			confirm, err := a.promptSecret(cmd, "Confirm new password")
			if err != nil {
				return err
			}
			ack, err := a.api.ForgotPassword(cmd.Context(), nim, email, pw, confirm)
			if err != nil {
				return userError(err)
			}
			msg := ack.Message
			if msg == "" {
				msg = "Reset request sent. A mentor will review it."
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&nim, "nim", "", "your NIM")
	cmd.Flags().StringVar(&email, "email", "", "the email on your account")
	return cmd
}
