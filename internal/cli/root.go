// Package cli is the siasat command tree. Each command gets its
// dependencies from an app built in the root's PersistentPreRunE, so tests
// can run the tree against a fake backend by pointing --api-url at it.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type rootFlags struct {
	config   string
	envFiles []string
}

// newRoot builds a fresh command tree with its own viper instance. The
// returned app must be closed after the command runs, whether or not it
// failed.
func newRoot() (*cobra.Command, *app) {
	v := viper.New()
	var flags rootFlags
	a := &app{v: v}

	root := &cobra.Command{
		Use:   "siasat",
		Short: "Terminal client for SIA.Sat workshop registration",
		Long: `siasat signs you in, waits your turn in the registration queue,
and lets you pick workshops and seats while the server pushes live updates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "config file (default is $HOME/.config/siasat/config.yaml)")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before reading config (default .env)")
	pf.String("api-url", "", "REST base URL, e.g. http://localhost:8080/api")
	pf.String("ws-url", "", "realtime endpoint (derived from --api-url when empty)")
	pf.String("session-dir", "", "directory for the local session file")
	pf.String("profile", "", "session profile name")
	pf.String("log-level", "", "debug, info, warn or error")
	_ = v.BindPFlag("api.base_url", pf.Lookup("api-url"))
	_ = v.BindPFlag("api.ws_url", pf.Lookup("ws-url"))
	_ = v.BindPFlag("session.dir", pf.Lookup("session-dir"))
	_ = v.BindPFlag("session.profile", pf.Lookup("profile"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newRegisterCmd(a),
		newForgotPasswordCmd(a),
		newWhoamiCmd(a),
		newQueueCmd(a),
		newWorkshopsCmd(a),
		newSeatsCmd(a),
		newEnrollCmd(a),
		newDropCmd(a),
		newMyWorkshopsCmd(a),
		newHistoryCmd(a),
		newRateCmd(a),
		newNotificationsCmd(a),
		newStatusServerCmd(a),
		newMentorCmd(a),
	)
	return root, a
}

// Execute runs the tree against os.Args. Commands stop when ctx ends.
func Execute(ctx context.Context) error {
	root, a := newRoot()
	err := root.ExecuteContext(ctx)
	return multierr.Append(err, a.Close())
}
