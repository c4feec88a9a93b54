package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/httpapi"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func newStatusServerCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status-server",
		Short: "Wait in the queue headless and serve status over HTTP",
		Long: `Join the queue without a terminal UI and serve the live state locally:
/healthz, /status, /realtime, /notifications, /metrics and a /ws stream of
queue snapshots. Keeps serving after admission until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Status.Addr
			}
			if _, err := a.requireRole(cmd.Context(), types.RoleStudent); err != nil {
				return err
			}
			ctx, cancel := a.whileSignedIn(cmd.Context())
			defer cancel()
			notes, err := a.openNotifications(cmd)
			if err != nil {
				return err
			}
			hub := a.realtime()
			a.onClose(notes.Attach(hub))

			r := a.newRunner()
			r.Start(ctx)
			defer r.Stop()

			srv := &http.Server{
				Handler: httpapi.SetupRoutes(httpapi.Deps{
					Queue:         r,
					Notifications: notes,
					Realtime:      hub,
					Logger:        a.log,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving status on http://%s\n", ln.Addr())

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			go func() {
				select {
				case <-r.Done():
					a.log.Info("admitted from the queue")
				case <-ctx.Done():
				}
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("status server shutdown", zap.Error(err))
			}
			if errors.Is(context.Cause(ctx), errSessionEnded) {
				return errSessionEnded
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default status.addr)")
	return cmd
}
