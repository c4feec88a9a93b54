package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/config"
	"github.com/DoyleJ11/siasat-client/internal/events"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/internal/relay"
	"github.com/DoyleJ11/siasat-client/internal/session"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// app holds the per-invocation wiring. Everything heavier than the gateway
// is opened on first use.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger
	bus *events.Bus
	api *gateway.Client

	store    session.Store
	sessions *session.Manager

	hubOnce sync.Once
	hub     *realtime.Hub

	nc        *nats.Conn
	detachBus func()
	closers   []func()
	errOut    io.Writer
	lines     lineReader
	ready     bool
}

func (a *app) setup(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(a.v, flags.config, flags.envFiles...)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	a.errOut = cmd.ErrOrStderr()
	a.bus = events.NewBus()
	a.api = gateway.New(gateway.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Bus:     a.bus,
		Logger:  log,
	})
	a.detachBus = a.bus.Subscribe(a.onSignal)
	a.ready = true
	return nil
}

// onSignal prints the session-wide banners. Connection errors are advisory;
// the command that hit one reports its own failure.
func (a *app) onSignal(s events.Signal) {
	switch s.Kind {
	case events.ServerConnectionError:
		fmt.Fprintln(a.errOut, "! "+gateway.ConnectionErrorMessage)
	case events.SessionExpired:
		fmt.Fprintln(a.errOut, "! "+s.Message)
	}
}

func (a *app) openStore(ctx context.Context) (session.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	sc := a.cfg.Session
	var (
		st  session.Store
		err error
	)
	switch sc.Backend {
	case "redis":
		st, err = session.DialRedis(ctx, sc.RedisAddr, sc.RedisDB, sc.Profile)
	default:
		st, err = session.NewFileStore(sc.Dir, sc.Profile)
	}
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.store = st
	return st, nil
}

func (a *app) manager(ctx context.Context) (*session.Manager, error) {
	if a.sessions != nil {
		return a.sessions, nil
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.sessions = session.NewManager(a.api, st, a.bus, session.Options{
		CheckInterval: a.cfg.Session.ExpiryCheckInterval,
		Logger:        a.log,
	})
	return a.sessions, nil
}

var (
	errNotLoggedIn  = errors.New("not logged in; run 'siasat login' first")
	errSessionEnded = fmt.Errorf("session ended: %w", errNotLoggedIn)
)

// requireSession restores the saved login and starts the expiry watcher.
func (a *app) requireSession(ctx context.Context) (session.State, error) {
	m, err := a.manager(ctx)
	if err != nil {
		return session.State{}, err
	}
	if st, ok := m.Current(); ok {
		return st, nil
	}
	st, err := m.Restore(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return session.State{}, errNotLoggedIn
	}
	if err != nil {
		return session.State{}, err
	}
	m.Start(ctx)
	return st, nil
}

// whileSignedIn derives a context that is cancelled with errSessionEnded
// once the session expires or the server rejects the token. Long-running
// commands run under it so they stop instead of retrying unauthenticated.
func (a *app) whileSignedIn(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	detach := a.bus.Subscribe(func(s events.Signal) {
		if s.Kind == events.SessionExpired {
			cancel(errSessionEnded)
		}
	})
	return ctx, func() {
		detach()
		cancel(context.Canceled)
	}
}

// stopped reports why ctx ended: errSessionEnded when the session died,
// the plain context error otherwise.
func stopped(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, errSessionEnded) {
		return cause
	}
	return ctx.Err()
}

func (a *app) requireRole(ctx context.Context, role types.Role) (session.State, error) {
	st, err := a.requireSession(ctx)
	if err != nil {
		return st, err
	}
	if st.User.Role != role {
		return st, fmt.Errorf("this command needs a %s account; you are signed in as %s", role, st.User.Role)
	}
	return st, nil
}

// realtime returns the shared push hub. It connects on first Subscribe.
func (a *app) realtime() *realtime.Hub {
	a.hubOnce.Do(func() {
		a.hub = realtime.NewHub(context.Background(), realtime.Options{
			URL:            a.cfg.WSURLOrDerived(),
			Token:          a.api.Token,
			ReconnectDelay: a.cfg.Realtime.ReconnectDelay,
			Logger:         a.log,
		})
		if a.cfg.Relay.NATSURL != "" {
			a.startRelay()
		}
	})
	return a.hub
}

// startRelay republishes push frames to NATS. A relay that cannot connect
// is logged and skipped; the client works without it.
func (a *app) startRelay() {
	nc, err := relay.Dial(a.cfg.Relay.NATSURL, a.log)
	if err != nil {
		a.log.Warn("relay disabled", zap.String("url", a.cfg.Relay.NATSURL), zap.Error(err))
		return
	}
	a.nc = nc
	r := relay.New(nc, a.cfg.Relay.Subject, a.log)
	a.onClose(r.Attach(a.hub))
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close releases everything opened during the command, newest first.
func (a *app) Close() error {
	if !a.ready {
		return nil
	}
	a.ready = false
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.detachBus()

	var err error
	if a.hub != nil {
		err = multierr.Append(err, a.hub.Close())
	}
	if a.nc != nil {
		err = multierr.Append(err, a.nc.Drain())
	}
	switch {
	case a.sessions != nil:
		err = multierr.Append(err, a.sessions.Close())
	case a.store != nil:
		err = multierr.Append(err, a.store.Close())
	}
	_ = a.log.Sync()
	return err
}
