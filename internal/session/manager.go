package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/events"
	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

const DefaultCheckInterval = 30 * time.Second

const ExpiredMessage = "Your session has expired. Please log in again."

var (
	ErrNoSession     = errors.New("not logged in")
	ErrLoginRejected = errors.New("login rejected")
)

// Auth is the slice of the gateway the manager drives.
type Auth interface {
	Login(ctx context.Context, username, password string, role types.Role) (types.LoginResult, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

type State struct {
	Token     string     `json:"token"`
	User      types.User `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt,omitempty"`
}

func (s State) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Options struct {
	CheckInterval time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

type Manager struct {
	auth     Auth
	store    Store
	bus      *events.Bus
	log      *zap.Logger
	now      func() time.Time
	interval time.Duration

	mu  sync.Mutex
	cur *State

	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager wires the manager to bus: an AuthError drops the stored
// credentials straight away. No logout request is sent; the server has
// already disowned the token.
func NewManager(auth Auth, store Store, bus *events.Bus, opts Options) *Manager {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		auth:        auth,
		store:       store,
		bus:         bus,
		log:         logging.OrNop(opts.Logger).Named("session"),
		now:         opts.Now,
		interval:    opts.CheckInterval,
		unsubscribe: func() {},
	}
	if bus != nil {
		m.unsubscribe = bus.Subscribe(func(s events.Signal) {
			if s.Kind == events.AuthError {
				m.expire("server rejected the token")
			}
		})
	}
	return m
}

// Restore loads a saved session and hands its token to the gateway.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	b, err := m.store.Get(ctx, KeySession)
	if errors.Is(err, ErrNotFound) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil || st.Token == "" {
		m.log.Warn("discarding unreadable session", zap.Error(err))
		_ = m.store.Delete(ctx, KeySession)
		return State{}, ErrNoSession
	}
	if st.expired(m.now()) {
		_ = m.store.Delete(ctx, KeySession)
		return State{}, ErrNoSession
	}

	m.mu.Lock()
	m.cur = &st
	m.mu.Unlock()
	m.auth.SetToken(st.Token)
	return st, nil
}

func (m *Manager) Login(ctx context.Context, username, password string, role types.Role) (State, error) {
	res, err := m.auth.Login(ctx, username, password, role)
	if err != nil {
		return State{}, err
	}
	if !res.Success || res.Token == "" {
		msg := strings.TrimSpace(res.Message)
		if msg == "" {
			msg = "invalid credentials"
		}
		return State{}, fmt.Errorf("%w: %s", ErrLoginRejected, msg)
	}

	st := State{Token: res.Token, User: res.User}
	var ttl time.Duration
	if exp, ok := TokenExpiry(res.Token); ok {
		st.ExpiresAt = exp
		if d := exp.Sub(m.now()); d > 0 {
			ttl = d
		}
	}
	b, err := json.Marshal(st)
	if err != nil {
		return State{}, err
	}
	if err := m.store.Set(ctx, KeySession, b, ttl); err != nil {
		return State{}, fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.cur = &st
	m.mu.Unlock()
	m.auth.SetToken(st.Token)
	m.log.Info("logged in", zap.String("user", st.User.ID), zap.String("role", string(st.User.Role)))
	return st, nil
}

// Logout tells the server, then forgets everything local regardless of how
// the server answered.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.auth.Logout(ctx); err != nil {
		m.log.Warn("logout failed on server", zap.Error(err))
	}
	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()
	m.auth.SetToken("")
	return m.store.Delete(ctx, KeySession, KeyNotifications)
}

func (m *Manager) Current() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return State{}, false
	}
	return *m.cur, true
}

// Start checks the token's exp claim now and then every CheckInterval until
// Close.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			m.checkExpiry()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (m *Manager) checkExpiry() {
	m.mu.Lock()
	expired := m.cur != nil && m.cur.expired(m.now())
	m.mu.Unlock()
	if expired {
		m.expire("token expired")
	}
}

// expire drops local credentials and announces SessionExpired once.
func (m *Manager) expire(reason string) {
	m.mu.Lock()
	had := m.cur != nil
	m.cur = nil
	m.mu.Unlock()

	m.auth.SetToken("")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Delete(ctx, KeySession); err != nil {
		m.log.Warn("clearing session failed", zap.Error(err))
	}
	if !had {
		return
	}
	m.log.Info("session ended", zap.String("reason", reason))
	m.bus.Publish(events.Signal{Kind: events.SessionExpired, Message: ExpiredMessage})
}

func (m *Manager) Close() error {
	m.unsubscribe()
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	return m.store.Close()
}
