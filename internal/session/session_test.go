package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/DoyleJ11/siasat-client/internal/events"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type fakeAuth struct {
	mu      sync.Mutex
	token   string
	result  types.LoginResult
	logouts int
}

func (f *fakeAuth) Login(ctx context.Context, username, password string, role types.Role) (types.LoginResult, error) {
	return f.result, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAuth) snapshot() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.logouts
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"jwt with exp", signed(t, exp), true},
		{"opaque", "abc123", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TokenExpiry(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(exp))
			}
		})
	}
}

func TestFileStore_RoundTripAndTTL(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte(`{"x":1}`), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("short"), time.Minute))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "a", "b"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, s.Path())
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "lab")
	ctx := context.Background()

	mock.ExpectSet("siasat:session:lab:session", []byte("v"), 10*time.Minute).SetVal("OK")
	require.NoError(t, s.Set(ctx, KeySession, []byte("v"), 10*time.Minute))

	mock.ExpectGet("siasat:session:lab:session").SetVal("v")
	got, err := s.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	mock.ExpectGet("siasat:session:lab:notifications").RedisNil()
	_, err = s.Get(ctx, KeyNotifications)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectDel("siasat:session:lab:session", "siasat:session:lab:notifications").SetVal(1)
	require.NoError(t, s.Delete(ctx, KeySession, KeyNotifications))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func newManager(t *testing.T, auth *fakeAuth, bus *events.Bus, clock *atomic.Time, interval time.Duration) (*Manager, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), "default")
	require.NoError(t, err)
	store.now = clock.Load
	m := NewManager(auth, store, bus, Options{CheckInterval: interval, Now: clock.Load})
	t.Cleanup(func() { _ = m.Close() })
	return m, store
}

func TestManager_LoginPersistsAndRestores(t *testing.T) {
	clock := atomic.NewTime(time.Now())
	exp := clock.Load().Add(time.Hour)
	auth := &fakeAuth{result: types.LoginResult{Success: true, Token: signed(t, exp), User: types.User{ID: "u1", Role: types.RoleStudent}}}
	m, store := newManager(t, auth, nil, clock, time.Hour)

	st, err := m.Login(context.Background(), "2201", "secret", types.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), st.ExpiresAt.Unix())
	tok, _ := auth.snapshot()
	assert.Equal(t, st.Token, tok)

	fresh := &fakeAuth{}
	m2 := NewManager(fresh, store, nil, Options{Now: clock.Load})
	got, err := m2.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", got.User.ID)
	tok, _ = fresh.snapshot()
	assert.Equal(t, st.Token, tok)
}

func TestManager_LoginRejected(t *testing.T) {
	clock := atomic.NewTime(time.Now())
	auth := &fakeAuth{result: types.LoginResult{Success: false, Message: "Invalid credentials"}}
	m, _ := newManager(t, auth, nil, clock, time.Hour)

	_, err := m.Login(context.Background(), "2201", "bad", "")
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.Contains(t, err.Error(), "Invalid credentials")
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_AuthErrorClearsWithoutLogout(t *testing.T) {
	clock := atomic.NewTime(time.Now())
	bus := events.NewBus()
	auth := &fakeAuth{result: types.LoginResult{Success: true, Token: "opaque", User: types.User{ID: "u1"}}}
	m, store := newManager(t, auth, bus, clock, time.Hour)

	var got []events.Signal
	bus.Subscribe(func(s events.Signal) {
		if s.Kind == events.SessionExpired {
			got = append(got, s)
		}
	})

	_, err := m.Login(context.Background(), "2201", "secret", "")
	require.NoError(t, err)

	bus.Publish(events.Signal{Kind: events.AuthError})

	_, ok := m.Current()
	assert.False(t, ok)
	tok, logouts := auth.snapshot()
	assert.Empty(t, tok)
	assert.Zero(t, logouts, "a dead session must not call logout")
	_, err = store.Get(context.Background(), KeySession)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, got, 1)
	assert.Equal(t, ExpiredMessage, got[0].Message)

	bus.Publish(events.Signal{Kind: events.AuthError})
	assert.Len(t, got, 1, "announced once")
}

func TestManager_ExpiryWatcher(t *testing.T) {
	clock := atomic.NewTime(time.Now())
	bus := events.NewBus()
	expired := make(chan struct{}, 1)
	bus.Subscribe(func(s events.Signal) {
		if s.Kind == events.SessionExpired {
			expired <- struct{}{}
		}
	})
	exp := clock.Load().Add(10 * time.Minute)
	auth := &fakeAuth{result: types.LoginResult{Success: true, Token: signed(t, exp), User: types.User{ID: "u1"}}}
	m, _ := newManager(t, auth, bus, clock, 5*time.Millisecond)

	_, err := m.Login(context.Background(), "2201", "secret", "")
	require.NoError(t, err)
	m.Start(context.Background())

	select {
	case <-expired:
		t.Fatal("expired too early")
	case <-time.After(30 * time.Millisecond):
	}

	clock.Store(exp.Add(time.Second))
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("watcher never noticed the exp claim")
	}
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_LogoutClearsEverything(t *testing.T) {
	clock := atomic.NewTime(time.Now())
	auth := &fakeAuth{result: types.LoginResult{Success: true, Token: "opaque", User: types.User{ID: "u1"}}}
	m, store := newManager(t, auth, nil, clock, time.Hour)
	ctx := context.Background()

	_, err := m.Login(ctx, "2201", "secret", "")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyNotifications, []byte("[]"), 0))

	require.NoError(t, m.Logout(ctx))
	_, logouts := auth.snapshot()
	assert.Equal(t, 1, logouts)
	_, err = m.Restore(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = store.Get(ctx, KeyNotifications)
	assert.ErrorIs(t, err, ErrNotFound)
}
