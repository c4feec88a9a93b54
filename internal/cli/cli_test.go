package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/siasat-client/internal/apitest"
	"github.com/DoyleJ11/siasat-client/internal/catalog"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/notify"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type fixture struct {
	backend *apitest.Backend
	apiURL  string
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := apitest.New()
	srv := b.Start()
	t.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	b.AddUser("2201", "secret", types.User{ID: "u1", Name: "Sari", Role: types.RoleStudent, NIM: "2201"})
	b.AddUser("0101", "mentorpw", types.User{ID: "m1", Name: "Budi", Role: types.RoleMentor})
	b.AddWorkshop(types.Workshop{SessionID: "s1", Code: "GO101", Name: "Intro to Go", Credits: 3, Quota: 10, SeatsEnabled: true},
		[]types.Seat{
			{ID: "a1", RowLetter: "A", ColumnNumber: 1, SeatNumber: "A1", Status: types.SeatAvailable},
			{ID: "a2", RowLetter: "A", ColumnNumber: 2, SeatNumber: "A2", Status: types.SeatAvailable},
		})
	b.AddWorkshop(types.Workshop{SessionID: "s2", Code: "K8S", Name: "Kubernetes Basics", Credits: 2, Quota: 5}, nil)

	return &fixture{backend: b, apiURL: srv.URL + "/api", dir: t.TempDir()}
}

// run executes one invocation the way main does, closing the app afterwards.
func (f *fixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root, a := newRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", f.apiURL, "--session-dir", f.dir, "--log-level", "error"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	require.NoError(t, a.Close())
	return out.String(), err
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	out, err := f.run(t, "secret\n", "login", "2201")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Sari (STUDENT)")
}

func TestLoginWhoamiLogout(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = f.run(t, "wrong\n", "login", "2201")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	f.login(t)
	out, err := f.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Sari (STUDENT)")
	assert.Contains(t, out, "NIM:     2201")

	out, err = f.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.Equal(t, 1, f.backend.Calls("POST /api/auth/logout"))

	_, err = f.run(t, "", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogin_MentorRouting(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "", "login", "0101", "--role", "mentor", "--password", "mentorpw")
	require.NoError(t, err)
	assert.Contains(t, out, "Mentor tools")

	_, err = f.run(t, "", "my-workshops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a STUDENT account")
}

func TestWorkshops_RequireAdmission(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.run(t, "", "workshops")
	require.Error(t, err)
	assert.Equal(t, catalog.UserMessage(catalog.ErrNotAdmitted), err.Error())
}

func TestQueueThenEnroll(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	out, err := f.run(t, "", "queue", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "You're in.")

	out, err = f.run(t, "", "workshops", "--search", "go")
	require.NoError(t, err)
	assert.Contains(t, out, "GO101")
	assert.NotContains(t, out, "K8S")

	_, err = f.run(t, "", "enroll", "s1")
	require.Error(t, err, "seat map sessions need a seat")
	assert.Contains(t, err.Error(), "siasat seats s1")

	out, err = f.run(t, "", "enroll", "s2")
	require.NoError(t, err)
	assert.Contains(t, out, "Enrolled in K8S Kubernetes Basics")
	assert.Contains(t, out, "Credits: 2 / 24")

	out, err = f.run(t, "", "seats", "s1", "--seat", "a2")
	require.NoError(t, err)
	assert.Contains(t, out, "Enrolled in GO101")
	assert.Contains(t, out, "Seat A2")
	assert.Equal(t, 1, f.backend.Calls("POST /api/workshops/seats/{id}/reserve"))

	out, err = f.run(t, "", "my-workshops")
	require.NoError(t, err)
	assert.Contains(t, out, "Credits: 5 / 24")
	assert.Contains(t, out, "seat A2")
}

func TestQueue_StopsWhenTokenRevoked(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.SetLimit(0)
	t.Setenv("SIASAT_QUEUE_POLL_INTERVAL", "50ms")

	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for f.backend.Calls("GET /api/queue/status") == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		f.backend.RevokeUser("u1")
	}()

	start := time.Now()
	_, err := f.run(t, "", "queue", "--plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Less(t, time.Since(start), 3*time.Second, "returns as soon as the session ends")

	time.Sleep(100 * time.Millisecond) // let a cancelled request finish on the server side
	polls := f.backend.Calls("GET /api/queue/status")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, polls, f.backend.Calls("GET /api/queue/status"), "no polling after the command returned")

	_, err = f.run(t, "", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestSeats_HoldWithoutEnrolling(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.run(t, "", "queue", "--plain")
	require.NoError(t, err)

	f.backend.SetSeat("s1", "a1", types.SeatReserved, "u9")
	_, err = f.run(t, "", "seats", "s1", "--seat", "a1")
	require.Error(t, err)
	assert.Equal(t, "That seat is taken.", err.Error())

	out, err := f.run(t, "", "seats", "s1", "--seat", "a2", "--no-enroll")
	require.NoError(t, err)
	assert.Contains(t, out, "Holding seat A2")

	_, err = f.run(t, "", "seats", "s1")
	require.Error(t, err, "no terminal and no --seat")
}

func TestNotifications_Empty(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	out, err := f.run(t, "", "notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications")

	_, err = f.run(t, "", "notifications", "dismiss", "abc")
	assert.Error(t, err)
}

func TestUserError(t *testing.T) {
	plain := errors.New("disk full")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &gateway.ValidationError{Field: "rating", Message: "must be between 1 and 5"}, "must be between 1 and 5"},
		{"unreachable", gateway.ErrServerUnreachable, gateway.ConnectionErrorMessage},
		{"full", catalog.ErrWorkshopFull, "This workshop is already full. No seats available."},
		{"credit limit", &catalog.CreditLimitError{Workshop: "GO101", Credits: 3, TotalAfter: 25, Max: 24}, catalog.UserMessage(&catalog.CreditLimitError{Workshop: "GO101", Credits: 3, TotalAfter: 25, Max: 24})},
		{"other", plain, "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userError(tt.err).Error())
		})
	}
	assert.NoError(t, userError(nil))
}

func TestMatchID(t *testing.T) {
	items := []notify.Notification{{ID: "abc123"}, {ID: "abd456"}, {ID: "xyz"}}
	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{"abc", "abc123", true},
		{"ab", "", false},
		{"x", "xyz", true},
		{"q", "", false},
	}
	for _, tt := range tests {
		got, ok := matchID(items, tt.prefix)
		assert.Equal(t, tt.ok, ok, tt.prefix)
		assert.Equal(t, tt.want, got, tt.prefix)
	}
}

func TestParseRole(t *testing.T) {
	r, err := parseRole("Mentor")
	require.NoError(t, err)
	assert.Equal(t, types.RoleMentor, r)
	r, err = parseRole("")
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, r)
	_, err = parseRole("admin")
	assert.Error(t, err)
}
