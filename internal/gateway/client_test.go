package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/siasat-client/internal/events"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *[]events.Signal) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	bus := events.NewBus()
	var got []events.Signal
	bus.Subscribe(func(s events.Signal) { got = append(got, s) })

	return New(Options{BaseURL: srv.URL + "/api", Bus: bus}), &got
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestDo_SetsHeaders(t *testing.T) {
	var hdr http.Header
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		assert.Equal(t, "/api/queue/status", r.URL.Path)
		writeJSON(w, 200, `{"inQueue":true,"status":"WAITING","position":4}`)
	})
	c.SetToken("tok-123")

	st, err := c.QueueStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Position)

	assert.Equal(t, "Bearer tok-123", hdr.Get("Authorization"))
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, proxy-revalidate", hdr.Get("Cache-Control"))
	assert.Equal(t, "no-cache", hdr.Get("Pragma"))
	assert.Equal(t, "0", hdr.Get("Expires"))
}

func TestDo_NoTokenNoAuthHeader(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, 200, `{}`)
	})
	require.NoError(t, c.Heartbeat(context.Background()))
}

func TestUnauthorizedPublishesAuthError(t *testing.T) {
	c, got := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"message":"token expired"}`)
	})

	_, err := c.QueueStatus(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "token expired", apiErr.Message)
	assert.True(t, IsAuth(err))

	require.Len(t, *got, 1)
	assert.Equal(t, events.AuthError, (*got)[0].Kind)
}

func TestUnauthorizedLoginDoesNotPublish(t *testing.T) {
	c, got := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"message":"Invalid credentials"}`)
	})

	_, err := c.Login(context.Background(), "712021001", "wrong", types.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Empty(t, *got)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	bus := events.NewBus()
	var got []events.Signal
	bus.Subscribe(func(s events.Signal) { got = append(got, s) })
	c := New(Options{BaseURL: url, Bus: bus})

	_, err := c.JoinQueue(context.Background())
	require.ErrorIs(t, err, ErrServerUnreachable)
	require.Len(t, got, 1)
	assert.Equal(t, events.ServerConnectionError, got[0].Kind)
	assert.Equal(t, ConnectionErrorMessage, got[0].Message)
	assert.Equal(t, ConnectionErrorMessage, UserMessage(err))
}

func TestCanceledContextIsNotAConnectionError(t *testing.T) {
	c, got := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.QueueStatus(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrServerUnreachable)
	assert.Empty(t, *got)
}

func TestErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name   string
		status int
		ctype  string
		body   string
		want   string
	}{
		{"message wins", 400, "application/json", `{"message":"QUOTA_EXCEEDED","error":"x"}`, "QUOTA_EXCEEDED"},
		{"error field", 409, "application/json", `{"error":"SCHEDULE_CONFLICT"}`, "SCHEDULE_CONFLICT"},
		{"status text", 404, "application/json", `{}`, "Not Found"},
		{"non-json body", 500, "text/html", `<h1>boom</h1>`, "Internal Server Error"},
		{"malformed json", 502, "application/json", `{nope`, "Bad Gateway"},
		{"unknown status", 599, "text/plain", ``, "Request failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&APIError{Status: 400, Message: "QUOTA_EXCEEDED: no room"}, "This workshop is already full. No seats available."},
		{&APIError{Status: 403, Message: "REGISTRATION_CLOSED"}, "Registration has closed. You cannot drop this workshop."},
		{&APIError{Status: 403, Message: "Account is pending approval"}, "Your account is pending approval. Please wait for a mentor to approve your registration."},
		{&APIError{Status: 404, Message: "USER_NOT_FOUND"}, "No account found with that NIM and email. Please check your details."},
		{&APIError{Status: 400, Message: "Seat already taken"}, "Seat already taken"},
		{&ValidationError{Field: "password", Message: "Passwords do not match"}, "Passwords do not match"},
		{errors.New("weird"), "Something went wrong. Please try again."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, UserMessage(tc.err))
	}
	assert.Empty(t, UserMessage(nil))
}

func TestLocalValidationSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, 200, `{}`)
	})
	ctx := context.Background()

	_, err := c.Seats(ctx, "   ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.Register(ctx, types.RegisterRequest{Name: "A", NIMNIDN: "1", Email: "a@b.c", Password: "secret1"}, "secret2")
	assert.ErrorAs(t, err, &verr)

	_, err = c.SetCreditLimit(ctx, "s1", "twelve")
	assert.ErrorAs(t, err, &verr)

	_, err = c.Rate(ctx, "e1", 6, "")
	assert.ErrorAs(t, err, &verr)

	_, err = c.Login(ctx, "", "pw", "")
	assert.ErrorAs(t, err, &verr)

	assert.Zero(t, hits.Load())
}

func TestRegisterDefaultsRole(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/register", r.URL.Path)
		writeJSON(w, 201, `{"success":true}`)
	})
	ack, err := c.Register(context.Background(), types.RegisterRequest{Name: "A", NIMNIDN: "1", Email: "a@b.c", Password: "secret1"}, "secret1")
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestAvailableWorkshopsAcceptsCourses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"success":true,"courses":[{"workshopId":"w1","classId":"s1","name":"Go","quota":10,"enrolled":10}]}`)
	})
	l, err := c.AvailableWorkshops(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, l.Workshops, 1)
	assert.Equal(t, "s1", l.Workshops[0].SessionID)
	assert.True(t, l.Workshops[0].Full())
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/workshops/seats/:id/reserve", routeLabel("/workshops/seats/3f2a9c/reserve"))
	assert.Equal(t, "/mentor/users", routeLabel("/mentor/users?status=all"))
	assert.Equal(t, "/queue/status", routeLabel("/queue/status"))
}
