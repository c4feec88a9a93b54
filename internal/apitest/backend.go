// Package apitest is an in-memory stand-in for the SIA.Sat backend: enough
// of the REST surface and the realtime push channel to drive the client end
// to end in tests and local demos.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type account struct {
	password string
	user     types.User
}

type queueEntry struct {
	userID string
	active bool
}

type Backend struct {
	mu        sync.Mutex
	accounts  map[string]account // by username
	tokens    map[string]string  // token -> user id
	limit     int
	queue     []queueEntry
	remaining int
	workshops []types.Workshop
	seats     map[string][]types.Seat // by session id
	enrolled  map[string][]types.Enrollment

	// Calls counts requests per "METHOD /route pattern".
	calls map[string]int

	push   *pusher
	cancel context.CancelFunc
}

func New() *Backend {
	ctx, cancel := context.WithCancel(context.Background())
	return &Backend{
		accounts:  make(map[string]account),
		tokens:    make(map[string]string),
		limit:     1,
		remaining: 600,
		seats:     make(map[string][]types.Seat),
		enrolled:  make(map[string][]types.Enrollment),
		calls:     make(map[string]int),
		push:      newPusher(ctx),
		cancel:    cancel,
	}
}

// Start serves the backend on a loopback port. The REST root is
// srv.URL+"/api"; the push channel is at /ws.
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b.Routes())
}

func (b *Backend) Close() { b.cancel() }

func (b *Backend) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.count)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/ws", b.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.login)
		r.Group(func(r chi.Router) {
			r.Use(b.auth)
			r.Post("/auth/logout", b.logout)
			r.Post("/queue/join", b.joinQueue)
			r.Get("/queue/status", b.queueStatus)
			r.Post("/queue/heartbeat", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, types.Ack{Success: true}) })
			r.Get("/workshops/available", b.available)
			r.Get("/workshops/sessions/{id}/seats", b.listSeats)
			r.Post("/workshops/seats/{id}/reserve", b.reserve)
			r.Delete("/workshops/seats/{id}/reserve", b.release)
			r.Post("/enrollment/add", b.enroll)
			r.Get("/enrollment/my-workshops", b.myWorkshops)
		})
	})
	return r
}

// Seed helpers. All are safe to call while serving.

func (b *Backend) AddUser(username, password string, u types.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	b.accounts[username] = account{password: password, user: u}
}

// SetLimit is how many users may be ACTIVE at once.
func (b *Backend) SetLimit(n int) {
	b.mu.Lock()
	b.limit = n
	b.mu.Unlock()
}

func (b *Backend) AddWorkshop(w types.Workshop, seats []types.Seat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workshops = append(b.workshops, w)
	if len(seats) > 0 {
		b.seats[w.SessionID] = seats
	}
}

// Revoke forgets a token, so the next request with it gets a 401.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	delete(b.tokens, token)
	b.mu.Unlock()
}

// RevokeUser invalidates every token issued to userID.
func (b *Backend) RevokeUser(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tok, id := range b.tokens {
		if id == userID {
			delete(b.tokens, tok)
		}
	}
}

func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *Backend) Clients() int { return b.push.count() }

// DropClients closes every push connection from the server side.
func (b *Backend) DropClients() int { return b.push.kickAll() }

// Push sends a raw frame to one user, or everyone when userID is "".
func (b *Backend) Push(userID string, frameType types.FrameType, payload any) {
	raw, _ := json.Marshal(payload)
	frame, _ := json.Marshal(types.Frame{Type: frameType, Payload: raw})
	b.push.send(publish{To: userID, Frame: frame})
}

// Promote moves the head of the waiting line to ACTIVE and tells them.
func (b *Backend) Promote() (userID string, ok bool) {
	b.mu.Lock()
	for i := range b.queue {
		if !b.queue[i].active {
			b.queue[i].active = true
			userID, ok = b.queue[i].userID, true
			break
		}
	}
	b.mu.Unlock()
	if ok {
		b.Push(userID, types.FrameAccessGranted, map[string]any{})
	}
	return userID, ok
}

// SetSeat overwrites one seat as if another user had acted, and pushes the
// change.
func (b *Backend) SetSeat(sessionID, seatID string, status types.SeatStatus, reservedBy string) {
	b.mu.Lock()
	for i := range b.seats[sessionID] {
		if b.seats[sessionID][i].ID == seatID {
			b.seats[sessionID][i].Status = status
			b.seats[sessionID][i].ReservedBy = reservedBy
		}
	}
	b.mu.Unlock()
	b.pushSeat(seatID, status, reservedBy)
}

func (b *Backend) pushSeat(seatID string, status types.SeatStatus, reservedBy string) {
	p := types.SeatStatusPayload{SeatID: seatID, Status: status}
	if reservedBy != "" {
		p.ReservedBy = &reservedBy
	}
	b.Push("", types.FrameSeatStatusUpdate, p)
}

type ctxKey struct{}

func userFrom(r *http.Request) types.User {
	u, _ := r.Context().Value(ctxKey{}).(types.User)
	return u
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		b.mu.Lock()
		b.calls[r.Method+" "+pattern]++
		b.mu.Unlock()
	})
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		u, ok := b.userForToken(tok)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func (b *Backend) userForToken(tok string) (types.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.tokens[tok]
	if !ok || tok == "" {
		return types.User{}, false
	}
	for _, a := range b.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return types.User{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	b.mu.Lock()
	a, ok := b.accounts[req.Username]
	if !ok || a.password != req.Password {
		b.mu.Unlock()
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	tok := "tok-" + uuid.NewString()
	b.tokens[tok] = a.user.ID
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.LoginResult{Success: true, Token: tok, User: a.user})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.Revoke(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	writeJSON(w, http.StatusOK, types.Ack{Success: true})
}

// position is 0 for active users, else 1-based among the waiting.
func (b *Backend) position(userID string) (pos, active int, found bool) {
	waiting := 0
	for _, e := range b.queue {
		if e.active {
			active++
		}
	}
	for _, e := range b.queue {
		if !e.active {
			waiting++
		}
		if e.userID == userID {
			found = true
			if e.active {
				pos = 0
			} else {
				pos = waiting
			}
		}
	}
	return pos, active, found
}

func (b *Backend) joinQueue(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	b.mu.Lock()
	if _, _, found := b.position(u.ID); !found {
		_, active, _ := b.position("")
		b.queue = append(b.queue, queueEntry{userID: u.ID, active: active < b.limit})
	}
	pos, _, _ := b.position(u.ID)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.JoinResult{Success: true, QueuePosition: &pos, EstimatedWaitMinutes: pos})
}

func (b *Backend) queueStatus(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	b.mu.Lock()
	pos, active, found := b.position(u.ID)
	remaining := b.remaining
	b.mu.Unlock()
	if !found {
		writeJSON(w, http.StatusOK, types.QueueStatus{InQueue: false})
		return
	}
	st := types.QueueStatus{InQueue: true, Status: types.QueueWaiting, Position: pos, EstimatedWaitMinutes: pos, ActiveCount: active}
	if pos == 0 {
		st.Status = types.QueueActive
		st.RemainingSeconds = remaining
	}
	writeJSON(w, http.StatusOK, st)
}

func (b *Backend) available(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	l := append([]types.Workshop(nil), b.workshops...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.WorkshopList{Success: true, Workshops: l})
}

func (b *Backend) listSeats(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	b.mu.Lock()
	seats, ok := b.seats[sid]
	seats = append([]types.Seat(nil), seats...)
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Workshop session not found")
		return
	}
	writeJSON(w, http.StatusOK, types.SeatList{Success: true, Seats: seats})
}

// findSeat must be called with b.mu held.
func (b *Backend) findSeat(seatID string) *types.Seat {
	for sid := range b.seats {
		for i := range b.seats[sid] {
			if b.seats[sid][i].ID == seatID {
				return &b.seats[sid][i]
			}
		}
	}
	return nil
}

func (b *Backend) reserve(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	b.mu.Lock()
	s := b.findSeat(chi.URLParam(r, "id"))
	switch {
	case s == nil:
		b.mu.Unlock()
		fail(w, http.StatusNotFound, "Seat not found")
		return
	case s.Status != types.SeatAvailable:
		b.mu.Unlock()
		fail(w, http.StatusConflict, "Seat already reserved")
		return
	}
	s.Status, s.ReservedBy = types.SeatReserved, u.ID
	id := s.ID
	b.mu.Unlock()
	b.pushSeat(id, types.SeatReserved, u.ID)
	writeJSON(w, http.StatusOK, types.Ack{Success: true, Message: "Seat reserved"})
}

func (b *Backend) release(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	b.mu.Lock()
	s := b.findSeat(chi.URLParam(r, "id"))
	if s == nil || s.Status != types.SeatReserved || s.ReservedBy != u.ID {
		b.mu.Unlock()
		fail(w, http.StatusNotFound, "No reservation to release")
		return
	}
	s.Status, s.ReservedBy = types.SeatAvailable, ""
	id := s.ID
	b.mu.Unlock()
	b.pushSeat(id, types.SeatAvailable, "")
	writeJSON(w, http.StatusOK, types.Ack{Success: true, Message: "Seat released"})
}

func (b *Backend) enroll(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	var req struct {
		ClassID string `json:"classId"`
		SeatID  string `json:"seatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	b.mu.Lock()
	var ws *types.Workshop
	for i := range b.workshops {
		if b.workshops[i].SessionID == req.ClassID {
			ws = &b.workshops[i]
		}
	}
	if ws == nil {
		b.mu.Unlock()
		fail(w, http.StatusNotFound, "Workshop not found")
		return
	}
	if ws.Enrolled >= ws.Quota {
		b.mu.Unlock()
		fail(w, http.StatusConflict, "QUOTA_EXCEEDED: workshop is full")
		return
	}
	ws.Enrolled++
	en := types.Enrollment{
		ID:           fmt.Sprintf("en-%d", len(b.enrolled[u.ID])+1),
		SessionID:    ws.SessionID,
		WorkshopCode: ws.Code,
		WorkshopName: ws.Name,
		Credits:      ws.Credits,
		SeatID:       req.SeatID,
	}
	if s := b.findSeat(req.SeatID); s != nil {
		s.Status = types.SeatOccupied
		en.SeatNumber = s.SeatNumber
	}
	b.enrolled[u.ID] = append(b.enrolled[u.ID], en)
	total := 0
	for _, e := range b.enrolled[u.ID] {
		total += e.Credits
	}
	enrolledNow := ws.Enrolled
	b.mu.Unlock()

	b.Push("", types.FrameQuotaUpdate, types.QuotaUpdatePayload{ClassID: req.ClassID, Enrolled: enrolledNow})
	writeJSON(w, http.StatusOK, types.EnrollResult{Success: true, EnrollmentID: en.ID, TotalCredits: total})
}

func (b *Backend) myWorkshops(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	b.mu.Lock()
	mine := append([]types.Enrollment(nil), b.enrolled[u.ID]...)
	b.mu.Unlock()
	total := 0
	for _, e := range mine {
		total += e.Credits
	}
	limit := u.MaxCredits
	if limit == 0 {
		limit = types.DefaultMaxCredits
	}
	writeJSON(w, http.StatusOK, map[string]any{"workshops": mine, "totalCredits": total, "maxCredits": limit})
}
