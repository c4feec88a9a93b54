package seating

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type fakeAPI struct {
	mu         sync.Mutex
	seats      []types.Seat
	loads      int
	reserved   []string
	released   []string
	reserveErr error
	releaseErr error
}

func (f *fakeAPI) Seats(ctx context.Context, sessionID string) (types.SeatList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return types.SeatList{Success: true, Seats: append([]types.Seat(nil), f.seats...)}, nil
}

func (f *fakeAPI) ReserveSeat(ctx context.Context, seatID string) (types.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, seatID)
	if f.reserveErr != nil {
		return types.Ack{}, f.reserveErr
	}
	return types.Ack{Success: true}, nil
}

func (f *fakeAPI) ReleaseSeat(ctx context.Context, seatID string) (types.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, seatID)
	if f.releaseErr != nil {
		return types.Ack{}, f.releaseErr
	}
	return types.Ack{Success: true}, nil
}

func (f *fakeAPI) stats() (loads int, reserved, released []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, append([]string(nil), f.reserved...), append([]string(nil), f.released...)
}

type fakePush struct {
	mu sync.Mutex
	fn realtime.Listener
}

func (p *fakePush) Subscribe(fn realtime.Listener) func() {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
	return func() {}
}

func (p *fakePush) emit(raw string) {
	var f types.Frame
	_ = json.Unmarshal([]byte(raw), &f)
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	fn(f)
}

func layout() []types.Seat {
	return []types.Seat{
		{ID: "a1", RowLetter: "A", ColumnNumber: 1, Status: types.SeatAvailable},
		{ID: "a2", RowLetter: "A", ColumnNumber: 2, Status: types.SeatAvailable},
		{ID: "a3", RowLetter: "A", ColumnNumber: 3, Status: types.SeatOccupied},
	}
}

func startPicker(t *testing.T, api *fakeAPI, push *fakePush, readOnly bool) *Picker {
	t.Helper()
	p, err := NewPicker(api, push, Options{SessionID: "sess-1", Self: "u1", ReadOnly: readOnly})
	require.NoError(t, err)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("seats never loaded")
	}
	return p
}

func current(t *testing.T, p *Picker) Snapshot {
	t.Helper()
	ch, stop := p.Watch()
	defer stop()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return Snapshot{}
	}
}

func TestNewPicker_BlankSession(t *testing.T) {
	_, err := NewPicker(&fakeAPI{}, &fakePush{}, Options{SessionID: "  "})
	var verr *gateway.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPicker_ReserveSwitchRelease(t *testing.T) {
	api := &fakeAPI{seats: layout()}
	p := startPicker(t, api, &fakePush{}, false)
	ctx := context.Background()

	require.NoError(t, p.Click(ctx, "a1"))
	assert.Equal(t, "a1", current(t, p).Grid.Selected)

	require.NoError(t, p.Click(ctx, "a2"))
	g := current(t, p).Grid
	assert.Equal(t, "a2", g.Selected)
	a1, _ := g.Seat("a1")
	assert.Equal(t, types.SeatAvailable, a1.Status)
	assert.Equal(t, 1, g.MineCount())

	require.NoError(t, p.Click(ctx, "a2"))
	g = current(t, p).Grid
	assert.Empty(t, g.Selected)
	assert.Zero(t, g.MineCount())

	_, reserved, released := api.stats()
	assert.Equal(t, []string{"a1", "a2"}, reserved)
	assert.Equal(t, []string{"a1", "a2"}, released)
}

func TestPicker_ReserveFailureReloads(t *testing.T) {
	api := &fakeAPI{seats: layout(), reserveErr: &gateway.APIError{Status: 409, Message: "Seat already reserved"}}
	p := startPicker(t, api, &fakePush{}, false)

	err := p.Click(context.Background(), "a1")
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)

	require.Eventually(t, func() bool { loads, _, _ := api.stats(); return loads == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Seat already reserved", current(t, p).LastError)
}

func TestPicker_ReleaseFailureKeepsSelection(t *testing.T) {
	api := &fakeAPI{seats: layout()}
	p := startPicker(t, api, &fakePush{}, false)
	ctx := context.Background()
	require.NoError(t, p.Click(ctx, "a1"))

	api.mu.Lock()
	api.releaseErr = &gateway.APIError{Status: 500, Message: "Internal Server Error"}
	api.mu.Unlock()

	require.Error(t, p.Click(ctx, "a1"))
	assert.Equal(t, "a1", current(t, p).Grid.Selected)
	loads, _, _ := api.stats()
	assert.Equal(t, 1, loads, "no resync after a failed release")
}

func TestPicker_LocalRejections(t *testing.T) {
	api := &fakeAPI{seats: layout()}
	p := startPicker(t, api, &fakePush{}, false)
	assert.ErrorIs(t, p.Click(context.Background(), "a3"), engine.ErrSeatUnavailable)

	ro := startPicker(t, &fakeAPI{seats: layout()}, &fakePush{}, true)
	assert.ErrorIs(t, ro.Click(context.Background(), "a1"), engine.ErrReadOnly)

	_, reserved, _ := api.stats()
	assert.Empty(t, reserved)
}

func TestPicker_PushesPatchGrid(t *testing.T) {
	api := &fakeAPI{seats: layout()}
	push := &fakePush{}
	p := startPicker(t, api, push, false)
	require.NoError(t, p.Click(context.Background(), "a1"))

	push.emit(`{"type":"SEAT_STATUS_UPDATE","payload":{"seatId":"a2","status":"RESERVED","reservedBy":"u2"}}`)
	require.Eventually(t, func() bool {
		s, _ := current(t, p).Grid.Seat("a2")
		return s.Status == types.SeatReserved
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a1", current(t, p).Grid.Selected)

	push.emit(`{"type":"SEATS_REGENERATED","sessionId":"sess-1"}`)
	require.Eventually(t, func() bool { loads, _, _ := api.stats(); return loads == 2 }, time.Second, 5*time.Millisecond)
}

func TestPicker_ReleaseOnCancel(t *testing.T) {
	api := &fakeAPI{seats: layout()}
	p := startPicker(t, api, &fakePush{}, false)
	ctx := context.Background()
	require.NoError(t, p.Click(ctx, "a1"))

	api.mu.Lock()
	api.releaseErr = &gateway.APIError{Status: 404, Message: "Not Found"}
	api.mu.Unlock()

	require.NoError(t, p.Release(ctx), "cancel swallows release errors")
	assert.Empty(t, current(t, p).Grid.Selected)

	require.NoError(t, p.Release(ctx), "nothing held")
}

func TestPicker_PushNeverBlocksWhenBackedUp(t *testing.T) {
	p, err := NewPicker(&fakeAPI{seats: layout()}, &fakePush{}, Options{SessionID: "sess-1", Self: "u1"})
	require.NoError(t, err)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	defer p.cancel()

	p.onPush(types.Frame{Type: types.FrameWorkshopCreated})
	assert.Empty(t, p.inbox, "frames for other consumers are ignored")

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(p.inbox)+10; i++ {
			p.onPush(types.Frame{Type: types.FrameSeatStatusUpdate})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push delivery blocked on a full inbox")
	}
	assert.Len(t, p.inbox, cap(p.inbox))
	assert.Len(t, p.resync, 1, "dropped frames schedule a reload")
}

func TestPicker_WatchQueuedAtShutdownIsClosed(t *testing.T) {
	p, err := NewPicker(&fakeAPI{}, &fakePush{}, Options{SessionID: "sess-1"})
	require.NoError(t, err)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	out := make(chan Snapshot, 8)
	p.inbox <- watch{ID: 1, Outbox: out}
	p.shutdown()

	_, ok := <-out
	assert.True(t, ok, "gets the final snapshot")
	_, ok = <-out
	assert.False(t, ok, "then closed")

	late, _ := p.Watch()
	_, ok = <-late
	assert.True(t, ok)
	_, ok = <-late
	assert.False(t, ok)
}
