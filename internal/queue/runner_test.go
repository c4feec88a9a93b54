package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type fakeAPI struct {
	mu         sync.Mutex
	joins      []func() (types.JoinResult, error)
	status     func() (types.QueueStatus, error)
	joinCalls  int
	polls      int
	heartbeats int
}

func (f *fakeAPI) JoinQueue(ctx context.Context) (types.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.joinCalls
	f.joinCalls++
	if i >= len(f.joins) {
		i = len(f.joins) - 1
	}
	return f.joins[i]()
}

func (f *fakeAPI) QueueStatus(ctx context.Context) (types.QueueStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.status == nil {
		return types.QueueStatus{InQueue: true, Status: types.QueueWaiting, Position: 5}, nil
	}
	return f.status()
}

func (f *fakeAPI) Heartbeat(ctx context.Context) error {
	f.mu.Lock()
	f.heartbeats++
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) counts() (joins, polls, beats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls, f.polls, f.heartbeats
}

type fakePush struct {
	mu       sync.Mutex
	listener realtime.Listener
	unsubbed bool
}

func (p *fakePush) Subscribe(fn realtime.Listener) func() {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.unsubbed = true
		p.mu.Unlock()
	}
}

func (p *fakePush) emit(t *testing.T, f types.Frame) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.listener != nil
	}, time.Second, time.Millisecond)
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	fn(f)
}

func (p *fakePush) wasUnsubscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubbed
}

func joinAt(pos int) func() (types.JoinResult, error) {
	return func() (types.JoinResult, error) {
		return types.JoinResult{Success: true, QueuePosition: &pos, EstimatedWaitMinutes: 1}, nil
	}
}

func waitFor(t *testing.T, ch <-chan Snapshot, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, open := <-ch:
			if !open {
				t.Fatalf("watch channel closed early")
			}
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func newRunner(api API, push Subscriber) *Runner {
	return NewRunner(api, push, Options{PollInterval: 20 * time.Millisecond, CountdownInterval: time.Hour})
}

func TestRunner_PositionZeroGoesStraightThrough(t *testing.T) {
	api := &fakeAPI{joins: []func() (types.JoinResult, error){joinAt(0)}}
	push := &fakePush{}
	r := newRunner(api, push)
	r.Start(context.Background())

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("never promoted")
	}
	<-r.Stopped()

	s, err := r.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseActive, s.State.Phase)
	assert.True(t, push.wasUnsubscribed())
}

func TestRunner_WaitsThenPromotedByPush(t *testing.T) {
	api := &fakeAPI{joins: []func() (types.JoinResult, error){joinAt(4)}}
	push := &fakePush{}
	r := newRunner(api, push)
	snaps, _ := r.Watch()
	r.Start(context.Background())
	defer r.Stop()

	s := waitFor(t, snaps, func(s Snapshot) bool { return s.State.Phase == engine.PhaseWaiting })
	assert.Equal(t, 4, s.State.Position)

	push.emit(t, types.Frame{Type: types.FrameQueuePosition, Payload: json.RawMessage(`{"position":2,"activeCount":10}`)})
	s = waitFor(t, snaps, func(s Snapshot) bool { return s.State.Position == 2 })
	assert.Equal(t, 11, s.InFront)

	push.emit(t, types.Frame{Type: types.FrameAccessGranted})
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("push did not promote")
	}
}

func TestRunner_PollsWithHeartbeatAndPromotesOnActive(t *testing.T) {
	var mu sync.Mutex
	active := false
	api := &fakeAPI{
		joins: []func() (types.JoinResult, error){joinAt(3)},
		status: func() (types.QueueStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			if active {
				return types.QueueStatus{InQueue: true, Status: types.QueueActive, RemainingSeconds: 600}, nil
			}
			return types.QueueStatus{InQueue: true, Status: types.QueueWaiting, Position: 3}, nil
		},
	}
	r := newRunner(api, &fakePush{})
	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { _, polls, _ := api.counts(); return polls >= 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	active = true
	mu.Unlock()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("poll did not promote")
	}
	_, polls, beats := api.counts()
	assert.Equal(t, polls, beats, "one heartbeat per poll")
}

func TestRunner_FailedJoinRetriesOnNextTick(t *testing.T) {
	api := &fakeAPI{joins: []func() (types.JoinResult, error){
		func() (types.JoinResult, error) { return types.JoinResult{}, errors.New("connection refused") },
		func() (types.JoinResult, error) {
			return types.JoinResult{Success: false, Message: "queue closed"}, nil
		},
		joinAt(6),
	}}
	r := newRunner(api, &fakePush{})
	snaps, _ := r.Watch()
	r.Start(context.Background())
	defer r.Stop()

	s := waitFor(t, snaps, func(s Snapshot) bool { return s.LastError != "" })
	assert.Contains(t, s.LastError, "connection refused")

	s = waitFor(t, snaps, func(s Snapshot) bool { return s.State.Phase == engine.PhaseWaiting })
	assert.Equal(t, 6, s.State.Position)
	assert.Empty(t, s.LastError)
	joins, _, _ := api.counts()
	assert.Equal(t, 3, joins)
}

func TestRunner_RejoinsWhenServerForgetsUs(t *testing.T) {
	var mu sync.Mutex
	forgot := true
	api := &fakeAPI{
		joins: []func() (types.JoinResult, error){joinAt(5), joinAt(9)},
		status: func() (types.QueueStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			if forgot {
				forgot = false
				return types.QueueStatus{InQueue: false}, nil
			}
			return types.QueueStatus{InQueue: true, Status: types.QueueWaiting, Position: 9}, nil
		},
	}
	r := newRunner(api, &fakePush{})
	snaps, _ := r.Watch()
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, snaps, func(s Snapshot) bool { return s.State.Position == 9 })
	joins, _, _ := api.counts()
	assert.GreaterOrEqual(t, joins, 2)
}

func TestRunner_CountdownTicksDown(t *testing.T) {
	secs := 3
	api := &fakeAPI{
		joins: []func() (types.JoinResult, error){func() (types.JoinResult, error) {
			pos := 2
			return types.JoinResult{Success: true, QueuePosition: &pos, EstimatedWaitSeconds: &secs}, nil
		}},
	}
	r := NewRunner(api, &fakePush{}, Options{PollInterval: time.Hour, CountdownInterval: 5 * time.Millisecond})
	snaps, _ := r.Watch()
	r.Start(context.Background())
	defer r.Stop()

	prev := -1
	s := waitFor(t, snaps, func(s Snapshot) bool {
		if s.State.Phase != engine.PhaseWaiting {
			return false
		}
		if prev >= 0 {
			assert.LessOrEqual(t, s.State.Countdown, prev)
		}
		prev = s.State.Countdown
		return s.State.Countdown == 0
	})
	assert.Equal(t, "00:00", s.Countdown)
}

func TestRunner_StopClosesWatchers(t *testing.T) {
	api := &fakeAPI{joins: []func() (types.JoinResult, error){joinAt(4)}}
	push := &fakePush{}
	r := newRunner(api, push)
	snaps, _ := r.Watch()
	r.Start(context.Background())

	waitFor(t, snaps, func(s Snapshot) bool { return s.State.Phase == engine.PhaseWaiting })
	r.Stop()

	for range snaps {
	}
	assert.True(t, push.wasUnsubscribed())

	select {
	case <-r.Done():
		t.Fatal("stop is not promotion")
	default:
	}
}

func TestRunner_JoinWithoutPositionRetries(t *testing.T) {
	api := &fakeAPI{joins: []func() (types.JoinResult, error){
		func() (types.JoinResult, error) { return types.JoinResult{Success: true}, nil },
		joinAt(3),
	}}
	r := newRunner(api, &fakePush{})
	snaps, _ := r.Watch()
	r.Start(context.Background())
	defer r.Stop()

	s := waitFor(t, snaps, func(s Snapshot) bool { return s.LastError != "" })
	assert.Equal(t, engine.PhaseJoining, s.State.Phase)

	s = waitFor(t, snaps, func(s Snapshot) bool { return s.State.Phase == engine.PhaseWaiting })
	assert.Equal(t, 3, s.State.Position)
	select {
	case <-r.Done():
		t.Fatal("a join without a position is not a promotion")
	default:
	}
}

// slowJoin holds every join until release is closed.
type slowJoin struct {
	*fakeAPI
	release chan struct{}
}

func (s slowJoin) JoinQueue(ctx context.Context) (types.JoinResult, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return types.JoinResult{}, ctx.Err()
	}
	return s.fakeAPI.JoinQueue(ctx)
}

func TestRunner_ConnectedDuringJoinStillChecksStatus(t *testing.T) {
	api := slowJoin{fakeAPI: &fakeAPI{joins: []func() (types.JoinResult, error){joinAt(3)}}, release: make(chan struct{})}
	push := &fakePush{}
	r := NewRunner(api, push, Options{PollInterval: time.Hour, CountdownInterval: time.Hour})
	r.Start(context.Background())
	defer r.Stop()

	push.emit(t, types.Frame{Type: types.FrameConnected})
	require.Eventually(t, func() bool { _, polls, _ := api.counts(); return polls == 1 }, time.Second, 5*time.Millisecond)

	close(api.release)
	require.Eventually(t, func() bool { joins, _, _ := api.counts(); return joins == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunner_PushNeverBlocksWhenBackedUp(t *testing.T) {
	r := newRunner(&fakeAPI{joins: []func() (types.JoinResult, error){joinAt(4)}}, &fakePush{})
	r.ctx, r.cancel = context.WithCancel(context.Background())
	defer r.cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(r.inbox)+10; i++ {
			r.onPush(types.Frame{Type: types.FrameQueuePosition})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push delivery blocked on a full inbox")
	}
	assert.Len(t, r.inbox, cap(r.inbox))
	assert.Len(t, r.resync, 1, "dropped frames schedule a status check")
}

func TestRunner_WatchQueuedAtShutdownIsClosed(t *testing.T) {
	r := newRunner(&fakeAPI{joins: []func() (types.JoinResult, error){joinAt(4)}}, &fakePush{})
	r.ctx, r.cancel = context.WithCancel(context.Background())

	// queued but never handled by a loop
	out := make(chan Snapshot, 8)
	r.inbox <- watch{ID: 1, Outbox: out}
	r.shutdown()

	_, ok := <-out
	assert.True(t, ok, "gets the final snapshot")
	_, ok = <-out
	assert.False(t, ok, "then closed")

	late, _ := r.Watch()
	_, ok = <-late
	assert.True(t, ok)
	_, ok = <-late
	assert.False(t, ok)
}
