// Package seating runs the seat map for one workshop session: it loads the
// grid, turns clicks into reserve and release calls, and folds in pushes
// from other users.
package seating

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/fanout"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

var ErrBusy = errors.New("a seat request is already in flight")
var ErrStopped = errors.New("seat picker stopped")

var pushesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "siasat_seat_pushes_dropped_total",
	Help: "Seat push frames dropped because the picker was backed up",
})

type API interface {
	Seats(ctx context.Context, sessionID string) (types.SeatList, error)
	ReserveSeat(ctx context.Context, seatID string) (types.Ack, error)
	ReleaseSeat(ctx context.Context, seatID string) (types.Ack, error)
}

type Subscriber interface {
	Subscribe(fn realtime.Listener) (unsubscribe func())
}

type Options struct {
	SessionID string
	Self      string // current user's id
	ReadOnly  bool
	Logger    *zap.Logger
}

type Snapshot struct {
	Version   int             `json:"version"`
	Grid      engine.SeatGrid `json:"grid"`
	Busy      bool            `json:"busy"`
	Loaded    bool            `json:"loaded"`
	LastError string          `json:"lastError,omitempty"`
}

type msg interface{ isSeatMsg() }

type click struct {
	SeatID string
	Reply  chan error
}

type release struct{ Reply chan error }

type reload struct{ Reply chan error }

type watch struct {
	ID     int
	Outbox chan Snapshot
}

type unwatch struct{ ID int }

type loaded struct {
	Seats []types.Seat
	Err   error
	Reply chan error
}

type jobDone struct {
	Event engine.SeatEvent
	Err   error
	Reply chan error
}

type pushed struct{ Frame types.Frame }

func (click) isSeatMsg()   {}
func (release) isSeatMsg() {}
func (reload) isSeatMsg()  {}
func (watch) isSeatMsg()   {}
func (unwatch) isSeatMsg() {}
func (loaded) isSeatMsg()  {}
func (jobDone) isSeatMsg() {}
func (pushed) isSeatMsg()  {}

type Picker struct {
	api  API
	push Subscriber
	log  *zap.Logger

	inbox   chan msg
	resync  chan struct{} // a push was dropped; reload the grid
	ctx     context.Context
	cancel  context.CancelFunc
	quit    chan struct{} // closed once the loop stops reading inbox
	stopped chan struct{}
	ready   chan struct{}

	// owned by loop
	grid     engine.SeatGrid
	version  int
	busy     bool
	isLoaded bool
	lastErr  string
	watchers *fanout.Set[Snapshot]

	nextID atomic.Int64

	mu     sync.Mutex // serializes Watch against shutdown
	closed bool
	last   Snapshot
}

// NewPicker validates the session locally; a blank id never reaches the
// network.
func NewPicker(api API, push Subscriber, opts Options) (*Picker, error) {
	if strings.TrimSpace(opts.SessionID) == "" {
		return nil, &gateway.ValidationError{Field: "sessionId", Message: "Invalid workshop session. Please try again."}
	}
	log := logging.OrNop(opts.Logger).Named("seating").With(zap.String("session", opts.SessionID))
	return &Picker{
		api:      api,
		push:     push,
		log:      log,
		inbox:    make(chan msg, 64),
		resync:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		grid:     engine.NewSeatGrid(opts.SessionID, opts.Self, opts.ReadOnly),
		watchers: fanout.New[Snapshot](log),
	}, nil
}

func (p *Picker) Start(parent context.Context) {
	p.ctx, p.cancel = context.WithCancel(parent)
	go p.loop()
}

func (p *Picker) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.stopped
}

// Ready is closed after the first successful load.
func (p *Picker) Ready() <-chan struct{} { return p.ready }

// Click selects, switches or deselects a seat and waits for the server's
// answer. Local rejections (read-only, unavailable, unknown) come back
// without a network call.
func (p *Picker) Click(ctx context.Context, seatID string) error {
	return p.ask(ctx, func(reply chan error) msg { return click{SeatID: seatID, Reply: reply} })
}

// Release frees the held seat, if any, ignoring server errors. Used when the
// user backs out of seat selection.
func (p *Picker) Release(ctx context.Context) error {
	return p.ask(ctx, func(reply chan error) msg { return release{Reply: reply} })
}

// Reload refetches the grid from the server.
func (p *Picker) Reload(ctx context.Context) error {
	return p.ask(ctx, func(reply chan error) msg { return reload{Reply: reply} })
}

func (p *Picker) ask(ctx context.Context, build func(chan error) msg) error {
	reply := make(chan error, 1)
	select {
	case p.inbox <- build(reply):
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Picker) Watch() (<-chan Snapshot, func()) {
	out := make(chan Snapshot, 8)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return finished(out, p.last), func() {}
	}
	id := int(p.nextID.Inc())
	select {
	case p.inbox <- watch{ID: id, Outbox: out}:
	case <-p.quit:
		return finished(out, p.last), func() {}
	}
	return out, func() { p.send(unwatch{ID: id}) }
}

func finished(out chan Snapshot, last Snapshot) chan Snapshot {
	out <- last
	close(out)
	return out
}

func (p *Picker) send(m msg) {
	select {
	case p.inbox <- m:
	case <-p.stopped:
	}
}

func (p *Picker) sendBack(m msg) {
	select {
	case p.inbox <- m:
	case <-p.ctx.Done():
	}
}

// onPush runs on the realtime goroutine and must not block it. When the
// inbox is full the frame is dropped and the grid reloaded instead.
func (p *Picker) onPush(f types.Frame) {
	switch f.Type {
	case types.FrameSeatStatusUpdate, types.FrameSeatsRegenerated:
	default:
		return
	}
	select {
	case p.inbox <- pushed{Frame: f}:
	case <-p.ctx.Done():
	default:
		pushesDropped.Inc()
		p.log.Debug("seat push dropped, picker backed up", zap.String("frame", string(f.Type)))
		select {
		case p.resync <- struct{}{}:
		default:
		}
	}
}

func (p *Picker) loop() {
	defer close(p.stopped)
	defer p.shutdown()

	unsubscribe := p.push.Subscribe(p.onPush)
	defer unsubscribe()

	p.load(nil)

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-p.resync:
			p.load(nil)

		case m := <-p.inbox:
			switch msg := m.(type) {
			case watch:
				p.watchers.Add(msg.ID, msg.Outbox, p.snapshot())

			case unwatch:
				p.watchers.Remove(msg.ID)

			case click:
				if p.busy {
					msg.Reply <- ErrBusy
					break
				}
				effects, next, err := engine.ApplySeats(p.grid, engine.Clicked(msg.SeatID))
				if err != nil {
					msg.Reply <- err
					break
				}
				p.grid = next
				p.run(effects, msg.Reply)

			case release:
				if p.grid.Selected == "" || p.busy {
					msg.Reply <- nil
					break
				}
				p.run([]engine.SeatEffect{{Type: engine.EffRelease, SeatID: p.grid.Selected, BestEffort: true}}, msg.Reply)

			case reload:
				p.load(msg.Reply)

			case jobDone:
				p.busy = false
				p.apply(msg.Event)
				if msg.Err != nil {
					p.lastErr = gateway.UserMessage(msg.Err)
				} else {
					p.lastErr = ""
				}
				p.broadcast()
				if msg.Reply != nil {
					msg.Reply <- msg.Err
				}

			case loaded:
				if msg.Err != nil {
					p.log.Warn("loading seats failed", zap.Error(msg.Err))
					p.lastErr = gateway.UserMessage(msg.Err)
				} else {
					p.apply(engine.Loaded(msg.Seats))
					if !p.isLoaded {
						p.isLoaded = true
						close(p.ready)
					}
				}
				p.broadcast()
				if msg.Reply != nil {
					msg.Reply <- msg.Err
				}

			case pushed:
				p.apply(engine.PushedSeat(msg.Frame))
				p.broadcast()
			}
		}
	}
}

// apply folds ev into the grid and schedules any reload it asks for.
func (p *Picker) apply(ev engine.SeatEvent) {
	effects, next, err := engine.ApplySeats(p.grid, ev)
	if err != nil {
		p.log.Debug("seat event ignored", zap.String("event", string(ev.Type)), zap.Error(err))
		return
	}
	p.grid = next
	for _, eff := range effects {
		if eff.Type == engine.EffReload {
			p.load(nil)
		}
	}
}

// run executes click effects in order off the loop goroutine. Only the last
// effect's outcome becomes an event; a best-effort release in front of it
// is fire and forget.
func (p *Picker) run(effects []engine.SeatEffect, reply chan error) {
	if len(effects) == 0 {
		reply <- nil
		return
	}
	p.busy = true
	p.broadcast()
	ctx := p.ctx
	go func() {
		var done jobDone
		for _, eff := range effects {
			switch eff.Type {
			case engine.EffRelease:
				_, err := p.api.ReleaseSeat(ctx, eff.SeatID)
				if eff.BestEffort {
					if err != nil {
						p.log.Debug("best-effort release failed", zap.String("seat", eff.SeatID), zap.Error(err))
					}
					if len(effects) == 1 {
						// standalone cancel: the hold is gone either way
						done = jobDone{Event: engine.ReleaseOK(eff.SeatID)}
					}
					continue
				}
				if err != nil {
					done = jobDone{Event: engine.ReleaseFailed(eff.SeatID), Err: err}
				} else {
					done = jobDone{Event: engine.ReleaseOK(eff.SeatID)}
				}
			case engine.EffReserve:
				if _, err := p.api.ReserveSeat(ctx, eff.SeatID); err != nil {
					done = jobDone{Event: engine.ReserveFailed(eff.SeatID, eff.Previous), Err: err}
				} else {
					done = jobDone{Event: engine.ReserveOK(eff.SeatID, eff.Previous)}
				}
			}
		}
		done.Reply = reply
		p.sendBack(done)
	}()
}

func (p *Picker) load(reply chan error) {
	ctx, sid := p.ctx, p.grid.SessionID
	go func() {
		l, err := p.api.Seats(ctx, sid)
		p.sendBack(loaded{Seats: l.Seats, Err: err, Reply: reply})
	}()
}

func (p *Picker) snapshot() Snapshot {
	return Snapshot{
		Version:   p.version,
		Grid:      p.grid,
		Busy:      p.busy,
		Loaded:    p.isLoaded,
		LastError: p.lastErr,
	}
}

func (p *Picker) broadcast() {
	p.version++
	p.watchers.Broadcast(p.snapshot())
}

func (p *Picker) shutdown() {
	p.last = p.snapshot()
	p.watchers.Close(p.last)
	p.cancel()
	close(p.quit)

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	// Watches queued before closed was set were never handled.
	for {
		select {
		case m := <-p.inbox:
			if w, ok := m.(watch); ok {
				finished(w.Outbox, p.last)
			}
		default:
			return
		}
	}
}
