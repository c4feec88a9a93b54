// Package queue drives the waiting-queue state machine against the live
// backend: it joins, polls, ticks the countdown, listens for pushes, and
// reports promotion.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/fanout"
	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

var (
	positionGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siasat_queue_position",
		Help: "Last known queue position of this client",
	})
	promotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siasat_queue_promotions_total",
		Help: "Times this client was let through the queue",
	})
	pushesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siasat_queue_pushes_dropped_total",
		Help: "Push frames dropped because the queue runner was backed up",
	})
)

// API is the slice of the gateway the runner needs.
type API interface {
	JoinQueue(ctx context.Context) (types.JoinResult, error)
	QueueStatus(ctx context.Context) (types.QueueStatus, error)
	Heartbeat(ctx context.Context) error
}

type Subscriber interface {
	Subscribe(fn realtime.Listener) (unsubscribe func())
}

type Options struct {
	PollInterval      time.Duration
	CountdownInterval time.Duration
	Logger            *zap.Logger
}

type Snapshot struct {
	Version   int               `json:"version"`
	State     engine.QueueState `json:"state"`
	Countdown string            `json:"countdown"`
	InFront   int               `json:"studentsInFront"`
	LastError string            `json:"lastError,omitempty"`
}

type msg interface{ isQueueMsg() }

type watch struct {
	ID     int
	Outbox chan Snapshot
}

type unwatch struct{ ID int }

type getView struct{ Reply chan Snapshot }

type joinDone struct {
	Res types.JoinResult
	Err error
}

type pollDone struct {
	St  types.QueueStatus
	Err error
}

type pushed struct{ Frame types.Frame }

func (watch) isQueueMsg()    {}
func (unwatch) isQueueMsg()  {}
func (getView) isQueueMsg()  {}
func (joinDone) isQueueMsg() {}
func (pollDone) isQueueMsg() {}
func (pushed) isQueueMsg()   {}

type Runner struct {
	api  API
	push Subscriber
	poll time.Duration
	tick time.Duration
	log  *zap.Logger

	inbox   chan msg
	resync  chan struct{} // a push was dropped; poll now
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{} // closed on promotion
	quit    chan struct{} // closed once the loop stops reading inbox
	stopped chan struct{} // closed when the loop exits

	// owned by loop
	state    engine.QueueState
	version  int
	lastErr  string
	joining  bool
	polling  bool
	watchers *fanout.Set[Snapshot]

	nextID atomic.Int64

	mu     sync.Mutex // serializes Watch against shutdown
	closed bool
	last   Snapshot // published before quit closes
}

func NewRunner(api API, push Subscriber, opts Options) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}
	log := logging.OrNop(opts.Logger).Named("queue")
	return &Runner{
		api:      api,
		push:     push,
		poll:     opts.PollInterval,
		tick:     opts.CountdownInterval,
		log:      log,
		inbox:    make(chan msg, 64),
		resync:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		state:    engine.NewQueueState(),
		watchers: fanout.New[Snapshot](log),
	}
}

// Start joins the queue and runs until promotion, Stop, or parent
// cancellation.
func (r *Runner) Start(parent context.Context) {
	r.ctx, r.cancel = context.WithCancel(parent)
	go r.loop()
}

// Stop tears down tickers and the push subscription. In-flight requests are
// cancelled and their results discarded.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.stopped
}

// Done is closed once the server lets us through.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Stopped is closed when the runner has fully shut down.
func (r *Runner) Stopped() <-chan struct{} { return r.stopped }

// Watch returns a channel of snapshots starting with the current one. A
// watcher that falls behind is dropped and its channel closed.
func (r *Runner) Watch() (<-chan Snapshot, func()) {
	out := make(chan Snapshot, 8)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return finished(out, r.last), func() {}
	}
	id := int(r.nextID.Inc())
	select {
	case r.inbox <- watch{ID: id, Outbox: out}:
	case <-r.quit:
		return finished(out, r.last), func() {}
	}
	return out, func() { r.send(unwatch{ID: id}) }
}

func finished(out chan Snapshot, last Snapshot) chan Snapshot {
	out <- last
	close(out)
	return out
}

// View returns the current snapshot, or the final one after shutdown.
func (r *Runner) View(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case r.inbox <- getView{Reply: reply}:
	case <-r.stopped:
		return r.last, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.stopped:
		return r.last, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (r *Runner) send(m msg) {
	select {
	case r.inbox <- m:
	case <-r.stopped:
	}
}

// sendBack delivers an async result unless the runner is gone.
func (r *Runner) sendBack(m msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

// onPush runs on the realtime goroutine and must not block it. A frame that
// finds the inbox full is dropped and a status check scheduled instead.
func (r *Runner) onPush(f types.Frame) {
	select {
	case r.inbox <- pushed{Frame: f}:
	case <-r.ctx.Done():
	default:
		pushesDropped.Inc()
		r.log.Debug("push dropped, runner backed up", zap.String("frame", string(f.Type)))
		select {
		case r.resync <- struct{}{}:
		default:
		}
	}
}

func (r *Runner) loop() {
	defer close(r.stopped)
	defer r.shutdown()

	unsubscribe := r.push.Subscribe(r.onPush)
	defer unsubscribe()

	pollT := time.NewTicker(r.poll)
	defer pollT.Stop()
	countT := time.NewTicker(r.tick)
	defer countT.Stop()

	r.join()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-pollT.C:
			r.refresh()

		case <-r.resync:
			r.refresh()

		case <-countT.C:
			_, next, err := engine.ApplyQueue(r.state, engine.Ticked())
			if err == nil && next.Countdown != r.state.Countdown {
				r.state = next
				r.broadcast()
			}

		case m := <-r.inbox:
			switch msg := m.(type) {
			case watch:
				r.watchers.Add(msg.ID, msg.Outbox, r.snapshot())

			case unwatch:
				r.watchers.Remove(msg.ID)

			case getView:
				msg.Reply <- r.snapshot()

			case joinDone:
				r.joining = false
				if msg.Err != nil {
					r.fail("join failed", msg.Err)
					break
				}
				if r.apply(engine.Joined(msg.Res)) {
					return
				}

			case pollDone:
				r.polling = false
				if msg.Err != nil {
					r.fail("status check failed", msg.Err)
					break
				}
				if r.apply(engine.Polled(msg.St)) {
					return
				}

			case pushed:
				if r.apply(engine.PushedQueue(msg.Frame)) {
					return
				}
			}
		}
	}
}

// apply runs the reducer and performs its effects. It reports true once the
// runner is finished.
func (r *Runner) apply(ev engine.QueueEvent) bool {
	effects, next, err := engine.ApplyQueue(r.state, ev)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrJoinRejected):
			r.fail("join rejected", rejection(ev.Join.Message))
			return false
		case errors.Is(err, engine.ErrNoPosition):
			r.fail("join incomplete", err)
			return false
		}
		r.log.Debug("event ignored", zap.String("event", string(ev.Type)), zap.Error(err))
		return false
	}
	changed := next.Version != r.state.Version
	r.state = next
	if changed {
		r.lastErr = ""
		positionGauge.Set(float64(next.Position))
		r.broadcast()
	}

	for _, eff := range effects {
		switch eff {
		case engine.EffRedirect:
			promotions.Inc()
			r.log.Info("access granted")
			close(r.done)
			return true
		case engine.EffRejoin:
			r.log.Info("not in queue anymore, rejoining")
			r.join()
		case engine.EffCheckStatus:
			r.checkStatus()
		}
	}
	return false
}

func rejection(msg string) error {
	if msg == "" {
		return engine.ErrJoinRejected
	}
	return fmt.Errorf("%w: %s", engine.ErrJoinRejected, msg)
}

// refresh asks the server where we stand: join again while not yet in line,
// otherwise poll.
func (r *Runner) refresh() {
	switch r.state.Phase {
	case engine.PhaseJoining:
		r.join()
	case engine.PhaseWaiting:
		r.checkStatus()
	}
}

func (r *Runner) join() {
	if r.joining {
		return
	}
	r.joining = true
	go func() {
		res, err := r.api.JoinQueue(r.ctx)
		r.sendBack(joinDone{Res: res, Err: err})
	}()
}

// checkStatus runs independently of join so a WS_CONNECTED arriving
// mid-join still gets its status check.
func (r *Runner) checkStatus() {
	if r.polling {
		return
	}
	r.polling = true
	go func() {
		if err := r.api.Heartbeat(r.ctx); err != nil && r.ctx.Err() == nil {
			r.log.Debug("heartbeat failed", zap.Error(err))
		}
		st, err := r.api.QueueStatus(r.ctx)
		r.sendBack(pollDone{St: st, Err: err})
	}()
}

// fail records the error for display; the next poll tick retries.
func (r *Runner) fail(what string, err error) {
	if r.ctx.Err() != nil {
		return
	}
	r.log.Warn(what, zap.Error(err))
	r.lastErr = err.Error()
	r.broadcast()
}

func (r *Runner) snapshot() Snapshot {
	return Snapshot{
		Version:   r.version,
		State:     r.state,
		Countdown: engine.FormatCountdown(r.state.Countdown),
		InFront:   r.state.StudentsInFront(),
		LastError: r.lastErr,
	}
}

func (r *Runner) broadcast() {
	r.version++
	r.watchers.Broadcast(r.snapshot())
}

func (r *Runner) shutdown() {
	r.last = r.snapshot()
	r.watchers.Close(r.last)
	r.cancel()
	close(r.quit)

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	// Watches queued before closed was set were never handled.
	for {
		select {
		case m := <-r.inbox:
			if w, ok := m.(watch); ok {
				finished(w.Outbox, r.last)
			}
		default:
			return
		}
	}
}
