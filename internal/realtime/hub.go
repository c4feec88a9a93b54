// Package realtime owns the single push connection to the backend and fans
// decoded frames out to every subscriber.
//
// The hub is an actor: one goroutine owns the listener set and the
// connection, everything else talks to it through the inbox. The connection
// is opened lazily by the first Subscribe, reopened after ReconnectDelay when
// it drops while listeners remain, and closed when the last listener leaves.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

const DefaultReconnectDelay = 5 * time.Second

var reconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "siasat_realtime_reconnects_total",
	Help: "Push connection reconnect attempts",
})

// Listener is called on the hub goroutine. It must return promptly; a
// listener that needs to wait hands the frame off without blocking.
type Listener func(types.Frame)

type Options struct {
	URL            string
	Token          func() string
	Dialer         Dialer
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

type hubMsg interface{ isHubMsg() }

type subscribeReq struct {
	ID int64
	Fn Listener
}

type unsubscribeReq struct{ ID int64 }

type connOpened struct {
	Gen  int
	Conn Conn
}

type connFailed struct {
	Gen int
	Err error
}

type frameIn struct {
	Gen  int
	Data []byte
}

type reconnectDue struct{ Gen int }

func (subscribeReq) isHubMsg()   {}
func (unsubscribeReq) isHubMsg() {}
func (connOpened) isHubMsg()     {}
func (connFailed) isHubMsg()     {}
func (frameIn) isHubMsg()        {}
func (reconnectDue) isHubMsg()   {}

type Stats struct {
	Connected  bool  `json:"connected"`
	Listeners  int32 `json:"listeners"`
	Frames     int64 `json:"frames"`
	Dropped    int64 `json:"dropped"`
	Reconnects int64 `json:"reconnects"`
}

type Hub struct {
	inbox  chan hubMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	url    string
	token  func() string
	dialer Dialer
	delay  time.Duration
	log    *zap.Logger

	nextID atomic.Int64

	// owned by loop
	listeners map[int64]Listener
	conn      Conn
	gen       int
	dialing   bool
	pending   bool // reconnect timer armed
	closeErr  error

	// read from any goroutine
	connected  atomic.Bool
	nListeners atomic.Int32
	frames     atomic.Int64
	dropped    atomic.Int64
	redials    atomic.Int64
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{ReadLimit: 1 << 20}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	h := &Hub{
		inbox:     make(chan hubMsg, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		url:       opts.URL,
		token:     opts.Token,
		dialer:    opts.Dialer,
		delay:     opts.ReconnectDelay,
		log:       logging.OrNop(opts.Logger).Named("realtime"),
		listeners: make(map[int64]Listener),
	}
	go h.loop()
	return h
}

// Subscribe adds fn to the fan-out and returns the handle that removes it.
// Calling the handle more than once is harmless.
func (h *Hub) Subscribe(fn Listener) (unsubscribe func()) {
	id := h.nextID.Inc()
	h.send(subscribeReq{ID: id, Fn: fn})
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			h.send(unsubscribeReq{ID: id})
		}
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connected:  h.connected.Load(),
		Listeners:  h.nListeners.Load(),
		Frames:     h.frames.Load(),
		Dropped:    h.dropped.Load(),
		Reconnects: h.redials.Load(),
	}
}

// Close stops the hub and the connection. Safe to call more than once.
func (h *Hub) Close() error {
	h.cancel()
	<-h.done
	return h.closeErr
}

func (h *Hub) send(m hubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.drop()
			clear(h.listeners)
			h.nListeners.Store(0)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case subscribeReq:
				h.listeners[msg.ID] = msg.Fn
				h.nListeners.Store(int32(len(h.listeners)))
				if h.conn == nil && !h.dialing && !h.pending {
					h.dial()
				}

			case unsubscribeReq:
				if _, ok := h.listeners[msg.ID]; !ok {
					break
				}
				delete(h.listeners, msg.ID)
				h.nListeners.Store(int32(len(h.listeners)))
				if len(h.listeners) == 0 {
					h.log.Debug("last listener left, closing")
					h.drop()
				}

			case connOpened:
				if msg.Gen != h.gen || len(h.listeners) == 0 {
					_ = msg.Conn.Close()
					break
				}
				h.dialing = false
				h.conn = msg.Conn
				h.connected.Store(true)
				h.log.Info("push connection open")
				go h.read(msg.Gen, msg.Conn)

			case connFailed:
				if msg.Gen != h.gen {
					break
				}
				if h.conn != nil {
					_ = h.conn.Close()
				}
				h.conn = nil
				h.dialing = false
				h.connected.Store(false)
				if isNormalClose(msg.Err) {
					h.log.Info("push connection closed by server")
				} else {
					h.log.Warn("push connection lost", zap.Error(msg.Err))
				}
				if len(h.listeners) > 0 {
					h.schedule(msg.Gen)
				}

			case reconnectDue:
				if msg.Gen != h.gen || !h.pending {
					break
				}
				h.pending = false
				if len(h.listeners) > 0 && h.conn == nil && !h.dialing {
					reconnects.Inc()
					h.redials.Inc()
					h.dial()
				}

			case frameIn:
				if msg.Gen != h.gen {
					break
				}
				h.deliver(msg.Data)
			}
		}
	}
}

func (h *Hub) dial() {
	tok := h.token()
	if tok == "" {
		h.log.Debug("no token, not connecting")
		return
	}
	target, err := withToken(h.url, tok)
	if err != nil {
		h.log.Error("bad websocket url", zap.String("url", h.url), zap.Error(err))
		return
	}
	h.gen++
	h.dialing = true
	gen := h.gen
	go func() {
		c, err := h.dialer.Dial(h.ctx, target)
		if err != nil {
			h.send(connFailed{Gen: gen, Err: fmt.Errorf("dial: %w", err)})
			return
		}
		h.send(connOpened{Gen: gen, Conn: c})
	}()
}

func (h *Hub) read(gen int, c Conn) {
	for {
		data, err := c.Read(h.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.send(connFailed{Gen: gen, Err: err})
			return
		}
		h.send(frameIn{Gen: gen, Data: data})
	}
}

func (h *Hub) schedule(gen int) {
	h.pending = true
	time.AfterFunc(h.delay, func() { h.send(reconnectDue{Gen: gen}) })
}

// drop invalidates the current generation so late dial results, reads and
// timers are ignored, then closes whatever is open.
func (h *Hub) drop() {
	h.gen++
	h.dialing = false
	h.pending = false
	h.connected.Store(false)
	if h.conn != nil {
		if err := h.conn.Close(); err != nil && !isNormalClose(err) {
			h.closeErr = err
		}
		h.conn = nil
	}
}

func (h *Hub) deliver(data []byte) {
	var f types.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		h.dropped.Inc()
		h.log.Warn("undecodable frame dropped", zap.Error(err), zap.ByteString("data", data))
		return
	}
	h.frames.Inc()
	for id, fn := range h.listeners {
		h.call(id, fn, f)
	}
}

func (h *Hub) call(id int64, fn Listener, f types.Frame) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("listener panicked",
				zap.Int64("listener", id), zap.String("frame", string(f.Type)), zap.Any("panic", r))
		}
	}()
	fn(f)
}
