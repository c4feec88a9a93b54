package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type pushMsg interface{ isPushMsg() }

type join struct {
	ClientID string
	UserID   string
	Outbox   chan []byte
}

type leave struct{ ClientID string }

// publish sends Frame to every client of To, or to everyone when To is "".
type publish struct {
	To    string
	Frame []byte
}

type countClients struct{ Reply chan int }

type kick struct{ Reply chan int }

func (join) isPushMsg()         {}
func (leave) isPushMsg()        {}
func (publish) isPushMsg()      {}
func (countClients) isPushMsg() {}
func (kick) isPushMsg()         {}

type client struct {
	userID string
	outbox chan []byte
}

// pusher owns the connected WebSocket clients. One goroutine, typed inbox.
type pusher struct {
	inbox   chan pushMsg
	clients map[string]client
	ctx     context.Context
	cancel  context.CancelFunc
}

func newPusher(parent context.Context) *pusher {
	ctx, cancel := context.WithCancel(parent)
	p := &pusher{
		inbox:   make(chan pushMsg, 64),
		clients: make(map[string]client),
		ctx:     ctx,
		cancel:  cancel,
	}
	go p.loop()
	return p
}

func (p *pusher) loop() {
	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return

		case m := <-p.inbox:
			switch msg := m.(type) {
			case join:
				p.clients[msg.ClientID] = client{userID: msg.UserID, outbox: msg.Outbox}
				connected, _ := json.Marshal(types.Frame{Type: types.FrameConnected})
				p.offer(msg.ClientID, connected)

			case leave:
				if c, ok := p.clients[msg.ClientID]; ok {
					close(c.outbox)
					delete(p.clients, msg.ClientID)
				}

			case publish:
				for id, c := range p.clients {
					if msg.To == "" || msg.To == c.userID {
						p.offer(id, msg.Frame)
					}
				}

			case countClients:
				msg.Reply <- len(p.clients)

			case kick:
				n := len(p.clients)
				for id, c := range p.clients {
					close(c.outbox)
					delete(p.clients, id)
				}
				msg.Reply <- n
			}
		}
	}
}

// offer drops a client whose outbox is full.
func (p *pusher) offer(id string, frame []byte) {
	c := p.clients[id]
	select {
	case c.outbox <- frame:
	default:
		close(c.outbox)
		delete(p.clients, id)
	}
}

func (p *pusher) shutdown() {
	for id, c := range p.clients {
		close(c.outbox)
		delete(p.clients, id)
	}
}

func (p *pusher) send(m pushMsg) {
	select {
	case p.inbox <- m:
	case <-p.ctx.Done():
	}
}

func (p *pusher) count() int {
	reply := make(chan int, 1)
	p.send(countClients{Reply: reply})
	select {
	case n := <-reply:
		return n
	case <-p.ctx.Done():
		return 0
	}
}

func (p *pusher) kickAll() int {
	reply := make(chan int, 1)
	p.send(kick{Reply: reply})
	select {
	case n := <-reply:
		return n
	case <-p.ctx.Done():
		return 0
	}
}

// handleWS authenticates ?token=, then streams frames until the client or
// the backend goes away.
func (b *Backend) handleWS(w http.ResponseWriter, r *http.Request) {
	u, ok := b.userForToken(r.URL.Query().Get("token"))
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan []byte, 16)
	clientID := uuid.NewString()
	b.push.send(join{ClientID: clientID, UserID: u.ID, Outbox: out})
	defer b.push.send(leave{ClientID: clientID})

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "kicked")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
