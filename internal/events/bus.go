// Package events is the application-wide signal channel. Components that
// need to react to session death or a lost server connection receive a *Bus
// instead of listening on ambient global state.
package events

import "sync"

type Kind string

const (
	// AuthError: the server answered 401 outside of login. The session is
	// dead; credentials must be dropped without calling logout.
	AuthError Kind = "auth_error"
	// ServerConnectionError: the request never reached the server.
	// Advisory only.
	ServerConnectionError Kind = "server_connection_error"
	// SessionExpired: the token's exp claim passed locally.
	SessionExpired Kind = "session_expired"
)

type Signal struct {
	Kind    Kind
	Message string
}

type Handler func(Signal)

type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns the function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers s to every handler synchronously. A nil bus drops the
// signal so callers don't have to guard.
func (b *Bus) Publish(s Signal) {
	if b == nil {
		return
	}
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(s)
	}
}
