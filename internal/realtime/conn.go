package realtime

import (
	"context"
	"net/url"

	"github.com/coder/websocket"
)

// Conn is one live push connection. Read blocks until a frame, close or
// cancellation.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the backend's /ws endpoint.
type WebSocketDialer struct {
	ReadLimit int64
}

func (d WebSocketDialer) Dial(ctx context.Context, u string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return wsConn{c: c}, nil
}

type wsConn struct{ c *websocket.Conn }

func (w wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}

// isNormalClose treats clean close and going-away as expected.
func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

func withToken(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
