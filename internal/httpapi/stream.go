package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type streamMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	State   any    `json:"state"`
}

// Stream pushes every queue snapshot to a local WebSocket client until
// either side goes away. Inbound messages are ignored.
func Stream(q QueueSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if q == nil {
			unavailable(w, "queue")
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		snaps, stop := q.Watch()
		defer stop()

		// CloseRead drains and discards client frames; ctx ends when the
		// client disconnects.
		ctx := conn.CloseRead(r.Context())

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "queue finished")
					return
				}
				payload, err := json.Marshal(streamMessage{Type: "QueueSnapshot", Version: snap.Version, State: snap})
				if err != nil {
					log.Warn("encoding snapshot failed", zap.Error(err))
					continue
				}
				wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				err = conn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("stream client gone", zap.Error(err))
					return
				}
			}
		}
	}
}
