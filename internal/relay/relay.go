// Package relay republishes realtime frames onto NATS so other local tools
// (dashboards, scripts) can follow the same push stream without opening
// their own authenticated WebSocket.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// Publisher is the one method of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Subscriber interface {
	Subscribe(fn realtime.Listener) (unsubscribe func())
}

// Envelope is what goes on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Type       types.FrameType `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type Relay struct {
	pub    Publisher
	prefix string
	log    *zap.Logger
	now    func() time.Time

	published atomic.Int64
	failed    atomic.Int64
}

func New(pub Publisher, prefix string, log *zap.Logger) *Relay {
	if prefix == "" {
		prefix = "siasat.realtime"
	}
	return &Relay{pub: pub, prefix: strings.TrimSuffix(prefix, "."), log: logging.OrNop(log).Named("relay"), now: time.Now}
}

// Subject is prefix.<frame type in lower case>, e.g.
// siasat.realtime.seat_status_update.
func (r *Relay) Subject(t types.FrameType) string {
	return r.prefix + "." + strings.ToLower(string(t))
}

// Forward publishes one frame. Failures are logged and counted; a broken
// relay never blocks realtime delivery.
func (r *Relay) Forward(f types.Frame) {
	if f.Type == "" {
		return
	}
	env := Envelope{ID: uuid.NewString(), Type: f.Type, Payload: f.Payload, ReceivedAt: r.now().UTC()}
	data, err := json.Marshal(env)
	if err != nil {
		r.failed.Inc()
		r.log.Warn("encoding frame failed", zap.String("type", string(f.Type)), zap.Error(err))
		return
	}
	if err := r.pub.Publish(r.Subject(f.Type), data); err != nil {
		r.failed.Inc()
		r.log.Warn("publish failed", zap.String("subject", r.Subject(f.Type)), zap.Error(err))
		return
	}
	r.published.Inc()
}

func (r *Relay) Attach(sub Subscriber) (detach func()) {
	return sub.Subscribe(r.Forward)
}

func (r *Relay) Counts() (published, failed int64) {
	return r.published.Load(), r.failed.Load()
}

// Dial connects to NATS with unlimited reconnects.
func Dial(url string, log *zap.Logger) (*nats.Conn, error) {
	log = logging.OrNop(log).Named("relay")
	nc, err := nats.Connect(url,
		nats.Name("siasat-client"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
