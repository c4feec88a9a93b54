// Package httpapi is the local status server that runs next to a headless
// queue runner: health, the latest queue snapshot, the notification log,
// realtime connection stats, Prometheus metrics and a WebSocket stream of
// snapshots for local dashboards.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/notify"
	"github.com/DoyleJ11/siasat-client/internal/queue"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
)

type QueueSource interface {
	View(ctx context.Context) (queue.Snapshot, error)
	Watch() (<-chan queue.Snapshot, func())
}

type NotificationSource interface {
	List() []notify.Notification
	Unread() int
	MarkAllRead()
	Dismiss(id string) bool
}

type RealtimeStats interface {
	Stats() realtime.Stats
}

// Deps are optional; a nil source answers 503 on its routes.
type Deps struct {
	Queue         QueueSource
	Notifications NotificationSource
	Realtime      RealtimeStats
	Logger        *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := logging.OrNop(d.Logger).Named("httpapi")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/status", Status(d.Queue))
	r.Get("/realtime", Realtime(d.Realtime))
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", ListNotifications(d.Notifications))
		r.Post("/read", MarkAllRead(d.Notifications))
		r.Delete("/{id}", DismissNotification(d.Notifications))
	})
	r.Get("/ws", Stream(d.Queue, log))
	r.Handle("/metrics", promhttp.Handler())
	return r
}
