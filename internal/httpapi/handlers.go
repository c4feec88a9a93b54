package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/siasat-client/internal/notify"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unavailable(w http.ResponseWriter, what string) {
	http.Error(w, what+" not running", http.StatusServiceUnavailable)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Status(q QueueSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if q == nil {
			unavailable(w, "queue")
			return
		}
		snap, err := q.View(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func Realtime(rt RealtimeStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt == nil {
			unavailable(w, "realtime")
			return
		}
		writeJSON(w, http.StatusOK, rt.Stats())
	}
}

func ListNotifications(n NotificationSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n == nil {
			unavailable(w, "notifications")
			return
		}
		items := n.List()
		if items == nil {
			items = []notify.Notification{}
		}
		writeJSON(w, http.StatusOK, struct {
			Unread        int                   `json:"unread"`
			Badge         string                `json:"badge"`
			Notifications []notify.Notification `json:"notifications"`
		}{n.Unread(), notify.Badge(n.Unread()), items})
	}
}

func MarkAllRead(n NotificationSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n == nil {
			unavailable(w, "notifications")
			return
		}
		n.MarkAllRead()
		w.WriteHeader(http.StatusNoContent)
	}
}

func DismissNotification(n NotificationSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n == nil {
			unavailable(w, "notifications")
			return
		}
		if !n.Dismiss(chi.URLParam(r, "id")) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
