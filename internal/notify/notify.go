// Package notify turns realtime frames into the user's notification log:
// newest first, capped, filtered by role and kept in the session store so
// the next command sees the same list.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/internal/session"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

const MaxEntries = 50

type Notification struct {
	ID    string          `json:"id"`
	Type  types.FrameType `json:"type"`
	Title string          `json:"title"`
	Body  string          `json:"body"`
	At    time.Time       `json:"ts"`
	Read  bool            `json:"read"`
}

var (
	mentorTypes = map[types.FrameType]bool{
		types.FrameWorkshopCreated:      true,
		types.FrameQuotaUpdated:         true,
		types.FrameApprovalRequest:      true,
		types.FramePasswordResetRequest: true,
		types.FrameAISuggestionReady:    true,
	}
	studentTypes = map[types.FrameType]bool{
		types.FrameWorkshopCreated: true,
		types.FrameQuotaUpdated:    true,
	}
)

// Allowed reports whether role sees frames of type t.
func Allowed(role types.Role, t types.FrameType) bool {
	if role == types.RoleMentor {
		return mentorTypes[t]
	}
	return studentTypes[t]
}

type Subscriber interface {
	Subscribe(fn realtime.Listener) (unsubscribe func())
}

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Log is safe for concurrent use. Frames arrive on the realtime goroutine
// while commands read and mutate the list.
type Log struct {
	role  types.Role
	store session.Store
	log   *zap.Logger
	now   func() time.Time

	mu    sync.Mutex
	items []Notification
}

// Open loads whatever the store holds for this session. A corrupt entry is
// logged and replaced with an empty list.
func Open(ctx context.Context, store session.Store, role types.Role, opts Options) (*Log, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Log{role: role, store: store, log: logging.OrNop(opts.Logger).Named("notify"), now: opts.Now}
	b, err := store.Get(ctx, session.KeyNotifications)
	switch {
	case errors.Is(err, session.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load notifications: %w", err)
	default:
		if err := json.Unmarshal(b, &l.items); err != nil {
			l.log.Warn("discarding unreadable notifications", zap.Error(err))
			l.items = nil
		}
	}
	return l, nil
}

// Attach feeds realtime frames into the log until the returned func runs.
func (l *Log) Attach(sub Subscriber) (detach func()) {
	return sub.Subscribe(func(f types.Frame) { l.Handle(f) })
}

// Handle records f if its type is one the role cares about. It reports
// whether anything was added.
func (l *Log) Handle(f types.Frame) bool {
	if !Allowed(l.role, f.Type) {
		return false
	}
	title, body, ok := Format(f)
	if !ok {
		return false
	}
	n := Notification{
		ID:    uuid.NewString(),
		Type:  f.Type,
		Title: title,
		Body:  body,
		At:    l.now(),
	}
	l.mu.Lock()
	l.items = append([]Notification{n}, l.items...)
	if len(l.items) > MaxEntries {
		l.items = l.items[:MaxEntries]
	}
	l.mu.Unlock()
	l.persist()
	return true
}

// List returns a copy, newest first.
func (l *Log) List() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification(nil), l.items...)
}

func (l *Log) Unread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, it := range l.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (l *Log) MarkRead(id string) bool {
	return l.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
				return items, true
			}
		}
		return items, false
	})
}

func (l *Log) MarkAllRead() {
	l.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			items[i].Read = true
		}
		return items, true
	})
}

func (l *Log) Dismiss(id string) bool {
	return l.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
}

func (l *Log) Clear() {
	l.update(func([]Notification) ([]Notification, bool) { return nil, true })
}

func (l *Log) update(fn func([]Notification) ([]Notification, bool)) bool {
	l.mu.Lock()
	items, changed := fn(l.items)
	l.items = items
	l.mu.Unlock()
	if changed {
		l.persist()
	}
	return changed
}

func (l *Log) persist() {
	l.mu.Lock()
	b, err := json.Marshal(l.items)
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("encoding notifications failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Set(ctx, session.KeyNotifications, b, 0); err != nil {
		l.log.Warn("saving notifications failed", zap.Error(err))
	}
}
