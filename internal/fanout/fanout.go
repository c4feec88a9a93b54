// Package fanout is the watcher set used by the actor loops. It is not
// safe for concurrent use; the owning goroutine is the only caller.
package fanout

import "go.uber.org/zap"

type Set[T any] struct {
	subs map[int]chan T
	log  *zap.Logger
}

func New[T any](log *zap.Logger) *Set[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Set[T]{subs: make(map[int]chan T), log: log}
}

// Add registers ch and sends it current straight away.
func (s *Set[T]) Add(id int, ch chan T, current T) {
	s.subs[id] = ch
	select {
	case ch <- current:
	default:
	}
}

func (s *Set[T]) Remove(id int) {
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Set[T]) Len() int { return len(s.subs) }

// Broadcast never blocks. A watcher whose buffer is full is dropped and its
// channel closed.
func (s *Set[T]) Broadcast(v T) {
	for id, ch := range s.subs {
		select {
		case ch <- v:
		default:
			s.log.Debug("dropping slow watcher", zap.Int("watcher", id))
			close(ch)
			delete(s.subs, id)
		}
	}
}

// Close offers last to everyone that has room, then closes all channels.
func (s *Set[T]) Close(last T) {
	for id, ch := range s.subs {
		select {
		case ch <- last:
		default:
		}
		close(ch)
		delete(s.subs, id)
	}
}
