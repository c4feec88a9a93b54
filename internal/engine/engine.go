// Package engine holds the pure client state machines: the waiting queue and
// the seat picker. Both follow the same shape, Apply(state, event) returning
// the side effects the caller must perform, the next state, and an error when
// the event is rejected. Nothing in here does I/O or reads the clock.
package engine

import (
	"errors"
	"fmt"
)

var ErrQueueFinished = errors.New("queue already finished")
var ErrJoinRejected = errors.New("join rejected")
var ErrNoPosition = errors.New("join answered without a queue position")
var ErrBadFrame = errors.New("malformed realtime frame")
var ErrReadOnly = errors.New("seat map is read-only")
var ErrUnknownSeat = errors.New("unknown seat")
var ErrSeatUnavailable = errors.New("seat not available")
var ErrUnsupportedEvent = errors.New("unsupported event")

// FormatCountdown renders seconds as MM:SS, or H:MM:SS from one hour up.
// Negative input renders as zero.
func FormatCountdown(secs int) string {
	h, m, s := Clock(secs)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Clock splits seconds into hours, minutes and seconds.
func Clock(secs int) (h, m, s int) {
	if secs < 0 {
		secs = 0
	}
	return secs / 3600, (secs % 3600) / 60, secs % 60
}
