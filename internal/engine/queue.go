package engine

import (
	"fmt"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type QueuePhase string

const (
	PhaseJoining QueuePhase = "joining"
	PhaseWaiting QueuePhase = "waiting"
	PhaseActive  QueuePhase = "active"
)

type QueueState struct {
	Phase            QueuePhase `json:"phase"`
	Position         int        `json:"position"`
	ActiveCount      int        `json:"activeCount"`
	EstimatedMinutes int        `json:"estimatedWaitMinutes"`
	// Countdown is the locally ticking estimate. Baseline is the last value
	// the server gave us; Countdown never exceeds it.
	Countdown int `json:"countdownSeconds"`
	Baseline  int `json:"baselineSeconds"`
	// Version bumps on every authoritative update.
	Version int `json:"version"`
}

func NewQueueState() QueueState {
	return QueueState{Phase: PhaseJoining}
}

// StudentsInFront counts active users plus everyone waiting ahead of us.
func (s QueueState) StudentsInFront() int {
	active := max(0, s.ActiveCount)
	return active + max(0, s.Position-1)
}

type QueueEventType string

const (
	EvtJoined QueueEventType = "Joined"
	EvtPolled QueueEventType = "Polled"
	EvtPushed QueueEventType = "Pushed"
	EvtTicked QueueEventType = "Ticked"
)

type QueueEvent struct {
	Type   QueueEventType
	Join   types.JoinResult
	Status types.QueueStatus
	Frame  types.Frame
}

func Joined(r types.JoinResult) QueueEvent  { return QueueEvent{Type: EvtJoined, Join: r} }
func Polled(s types.QueueStatus) QueueEvent { return QueueEvent{Type: EvtPolled, Status: s} }
func PushedQueue(f types.Frame) QueueEvent  { return QueueEvent{Type: EvtPushed, Frame: f} }
func Ticked() QueueEvent                    { return QueueEvent{Type: EvtTicked} }

type QueueEffect string

const (
	// EffRedirect: promoted, move on to workshop selection.
	EffRedirect QueueEffect = "Redirect"
	// EffRejoin: the server forgot us, join again.
	EffRejoin QueueEffect = "Rejoin"
	// EffCheckStatus: poll now instead of waiting for the next tick.
	EffCheckStatus QueueEffect = "CheckStatus"
)

/*
	Joined(pos 0)            -> ACTIVE + Redirect (waiting view is skipped)
	Joined(pos n)            -> WAITING(n)
	Joined(no position)      -> stays JOINING, ErrNoPosition
	Polled(!inQueue)         -> Rejoin
	Polled(ACTIVE | pos 0)   -> ACTIVE + Redirect
	Polled(WAITING n)        -> WAITING(n)
	Pushed(QUEUE_POSITION)   -> WAITING(n), or ACTIVE if n is 0
	Pushed(ACCESS_GRANTED)   -> ACTIVE + Redirect
	Pushed(AUTO_PROMOTE)     -> ACTIVE + Redirect
	Pushed(WS_CONNECTED)     -> CheckStatus
	Ticked                   -> countdown-1, floor 0, never a transition
*/

func ApplyQueue(s QueueState, ev QueueEvent) ([]QueueEffect, QueueState, error) {
	if s.Phase == PhaseActive {
		return nil, s, ErrQueueFinished
	}

	switch ev.Type {
	case EvtJoined:
		if !ev.Join.Success {
			return nil, s, ErrJoinRejected
		}
		if ev.Join.QueuePosition == nil {
			return nil, s, ErrNoPosition
		}
		pos := *ev.Join.QueuePosition
		if pos == 0 {
			return promote(s)
		}
		return nil, waiting(s, pos, ev.Join.EstimatedWaitMinutes, ev.Join.WaitSeconds(), 0), nil

	case EvtPolled:
		st := ev.Status
		if !st.InQueue {
			return []QueueEffect{EffRejoin}, s, nil
		}
		if st.Promoted() {
			return promote(s)
		}
		return nil, waiting(s, st.Position, st.EstimatedWaitMinutes, st.WaitSeconds(), st.ActiveCount), nil

	case EvtPushed:
		return applyQueueFrame(s, ev.Frame)

	case EvtTicked:
		next := s
		next.Countdown = max(0, s.Countdown-1)
		return nil, next, nil

	default:
		return nil, s, ErrUnsupportedEvent
	}
}

func applyQueueFrame(s QueueState, f types.Frame) ([]QueueEffect, QueueState, error) {
	switch {
	case f.IsPromotion():
		return promote(s)

	case f.Type == types.FrameQueuePosition:
		var p types.QueuePositionPayload
		if err := f.Decode(&p); err != nil {
			return nil, s, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if p.Position == 0 {
			return promote(s)
		}
		return nil, waiting(s, p.Position, p.EstimatedWaitMinutes, p.WaitSeconds(), p.ActiveCount), nil

	case f.Type == types.FrameConnected:
		return []QueueEffect{EffCheckStatus}, s, nil
	}
	// Frames for other consumers (seats, notifications) share the socket.
	return nil, s, nil
}

func promote(s QueueState) ([]QueueEffect, QueueState, error) {
	next := s
	next.Phase = PhaseActive
	next.Position = 0
	next.Countdown = 0
	next.Version++
	return []QueueEffect{EffRedirect}, next, nil
}

func waiting(s QueueState, pos, minutes, secs, active int) QueueState {
	next := s
	next.Phase = PhaseWaiting
	next.Position = pos
	next.EstimatedMinutes = minutes
	next.ActiveCount = active
	next.Baseline = max(0, secs)
	next.Countdown = next.Baseline
	next.Version++
	return next
}
