package engine

import (
	"fmt"
	"slices"
	"sort"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// SeatGrid is the client's cached view of one workshop session's seats.
// The server owns the truth; this copy is corrected by pushes and reloads.
type SeatGrid struct {
	SessionID string
	Self      string // current user's id
	ReadOnly  bool
	Seats     []types.Seat
	Selected  string // seat id we believe we hold, "" for none
}

func NewSeatGrid(sessionID, self string, readOnly bool) SeatGrid {
	return SeatGrid{SessionID: sessionID, Self: self, ReadOnly: readOnly}
}

func (g SeatGrid) Seat(id string) (types.Seat, bool) {
	i := g.index(id)
	if i < 0 {
		return types.Seat{}, false
	}
	return g.Seats[i], true
}

func (g SeatGrid) index(id string) int {
	return slices.IndexFunc(g.Seats, func(s types.Seat) bool { return s.ID == id })
}

// Mine reports whether the seat renders as "your selection".
func (g SeatGrid) Mine(s types.Seat) bool {
	if s.ID == g.Selected && g.Selected != "" {
		return true
	}
	return s.Status == types.SeatReserved && g.Self != "" && s.ReservedBy == g.Self
}

func (g SeatGrid) MineCount() int {
	n := 0
	for _, s := range g.Seats {
		if g.Mine(s) {
			n++
		}
	}
	return n
}

// Rows groups seats by row letter, rows sorted alphabetically and seats by
// column.
func (g SeatGrid) Rows() ([]string, map[string][]types.Seat) {
	byRow := make(map[string][]types.Seat)
	for _, s := range g.Seats {
		byRow[s.RowLetter] = append(byRow[s.RowLetter], s)
	}
	rows := make([]string, 0, len(byRow))
	for r, seats := range byRow {
		rows = append(rows, r)
		sort.SliceStable(seats, func(i, j int) bool { return seats[i].ColumnNumber < seats[j].ColumnNumber })
	}
	sort.Strings(rows)
	return rows, byRow
}

type SeatEventType string

const (
	EvtSeatClicked   SeatEventType = "Clicked"
	EvtReserveOK     SeatEventType = "ReserveOK"
	EvtReserveFailed SeatEventType = "ReserveFailed"
	EvtReleaseOK     SeatEventType = "ReleaseOK"
	EvtReleaseFailed SeatEventType = "ReleaseFailed"
	EvtSeatsLoaded   SeatEventType = "Loaded"
	EvtSeatPushed    SeatEventType = "Pushed"
)

type SeatEvent struct {
	Type     SeatEventType
	SeatID   string
	Previous string // seat released on the way to SeatID, if any
	Seats    []types.Seat
	Frame    types.Frame
}

func Clicked(seatID string) SeatEvent { return SeatEvent{Type: EvtSeatClicked, SeatID: seatID} }
func ReserveOK(seatID, prev string) SeatEvent {
	return SeatEvent{Type: EvtReserveOK, SeatID: seatID, Previous: prev}
}
func ReserveFailed(seatID, prev string) SeatEvent {
	return SeatEvent{Type: EvtReserveFailed, SeatID: seatID, Previous: prev}
}
func ReleaseOK(seatID string) SeatEvent     { return SeatEvent{Type: EvtReleaseOK, SeatID: seatID} }
func ReleaseFailed(seatID string) SeatEvent { return SeatEvent{Type: EvtReleaseFailed, SeatID: seatID} }
func Loaded(seats []types.Seat) SeatEvent   { return SeatEvent{Type: EvtSeatsLoaded, Seats: seats} }
func PushedSeat(f types.Frame) SeatEvent    { return SeatEvent{Type: EvtSeatPushed, Frame: f} }

type SeatEffectType string

const (
	EffReserve SeatEffectType = "Reserve"
	EffRelease SeatEffectType = "Release"
	EffReload  SeatEffectType = "Reload"
)

type SeatEffect struct {
	Type   SeatEffectType
	SeatID string
	// Previous is carried on Reserve so the result can free the old seat.
	Previous string
	// BestEffort releases swallow their own failure.
	BestEffort bool
}

/*
	Clicked(selected)   -> Release(selected)
	Clicked(available)  -> [Release(old), best effort] + Reserve(new, prev=old)
	Clicked(other)      -> ErrSeatUnavailable
	ReserveOK           -> new RESERVED(self), old AVAILABLE, selection = new
	ReserveFailed       -> Reload (local copy no longer trusted)
	ReleaseOK           -> seat AVAILABLE, selection cleared
	ReleaseFailed       -> nothing; no resync on this path
	Pushed(SEAT_STATUS_UPDATE)  -> patch exactly one seat
	Pushed(SEATS_REGENERATED)   -> Reload when it names this session
	Loaded              -> replace seats, selection re-derived from the server
*/

func ApplySeats(g SeatGrid, ev SeatEvent) ([]SeatEffect, SeatGrid, error) {
	switch ev.Type {
	case EvtSeatClicked:
		return click(g, ev.SeatID)

	case EvtReserveOK:
		next := g.clone()
		next.set(ev.SeatID, types.SeatReserved, g.Self)
		if ev.Previous != "" && ev.Previous != ev.SeatID {
			next.set(ev.Previous, types.SeatAvailable, "")
		}
		next.Selected = ev.SeatID
		return nil, next, nil

	case EvtReserveFailed:
		return []SeatEffect{{Type: EffReload}}, g, nil

	case EvtReleaseOK:
		next := g.clone()
		next.set(ev.SeatID, types.SeatAvailable, "")
		if next.Selected == ev.SeatID {
			next.Selected = ""
		}
		return nil, next, nil

	case EvtReleaseFailed:
		// TODO: decide whether a failed release should reload like a failed
		// reserve does; today the grid may stay stale until the next push.
		return nil, g, nil

	case EvtSeatsLoaded:
		next := g
		next.Seats = slices.Clone(ev.Seats)
		next.Selected = ""
		for _, s := range next.Seats {
			if s.Status == types.SeatReserved && g.Self != "" && s.ReservedBy == g.Self {
				next.Selected = s.ID
				break
			}
		}
		return nil, next, nil

	case EvtSeatPushed:
		return applySeatFrame(g, ev.Frame)

	default:
		return nil, g, ErrUnsupportedEvent
	}
}

func click(g SeatGrid, id string) ([]SeatEffect, SeatGrid, error) {
	if g.ReadOnly {
		return nil, g, ErrReadOnly
	}
	seat, ok := g.Seat(id)
	if !ok {
		return nil, g, fmt.Errorf("%w: %s", ErrUnknownSeat, id)
	}

	// deselect
	if g.Selected != "" && g.Selected == id {
		return []SeatEffect{{Type: EffRelease, SeatID: id}}, g, nil
	}

	if seat.Status != types.SeatAvailable {
		return nil, g, fmt.Errorf("%w: %s is %s", ErrSeatUnavailable, id, seat.Status)
	}

	var effects []SeatEffect
	if g.Selected != "" {
		effects = append(effects, SeatEffect{Type: EffRelease, SeatID: g.Selected, BestEffort: true})
	}
	effects = append(effects, SeatEffect{Type: EffReserve, SeatID: id, Previous: g.Selected})
	return effects, g, nil
}

func applySeatFrame(g SeatGrid, f types.Frame) ([]SeatEffect, SeatGrid, error) {
	switch f.Type {
	case types.FrameSeatStatusUpdate:
		var p types.SeatStatusPayload
		if err := f.Decode(&p); err != nil {
			return nil, g, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if g.index(p.SeatID) < 0 {
			return nil, g, nil
		}
		by := ""
		if p.ReservedBy != nil {
			by = *p.ReservedBy
		}
		next := g.clone()
		next.set(p.SeatID, p.Status, by)
		if next.Selected == p.SeatID && !(p.Status == types.SeatReserved && by == g.Self) {
			// our hold expired or turned into an enrollment
			next.Selected = ""
		}
		return nil, next, nil

	case types.FrameSeatsRegenerated:
		var p types.SeatsRegeneratedPayload
		if err := f.Decode(&p); err != nil {
			return nil, g, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if p.SessionID != g.SessionID {
			return nil, g, nil
		}
		return []SeatEffect{{Type: EffReload}}, g, nil
	}
	return nil, g, nil
}

func (g SeatGrid) clone() SeatGrid {
	next := g
	next.Seats = slices.Clone(g.Seats)
	return next
}

// set mutates in place; only call on a clone.
func (g *SeatGrid) set(id string, status types.SeatStatus, by string) {
	i := g.index(id)
	if i < 0 {
		return
	}
	g.Seats[i].Status = status
	g.Seats[i].ReservedBy = by
}
