package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/seating"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// requestTimeout bounds one click or release issued from the seat map.
const requestTimeout = 15 * time.Second

type SeatPicker interface {
	Click(ctx context.Context, seatID string) error
	Release(ctx context.Context) error
}

type SeatSnapshotMsg seating.Snapshot

type seatsClosedMsg struct{}

type clickDoneMsg struct{ err error }

type releasedMsg struct{}

// SeatModel is the interactive seat map. Enter toggles the seat under the
// cursor, c confirms the held seat, esc releases it and leaves.
type SeatModel struct {
	picker SeatPicker
	snaps  <-chan seating.Snapshot
	title  string

	grid    engine.SeatGrid
	loaded  bool
	row     int
	col     int
	pending bool
	status  string

	// Confirmed holds the seat id the user settled on, "" when they backed out.
	Confirmed string
}

func NewSeatModel(title string, picker SeatPicker, snaps <-chan seating.Snapshot) SeatModel {
	return SeatModel{picker: picker, snaps: snaps, title: title}
}

func waitForSeats(ch <-chan seating.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return seatsClosedMsg{}
		}
		return SeatSnapshotMsg(s)
	}
}

func (m SeatModel) Init() tea.Cmd {
	return waitForSeats(m.snaps)
}

func (m SeatModel) click(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return clickDoneMsg{err: m.picker.Click(ctx, id)}
	}
}

func (m SeatModel) release() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = m.picker.Release(ctx)
		return releasedMsg{}
	}
}

func (m SeatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case SeatSnapshotMsg:
		m.grid = msg.Grid
		m.loaded = msg.Loaded
		if msg.LastError != "" {
			m.status = msg.LastError
		}
		m.clampCursor()
		return m, waitForSeats(m.snaps)

	case clickDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.status = ClickMessage(msg.err)
		} else {
			m.status = ""
		}
		return m, nil

	case releasedMsg:
		return m, tea.Quit

	case seatsClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m SeatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q":
		m.Confirmed = ""
		return m, m.release()
	case "up", "k":
		m.row--
	case "down", "j":
		m.row++
	case "left", "h":
		m.col--
	case "right", "l":
		m.col++
	case "enter", " ":
		if m.pending {
			return m, nil
		}
		s, ok := m.cursorSeat()
		if !ok {
			return m, nil
		}
		m.pending = true
		m.status = "Saving..."
		return m, m.click(s.ID)
	case "c":
		if m.pending || m.grid.Selected == "" {
			return m, nil
		}
		m.Confirmed = m.grid.Selected
		return m, tea.Quit
	}
	m.clampCursor()
	return m, nil
}

func (m *SeatModel) clampCursor() {
	rows, byRow := m.grid.Rows()
	if len(rows) == 0 {
		m.row, m.col = 0, 0
		return
	}
	m.row = min(max(m.row, 0), len(rows)-1)
	m.col = min(max(m.col, 0), len(byRow[rows[m.row]])-1)
}

func (m SeatModel) cursorSeat() (types.Seat, bool) {
	rows, byRow := m.grid.Rows()
	if m.row >= len(rows) {
		return types.Seat{}, false
	}
	seats := byRow[rows[m.row]]
	if m.col >= len(seats) {
		return types.Seat{}, false
	}
	return seats[m.col], true
}

func (m SeatModel) View() string {
	var b strings.Builder
	b.WriteString(Title.Render(m.title))
	b.WriteString("\n")
	if !m.loaded {
		b.WriteString(Muted.Render("Loading seats..."))
		return b.String()
	}

	rows, byRow := m.grid.Rows()
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, Muted.Render("            FRONT"))
	for ri, r := range rows {
		cells := make([]string, 0, len(byRow[r]))
		for ci, s := range byRow[r] {
			cell := m.seatStyle(s).Render(fmt.Sprintf("%-4s", s.SeatNumber))
			if ri == m.row && ci == m.col {
				cell = SeatCursor.Render(cell)
			}
			cells = append(cells, cell)
		}
		lines = append(lines, Muted.Render(r+" ")+lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(Box.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if sel, ok := m.grid.Seat(m.grid.Selected); ok {
		b.WriteString("Selected: " + SeatMine.Render(sel.SeatNumber))
	} else {
		b.WriteString(Muted.Render("No seat selected"))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(Error.Render(m.status))
	}
	b.WriteString(Help.Render("arrows: move  enter: select  c: confirm  esc: back"))
	return b.String()
}

func (m SeatModel) seatStyle(s types.Seat) lipgloss.Style {
	switch {
	case m.grid.Mine(s):
		return SeatMine
	case s.Status == types.SeatAvailable:
		return SeatAvailable
	default:
		return SeatTaken
	}
}

// ClickMessage is the status line for a failed seat click.
func ClickMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrReadOnly):
		return "Seat selection is read-only here."
	case errors.Is(err, engine.ErrSeatUnavailable):
		return "That seat is taken."
	case errors.Is(err, seating.ErrBusy):
		return "Still saving your last choice."
	}
	return gateway.UserMessage(err)
}
