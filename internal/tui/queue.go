package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DoyleJ11/siasat-client/internal/engine"
	"github.com/DoyleJ11/siasat-client/internal/queue"
)

// QueueSnapshotMsg carries one runner snapshot into the program.
type QueueSnapshotMsg queue.Snapshot

// queueClosedMsg means the snapshot channel was closed by the runner.
type queueClosedMsg struct{}

// QueueModel renders the waiting room until the runner admits us or the user
// gives up.
type QueueModel struct {
	snaps    <-chan queue.Snapshot
	snap     queue.Snapshot
	seen     bool
	Admitted bool
	Quit     bool
}

func NewQueueModel(snaps <-chan queue.Snapshot) QueueModel {
	return QueueModel{snaps: snaps}
}

func waitForSnapshot(ch <-chan queue.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return queueClosedMsg{}
		}
		return QueueSnapshotMsg(s)
	}
}

func (m QueueModel) Init() tea.Cmd {
	return waitForSnapshot(m.snaps)
}

func (m QueueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.Quit = true
			return m, tea.Quit
		}

	case QueueSnapshotMsg:
		m.snap = queue.Snapshot(msg)
		m.seen = true
		if m.snap.State.Phase == engine.PhaseActive {
			m.Admitted = true
			return m, tea.Quit
		}
		return m, waitForSnapshot(m.snaps)

	case queueClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m QueueModel) View() string {
	var b strings.Builder
	b.WriteString(Title.Render("Registration queue"))
	b.WriteString("\n")

	switch {
	case !m.seen || m.snap.State.Phase == engine.PhaseJoining:
		b.WriteString(Muted.Render("Joining the queue..."))
	case m.snap.State.Phase == engine.PhaseActive:
		b.WriteString(Secondary.Render("You're in. Opening registration."))
	default:
		s := m.snap.State
		body := fmt.Sprintf("Position      %s\nIn front      %d\nActive now    %d\nEstimated     %s",
			Primary.Render(fmt.Sprintf("#%d", s.Position)),
			m.snap.InFront,
			s.ActiveCount,
			Warning.Render(m.snap.Countdown))
		b.WriteString(Box.Render(body))
	}

	if m.snap.LastError != "" {
		b.WriteString("\n")
		b.WriteString(Error.Render(m.snap.LastError))
	}
	b.WriteString(Help.Render("q: leave"))
	return b.String()
}
