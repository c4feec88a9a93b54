package tui

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor   = lipgloss.Color("#A78BFA")
	SecondaryColor = lipgloss.Color("#10B981")
	WarningColor   = lipgloss.Color("#F59E0B")
	ErrorColor     = lipgloss.Color("#F87171")
	MutedColor     = lipgloss.Color("#9CA3AF")
	BorderColor    = lipgloss.Color("#6B7280")

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2)

	Help = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	// Seat cells. Cursor wraps whichever of these applies.
	SeatAvailable = lipgloss.NewStyle().Foreground(SecondaryColor)
	SeatTaken     = lipgloss.NewStyle().Foreground(MutedColor)
	SeatMine      = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	SeatCursor    = lipgloss.NewStyle().Reverse(true)
)
