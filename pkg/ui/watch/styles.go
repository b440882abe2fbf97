package watch

import (
	"nonocoop/pkg/event"

	"github.com/charmbracelet/lipgloss"
)

type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	field      lipgloss.Style
	state      lipgloss.Style
	program    lipgloss.Style
	unknown    lipgloss.Style
	status     lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("153")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("31")),
		field: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		state: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("44")),
		program: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("177")),
		unknown: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("233")).
			Padding(0, 1),
	}
}

func (t theme) categoryStyle(c event.Category) lipgloss.Style {
	switch c {
	case event.CategoryFieldControl:
		return t.field
	case event.CategoryStateChange:
		return t.state
	case event.CategoryProgramControl:
		return t.program
	default:
		return t.unknown
	}
}
