// Package watch is a live terminal feed of a node's local bus with a move
// prompt underneath.
package watch

import (
	"context"
	"errors"
	"fmt"

	"nonocoop/pkg/event"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrQuit returned from a SubmitFunc closes the feed.
var ErrQuit = errors.New("quit")

// SubmitFunc handles one line typed at the move prompt.
type SubmitFunc func(line string) error

// StatusFunc reports the bridge state shown in the header.
type StatusFunc func() string

// Info is the static session header.
type Info struct {
	Player    string
	SessionID string
	Role      string
}

// Run shows events until the user quits, ctx is done or the feed closes.
func Run(ctx context.Context, events <-chan event.Event, submit SubmitFunc, info Info, status StatusFunc) error {
	m := newModel(events, submit, info, status)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Println(renderGoodbyeBanner(info))
	return nil
}

func renderGoodbyeBanner(info Info) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("Left coop session " + displayOrNA(info.SessionID))
}
