package cmd

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"nonocoop/pkg/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const listTimeout = 10 * time.Second

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List announced coop sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
		defer cancel()

		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}

		fab, err := openFabric(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, fab.Close()) }()

		sessions, err := session.NewService(fab, cfg.Player.ID, log)
		if err != nil {
			return err
		}

		return printSessions(cmd.OutOrStdout(), sessions.ListAvailable(ctx))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printSessions(out io.Writer, sessions iter.Seq2[session.Descriptor, error]) error {
	rows := make([][]string, 0)
	for desc, err := range sessions {
		if err != nil {
			return err
		}
		mine := ""
		if desc.Role() == session.RoleInitiating {
			mine = "yes"
		}
		rows = append(rows, []string{desc.SessionID(), desc.PuzzleHash(), desc.Announcer(), mine})
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No coop sessions announced.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SESSION", "PUZZLE", "HOST", "MINE").
		Rows(rows...)
	fmt.Fprintln(out, t.Render())
	return nil
}
