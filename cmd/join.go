package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nonocoop/pkg/fabric"

	"github.com/spf13/cobra"
)

var joinTUI bool

var errSessionGone = errors.New("session no longer available")

var joinCmd = &cobra.Command{
	Use:   "join <session-id>",
	Short: "Join an announced coop session",
	Long:  "Joins a session listed by `nonocoop list`. Your moves are sent to the host, which answers with the outcomes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, log, err := startNode(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				log.Warn("Node shutdown incomplete", "error", err)
			}
		}()

		desc, err := svc.Join(ctx, args[0])
		if errors.Is(err, fabric.ErrNotFound) {
			return fmt.Errorf("%w: %s", errSessionGone, args[0])
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Joined session %s for puzzle %s\n", desc.SessionID(), desc.PuzzleHash())
		if err := playSession(ctx, svc, desc, joinTUI, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().BoolVar(&joinTUI, "tui", false, "show a live event feed instead of the console")
}
