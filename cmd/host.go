package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nonocoop/pkg/session"

	"github.com/spf13/cobra"
)

var (
	hostPuzzle     string
	hostPuzzleFile string
	hostTUI        bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Announce a coop session and play as its host",
	Long:  "Announces a session for one puzzle on the configured fabric, relays outcomes to joined players and applies their moves.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		puzzleHash, err := resolvePuzzleHash(hostPuzzle, hostPuzzleFile)
		if err != nil {
			return err
		}

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

		desc, err := svc.Host(ctx, puzzleHash)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Hosting session %s for puzzle %s\n", desc.SessionID(), desc.PuzzleHash())
		if err := playSession(ctx, svc, desc, hostTUI, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().StringVar(&hostPuzzle, "puzzle", "", "puzzle hash to announce")
	hostCmd.Flags().StringVar(&hostPuzzleFile, "puzzle-file", "", "puzzle file whose content hash is announced")
	hostCmd.Flags().BoolVar(&hostTUI, "tui", false, "show a live event feed instead of the console")
	hostCmd.MarkFlagsMutuallyExclusive("puzzle", "puzzle-file")
	hostCmd.MarkFlagsOneRequired("puzzle", "puzzle-file")
}

func resolvePuzzleHash(hash string, path string) (string, error) {
	if value := strings.TrimSpace(hash); value != "" {
		return value, nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("either --puzzle or --puzzle-file is required")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read puzzle file: %w", err)
	}
	return session.PuzzleHash(content), nil
}
