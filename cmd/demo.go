package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"nonocoop/pkg/config"
	"nonocoop/pkg/event"
	"nonocoop/pkg/fabric/memory"
	"nonocoop/pkg/logger"
	"nonocoop/pkg/node"
	"nonocoop/pkg/session"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	demoPuzzle      = "3x3 plus"
	demoMoveTimeout = 5 * time.Second
)

type cell struct{ column, row int }

// demoSolution is the plus sign on a 3x3 grid.
var demoSolution = []cell{{1, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}}

// demoMoves is what the guest plays, one wrong guess included.
var demoMoves = []cell{{1, 0}, {0, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Play a scripted coop round between two in-process players",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := loadRuntime()
		if err != nil {
			return err
		}
		return runDemo(cmd.Context(), cmd.OutOrStdout(), log)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// demoEngine plays the host's game logic: it judges occupy requests against
// the solution and reports when the puzzle is complete.
type demoEngine struct {
	emit     func(event.Event) bool
	solution map[cell]bool
	occupied map[cell]bool
	fails    int
	solved   bool
}

func newDemoEngine(emit func(event.Event) bool, solution []cell) *demoEngine {
	e := &demoEngine{
		emit:     emit,
		solution: make(map[cell]bool, len(solution)),
		occupied: make(map[cell]bool, len(solution)),
	}
	for _, c := range solution {
		e.solution[c] = true
	}
	return e
}

// listen runs on the host's dispatch goroutine.
func (e *demoEngine) listen(ev event.Event) {
	if ev.Kind != event.KindOccupyField || e.solved {
		return
	}

	c := cell{ev.Column, ev.Row}
	if !e.solution[c] {
		e.fails++
		e.emit(event.WrongFieldOccupied(c.column, c.row))
		e.emit(event.SetFailCount(e.fails))
		return
	}
	if e.occupied[c] {
		return
	}

	e.occupied[c] = true
	e.emit(event.FieldOccupied(c.column, c.row))
	if len(e.occupied) == len(e.solution) {
		e.solved = true
		e.emit(event.StateChanged(event.StateRunning, event.StateSolved))
	}
}

func demoConfig(playerID string) *config.Config {
	cfg := config.Default()
	cfg.Player.ID = playerID
	cfg.Fabric.Driver = config.DriverMemory
	cfg.Node.Port = 0
	return cfg
}

// runDemo hosts a session, joins it from a second player on the same memory
// hub and plays demoMoves as the guest. Everything the guest sees is written
// to out.
func runDemo(ctx context.Context, out io.Writer, log *slog.Logger) (err error) {
	if log == nil {
		log = logger.Discard()
	}

	hub := memory.NewHub()
	host, err := node.NewService(demoConfig("host"), hub.Member("host"), logger.ForPlayer(log, "host"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, host.Close()) }()

	guest, err := node.NewService(demoConfig("guest"), hub.Member("guest"), logger.ForPlayer(log, "guest"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, guest.Close()) }()

	engine := newDemoEngine(host.Bus().Emit, demoSolution)
	host.Bus().AddListener(engine.listen)

	hosted, err := host.Host(ctx, session.PuzzleHash([]byte(demoPuzzle)))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "host announced %s\n", hosted)

	joined, err := guest.Join(ctx, hosted.SessionID())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "guest joined %s\n", joined)

	outcomes := make(chan event.Event, len(demoMoves))
	solved := make(chan struct{})
	var solvedOnce sync.Once
	guest.Bus().AddListener(func(ev event.Event) {
		fmt.Fprintf(out, "guest « %s\n", ev)
		switch ev.Kind {
		case event.KindFieldOccupied, event.KindWrongFieldOccupied:
			select {
			case outcomes <- ev:
			default:
			}
		case event.KindStateChanged:
			if ev.NewState == event.StateSolved {
				solvedOnce.Do(func() { close(solved) })
			}
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return host.Run(gctx) })
	g.Go(func() error { return guest.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return playDemoMoves(gctx, guest.Bus().Emit, outcomes, solved)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(out, "demo finished")
	return nil
}

func playDemoMoves(ctx context.Context, emit func(event.Event) bool, outcomes <-chan event.Event, solved <-chan struct{}) error {
	for _, move := range demoMoves {
		if !emit(event.OccupyField(move.column, move.row)) {
			return errors.New("guest bus closed")
		}
		if err := awaitDemo(ctx, outcomes); err != nil {
			return fmt.Errorf("move (%d,%d): %w", move.column, move.row, err)
		}
	}

	select {
	case <-solved:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(demoMoveTimeout):
		return errors.New("puzzle never reported solved")
	}

	emit(event.QuitProgram())
	return nil
}

func awaitDemo(ctx context.Context, outcomes <-chan event.Event) error {
	select {
	case <-outcomes:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(demoMoveTimeout):
		return errors.New("no outcome from host")
	}
}
