package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"nonocoop/pkg/bus"
	"nonocoop/pkg/event"
	"nonocoop/pkg/ui/watch"
)

const consoleHelp = `moves:    occupy C R · mark C R
outcomes: occupied C R · unoccupied C R · marked C R · unmarked C R · wrong C R · cross row|column L C
state:    fail N · time 90s · elapsed 90s · state [OLD] NEW
program:  start · stop · pause · resume · restart · choose NAME · quit`

var programCommands = map[string]event.Kind{
	"start":   event.KindStartGame,
	"stop":    event.KindStopGame,
	"pause":   event.KindPauseGame,
	"resume":  event.KindResumeGame,
	"restart": event.KindRestartGame,
}

var fieldCommands = map[string]func(column, row int) event.Event{
	"occupy":     event.OccupyField,
	"mark":       event.MarkField,
	"occupied":   event.FieldOccupied,
	"unoccupied": event.FieldUnoccupied,
	"marked":     event.FieldMarked,
	"unmarked":   event.FieldUnmarked,
	"wrong":      event.WrongFieldOccupied,
	"active":     event.ActiveFieldChanged,
}

type emitter interface {
	Emit(ev event.Event) bool
}

// parseCommand turns one console line into a local game event.
func parseCommand(line string) (event.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return event.Event{}, errors.New("empty command")
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	var ev event.Event
	switch {
	case fieldCommands[name] != nil:
		column, row, err := parseCell(args)
		if err != nil {
			return event.Event{}, fmt.Errorf("%s: %w", name, err)
		}
		ev = fieldCommands[name](column, row)
	case programCommands[name] != "":
		if len(args) != 0 {
			return event.Event{}, fmt.Errorf("%s takes no arguments", name)
		}
		ev = event.Event{Kind: programCommands[name]}
	case name == "cross":
		if len(args) != 3 {
			return event.Event{}, errors.New("cross: want row|column LINE CAPTION")
		}
		clue, caption, err := parseCell(args[1:])
		if err != nil {
			return event.Event{}, fmt.Errorf("cross: %w", err)
		}
		ev = event.CrossOutCaption(event.Orientation(strings.ToLower(args[0])), clue, caption)
	case name == "fail":
		if len(args) != 1 {
			return event.Event{}, errors.New("fail: want a count")
		}
		count, err := strconv.Atoi(args[0])
		if err != nil {
			return event.Event{}, fmt.Errorf("fail: %w", err)
		}
		ev = event.SetFailCount(count)
	case name == "time" || name == "elapsed":
		if len(args) != 1 {
			return event.Event{}, fmt.Errorf("%s: want a duration like 90s", name)
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return event.Event{}, fmt.Errorf("%s: %w", name, err)
		}
		ev = event.SetTime(d)
		if name == "elapsed" {
			ev = event.TimerElapsed(d)
		}
	case name == "state":
		from, to := event.StateRunning, event.GameState("")
		switch len(args) {
		case 1:
			to = event.GameState(strings.ToLower(args[0]))
		case 2:
			from = event.GameState(strings.ToLower(args[0]))
			to = event.GameState(strings.ToLower(args[1]))
		default:
			return event.Event{}, errors.New("state: want [OLD] NEW")
		}
		ev = event.StateChanged(from, to)
	case name == "choose":
		if len(args) == 0 {
			return event.Event{}, errors.New("choose: want a puzzle name")
		}
		ev = event.NonogramChosen(strings.Join(args, " "))
	case isExitCommand(name):
		ev = event.QuitProgram()
	default:
		return event.Event{}, fmt.Errorf("unknown command %q", name)
	}

	if err := ev.Validate(); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

func parseCell(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, errors.New("want COLUMN ROW")
	}
	column, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("column: %w", err)
	}
	row, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("row: %w", err)
	}
	return column, row, nil
}

// submitLine emits the event for line. Quit commands also return
// watch.ErrQuit so the front end stops.
func submitLine(b emitter, line string) error {
	ev, err := parseCommand(line)
	if err != nil {
		return err
	}
	if !b.Emit(ev) {
		return errors.New("event bus closed")
	}
	if ev.Kind == event.KindQuitProgram {
		return watch.ErrQuit
	}
	return nil
}

// runConsole reads commands from in and echoes every local bus event to out
// until quit, end of input or ctx is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, b *bus.Bus) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	events, unsubscribe := b.Subscribe(ctx, 128)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			printf("« %s\n", ev)
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	printf("%s\n", consoleHelp)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}

			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case strings.EqualFold(line, "help"):
				printf("%s\n", consoleHelp)
				continue
			}

			err := submitLine(b, line)
			if errors.Is(err, watch.ErrQuit) {
				return nil
			}
			if err != nil {
				printf("! %v\n", err)
			}
		}
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
