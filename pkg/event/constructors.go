package event

import "time"

func field(kind Kind, column, row int) Event {
	return Event{Kind: kind, Column: column, Row: row}
}

func OccupyField(column, row int) Event        { return field(KindOccupyField, column, row) }
func MarkField(column, row int) Event          { return field(KindMarkField, column, row) }
func FieldOccupied(column, row int) Event      { return field(KindFieldOccupied, column, row) }
func FieldUnoccupied(column, row int) Event    { return field(KindFieldUnoccupied, column, row) }
func FieldMarked(column, row int) Event        { return field(KindFieldMarked, column, row) }
func FieldUnmarked(column, row int) Event      { return field(KindFieldUnmarked, column, row) }
func WrongFieldOccupied(column, row int) Event { return field(KindWrongFieldOccupied, column, row) }
func ActiveFieldChanged(column, row int) Event { return field(KindActiveFieldChanged, column, row) }

func CrossOutCaption(orientation Orientation, line, caption int) Event {
	return Event{Kind: KindCrossOutCaption, Orientation: orientation, Line: line, Caption: caption}
}

func SetFailCount(count int) Event {
	return Event{Kind: KindSetFailCount, FailCount: count}
}

func SetTime(elapsed time.Duration) Event {
	return Event{Kind: KindSetTime, Elapsed: elapsed}
}

func TimerElapsed(elapsed time.Duration) Event {
	return Event{Kind: KindTimerElapsed, Elapsed: elapsed}
}

func StateChanged(from, to GameState) Event {
	return Event{Kind: KindStateChanged, OldState: from, NewState: to}
}

func StateChanging(from, to GameState) Event {
	return Event{Kind: KindStateChanging, OldState: from, NewState: to}
}

func QuitProgram() Event { return Event{Kind: KindQuitProgram} }

func NonogramChosen(puzzle string) Event {
	return Event{Kind: KindNonogramChosen, Puzzle: puzzle}
}
