package playback

import (
	"errors"
	"fmt"
)

// CommandKind identifies a playback command.
type CommandKind int

const (
	CmdTick CommandKind = iota
	CmdSeek
	CmdStep
	CmdStepStart
	CmdStepEnd
	CmdPause
	CmdResume
	CmdTogglePause
)

var commandNames = map[CommandKind]string{
	CmdTick:        "tick",
	CmdSeek:        "seek",
	CmdStep:        "step",
	CmdStepStart:   "start",
	CmdStepEnd:     "end",
	CmdPause:       "pause",
	CmdResume:      "resume",
	CmdTogglePause: "toggle",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one serialized playback event.
type Command struct {
	Kind  CommandKind
	Time  float64 // seek target
	Delta int     // step size
}

func Tick() Command          { return Command{Kind: CmdTick} }
func Seek(t float64) Command { return Command{Kind: CmdSeek, Time: t} }
func Step(delta int) Command { return Command{Kind: CmdStep, Delta: delta} }
func StepStart() Command     { return Command{Kind: CmdStepStart} }
func StepEnd() Command       { return Command{Kind: CmdStepEnd} }
func Pause() Command         { return Command{Kind: CmdPause} }
func Resume() Command        { return Command{Kind: CmdResume} }
func TogglePause() Command   { return Command{Kind: CmdTogglePause} }

// Execute runs one command to completion.
func (c *Controller) Execute(cmd Command) error {
	switch cmd.Kind {
	case CmdTick:
		c.Tick()
	case CmdSeek:
		return c.Seek(cmd.Time)
	case CmdStep:
		c.Step(cmd.Delta)
	case CmdStepStart:
		c.StepToStart()
	case CmdStepEnd:
		c.StepToEnd()
	case CmdPause:
		c.Pause()
	case CmdResume:
		c.Resume()
	case CmdTogglePause:
		c.TogglePause()
	default:
		return fmt.Errorf("playback: unknown command %v", cmd.Kind)
	}
	return nil
}

// Queue is a FIFO of pending commands.
type Queue struct {
	items []Command
}

// Push appends a command.
func (q *Queue) Push(cmd Command) { q.items = append(q.items, cmd) }

// Len returns the number of pending commands.
func (q *Queue) Len() int { return len(q.items) }

// Pop removes and returns the oldest command.
func (q *Queue) Pop() (Command, bool) {
	if len(q.items) == 0 {
		return Command{}, false
	}
	cmd := q.items[0]
	q.items[0] = Command{}
	q.items = q.items[1:]
	return cmd, true
}

// Drain executes every pending command in order. A failing command does not
// stop the ones behind it; all failures are joined.
func (q *Queue) Drain(c *Controller) error {
	var errs []error
	for {
		cmd, ok := q.Pop()
		if !ok {
			break
		}
		if err := c.Execute(cmd); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", cmd.Kind, err))
		}
	}
	return errors.Join(errs...)
}
