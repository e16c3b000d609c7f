package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/kinereplay/backend/internal/render"
	"github.com/kinereplay/backend/internal/render/term"
)

const (
	smallStep = 1
	largeStep = 10
	seekStep  = 1.0 // seconds
)

// player drives a controller from a terminal. Ticks and key presses are
// handled on one goroutine.
type player struct {
	screen   tcell.Screen
	renderer *term.Renderer
	ctrl     *playback.Controller
	queue    playback.Queue
	message  string

	// shown is the frame on screen. Tick advances the controller past it.
	shownIndex int
	shownTime  float64
}

// newPlayer attaches a player to an initialised screen.
func newPlayer(screen tcell.Screen, ctrl *playback.Controller) *player {
	screen.HideCursor()
	p := &player{
		screen:   screen,
		renderer: term.New(screen),
		ctrl:     ctrl,
	}
	ctrl.SetObserver(func(snap playback.Snapshot) {
		p.shownIndex, p.shownTime = snap.Index, snap.Time
		p.draw()
	})
	return p
}

func runPlayer(ctrl *playback.Controller, interval time.Duration) (err error) {
	screen, err := tcell.NewScreen()
	if err == nil {
		err = screen.Init()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	p := newPlayer(screen, ctrl)
	defer func() {
		p.screen.Fini()
		// A resolver failure panics inside the controller; report it after
		// the terminal is restored.
		if r := recover(); r != nil {
			err = fmt.Errorf("playback stopped: %v", r)
		}
	}()

	p.ctrl.Refresh()
	p.run(interval)
	return nil
}

func (p *player) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := p.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !p.handleEvent(ev) {
				return
			}
			if err := p.queue.Drain(p.ctrl); err != nil {
				p.message = err.Error()
			}
			p.draw()

		case <-ticker.C:
			p.ctrl.Tick()
		}
	}
}

// handleEvent turns a terminal event into queued commands. It returns false
// when the player should exit.
func (p *player) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		p.message = ""
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			p.queue.Push(playback.Step(-smallStep))
		case tcell.KeyRight:
			p.queue.Push(playback.Step(smallStep))
		case tcell.KeyDown:
			p.queue.Push(playback.Step(-largeStep))
		case tcell.KeyUp:
			p.queue.Push(playback.Step(largeStep))
		case tcell.KeyHome:
			p.queue.Push(playback.StepStart())
		case tcell.KeyEnd:
			p.queue.Push(playback.StepEnd())
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q', 'Q':
				return false
			case ' ':
				p.queue.Push(playback.TogglePause())
			case '[':
				p.queue.Push(playback.Seek(p.shownTime - seekStep))
			case ']':
				p.queue.Push(playback.Seek(p.shownTime + seekStep))
			}
		}

	case *tcell.EventResize:
		p.screen.Sync()
	}
	return true
}

func (p *player) status() string {
	status := render.Status(p.shownTime, p.shownIndex, p.ctrl.Len(), p.ctrl.State() == playback.Paused)
	if p.message != "" {
		status += "  " + p.message
	}
	return status
}

func (p *player) draw() {
	render.DrawScene(p.renderer, p.ctrl.Scene(), p.status())
}
