package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kinereplay/backend/internal/playback"
)

// ErrPlayerStopped is returned for commands sent to a stopped player.
var ErrPlayerStopped = errors.New("session: player stopped")

type request struct {
	cmd   playback.Command
	reply chan error
}

// Player runs one controller on its own goroutine. Ticks and commands are
// serialized through a single loop, so the controller never sees concurrent
// access.
type Player struct {
	id       string
	ctrl     *playback.Controller
	interval time.Duration
	requests chan request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	onFail   func(reason string)

	mu     sync.RWMutex
	latest playback.Snapshot
	subs   map[chan playback.Snapshot]struct{}
}

func newPlayer(id string, ctrl *playback.Controller, interval time.Duration, onFail func(string)) *Player {
	p := &Player{
		id:       id,
		ctrl:     ctrl,
		interval: interval,
		requests: make(chan request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		onFail:   onFail,
		subs:     make(map[chan playback.Snapshot]struct{}),
	}
	ctrl.SetObserver(p.publish)
	return p
}

// applyFirstFrame applies the controller's first frame before the loop runs.
// Tests replace it to simulate a failing frame.
var applyFirstFrame = func(c *playback.Controller) { c.Refresh() }

// start launches the loop.
func (p *Player) start() {
	go p.run()
}

func (p *Player) run() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Session %s] PANIC recovered in player loop: %v\n", shortID(p.id), r)
			if p.onFail != nil {
				p.onFail(fmt.Sprintf("playback panicked: %v", r))
			}
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.ctrl.Tick()
		case req := <-p.requests:
			err := p.ctrl.Execute(req.cmd)
			if req.cmd.Kind == playback.CmdPause || req.cmd.Kind == playback.CmdResume || req.cmd.Kind == playback.CmdTogglePause {
				p.publish(p.ctrl.Snapshot())
			}
			req.reply <- err
		}
	}
}

// Send executes a command on the loop and waits for it to finish.
func (p *Player) Send(ctx context.Context, cmd playback.Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case p.requests <- req:
	case <-p.done:
		return ErrPlayerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-p.done:
		return ErrPlayerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns a copy of the most recent snapshot.
func (p *Player) Latest() playback.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copySnapshot(p.latest)
}

// Subscribe returns a channel receiving every published snapshot. Slow
// subscribers miss snapshots rather than stall playback.
func (p *Player) Subscribe(buffer int) (<-chan playback.Snapshot, func()) {
	ch := make(chan playback.Snapshot, buffer)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// Done is closed once the loop has exited.
func (p *Player) Done() <-chan struct{} { return p.done }

// Stop ends the loop and waits for it.
func (p *Player) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Player) publish(s playback.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = s
	for ch := range p.subs {
		select {
		case ch <- copySnapshot(s):
		default:
		}
	}
}

func copySnapshot(s playback.Snapshot) playback.Snapshot {
	s.Bodies = append([]playback.BodyPose(nil), s.Bodies...)
	return s
}
