package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const inboxSize = 1024

// Game owns the simulation goroutine. Every bus event, scheduler task and
// piece of match state is touched only from Run; other goroutines hand work
// in through Post.
type Game struct {
	World      *World
	Handler    *ConnectionHandler
	Matchmaker *Matchmaker

	inbox chan func()
	done  chan struct{}
	once  sync.Once
	tick  uint64
	last  time.Time
}

// NewGame wires the handler and the matchmaker onto w
func NewGame(w *World, verifier IdentityVerifier) *Game {
	g := &Game{
		World: w,
		inbox: make(chan func(), inboxSize),
		done:  make(chan struct{}),
		last:  w.Scheduler.Now(),
	}
	g.Handler = NewConnectionHandler(w, verifier, g.Post)
	g.Matchmaker = NewMatchmaker(w)
	return g
}

// Run drives the simulation until ctx is cancelled
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.World.Config.TickInterval)
	defer ticker.Stop()
	defer g.once.Do(func() { close(g.done) })

	log.Info().Dur("tick", g.World.Config.TickInterval).Msg("simulation started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("ticks", g.tick).Msg("simulation stopped")
			return
		case fn := <-g.inbox:
			fn()
		case now := <-ticker.C:
			g.Step(now)
		}
	}
}

// Step advances the simulation to now: due tasks first, then TICK and the
// movement broadcast
func (g *Game) Step(now time.Time) {
	dt := now.Sub(g.last).Seconds()
	if dt < 0 {
		dt = 0
	}
	g.last = now
	g.World.Scheduler.Advance(now)
	g.tick++
	bus := g.World.Bus
	_ = bus.CallEvent(EventTick, &TickEvent{N: g.tick, Dt: dt, Now: now})
	_ = bus.CallEvent(EventMovementBroadcast, &TickEvent{N: g.tick, Dt: dt, Now: now})
}

// Post queues fn for the simulation goroutine. It gives up once the game
// stopped.
func (g *Game) Post(fn func()) {
	select {
	case g.inbox <- fn:
	case <-g.done:
	}
}

// Query runs fn on the simulation goroutine and waits for it
func (g *Game) Query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case g.inbox <- func() { fn(); close(finished) }:
	case <-g.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-g.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConnectionOpened is called by the transport for a new connection
func (g *Game) OnConnectionOpened(conn Connection) {
	g.Post(func() {
		_ = g.World.Bus.CallEvent(EventConnectionOpened, &ConnectionOpened{Conn: conn})
	})
}

// OnMessage is called by the transport for every binary message
func (g *Game) OnMessage(conn Connection, data []byte) {
	g.Post(func() {
		_ = g.World.Bus.CallEvent(EventConnectionMessage, &ConnectionMessage{Conn: conn, Data: data})
	})
}

// OnConnectionClosed is called by the transport once per connection
func (g *Game) OnConnectionClosed(conn Connection, code int, reason string) {
	g.Post(func() {
		_ = g.World.Bus.CallEvent(EventConnectionClosed, &ConnectionClosed{Conn: conn, Code: code, Reason: reason})
	})
}
