package arena

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// Listener observes arena lifecycle events. Embed NopListener to implement
// only the methods you need.
//
// Usage:
//
//	type Announcer struct {
//	    arena.NopListener
//	}
//
//	func (Announcer) HandleMatchEnd(a *arena.Arena, winners []*arena.Snapshot) {
//	    // ...
//	}
//
//	engine := arena.NewBuilder().
//	    Listener(Announcer{}).
//	    ...
//
// Concurrency:
// Listeners run synchronously on the engine loop, in registration order.
// HandleStateChange runs after the new state is stored and before the next
// tick, so a listener always sees the arena in its new state.
type Listener interface {
	// HandleLoad runs after an arena has been registered as loaded.
	HandleLoad(a *Arena)
	// HandleUnload runs after an arena has been removed from the registry.
	HandleUnload(a *Arena)
	// HandleStateChange runs after every state transition.
	HandleStateChange(a *Arena, from, to State)
	// HandleJoin runs after a player joined and was announced.
	HandleJoin(a *Arena, s *Snapshot)
	// HandleQuit runs after a player left and their snapshot was restored.
	HandleQuit(a *Arena, s *Snapshot, forced bool)
	// HandleTick runs after every arena tick.
	HandleTick(a *Arena)
	// HandleMatchEnd runs when a match ends, before the arena restarts.
	HandleMatchEnd(a *Arena, winners []*Snapshot)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) HandleLoad(*Arena)                      {}
func (NopListener) HandleUnload(*Arena)                    {}
func (NopListener) HandleStateChange(*Arena, State, State) {}
func (NopListener) HandleJoin(*Arena, *Snapshot)           {}
func (NopListener) HandleQuit(*Arena, *Snapshot, bool)     {}
func (NopListener) HandleTick(*Arena)                      {}
func (NopListener) HandleMatchEnd(*Arena, []*Snapshot)     {}

// Compile-time check that NopListener implements Listener.
var _ Listener = NopListener{}

// listeners fans events out to every registered Listener. A panicking
// listener is logged and skipped; it never takes the engine loop down.
type listeners struct {
	log  *zap.Logger
	list []Listener
}

func (l *listeners) each(event string, fn func(Listener)) {
	for _, ln := range l.list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("listener panic",
						zap.String("event", event),
						zap.Any("recovered", r),
						zap.ByteString("stack", debug.Stack()),
					)
				}
			}()
			fn(ln)
		}()
	}
}

func (l *listeners) load(a *Arena) {
	l.each("load", func(ln Listener) { ln.HandleLoad(a) })
}

func (l *listeners) unload(a *Arena) {
	l.each("unload", func(ln Listener) { ln.HandleUnload(a) })
}

func (l *listeners) stateChange(a *Arena, from, to State) {
	l.each("state_change", func(ln Listener) { ln.HandleStateChange(a, from, to) })
}

func (l *listeners) join(a *Arena, s *Snapshot) {
	l.each("join", func(ln Listener) { ln.HandleJoin(a, s) })
}

func (l *listeners) quit(a *Arena, s *Snapshot, forced bool) {
	l.each("quit", func(ln Listener) { ln.HandleQuit(a, s, forced) })
}

func (l *listeners) tick(a *Arena) {
	l.each("tick", func(ln Listener) { ln.HandleTick(a) })
}

func (l *listeners) matchEnd(a *Arena, winners []*Snapshot) {
	l.each("match_end", func(ln Listener) { ln.HandleMatchEnd(a, winners) })
}
