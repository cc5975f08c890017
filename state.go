package arena

// State is the match state of an arena.
// Arenas move through the states in order and wrap back to Waiting once the
// world has been restored:
// Waiting → Countdown → InGame → Restarting → Resetting → Waiting.
type State uint8

const (
	// Waiting accepts players until the mode is full.
	Waiting State = iota

	// Countdown counts down to the match start while the arena stays full.
	Countdown

	// InGame runs the match until the arena timer expires or the match is
	// ended externally.
	InGame

	// Restarting shows results until the restart timer expires.
	Restarting

	// Resetting waits for the world restore to complete.
	Resetting

	stateCount
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Countdown:
		return "countdown"
	case InGame:
		return "ingame"
	case Restarting:
		return "restarting"
	case Resetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Open reports whether players may join through matchmaking in this state.
func (s State) Open() bool {
	return s == Waiting || s == Countdown
}

// Locked reports whether members need force to leave in this state.
func (s State) Locked() bool {
	return s == InGame || s == Restarting
}

// stateTicks holds the per-state tick behaviour, indexed by State.
var stateTicks = [stateCount]func(a *Arena){
	Waiting:    tickWaiting,
	Countdown:  tickCountdown,
	InGame:     tickInGame,
	Restarting: tickRestarting,
	Resetting:  tickResetting,
}

func tickWaiting(a *Arena) {
	m := a.mode
	if m.MaxPlayers() > 0 && m.PlayerCount() >= m.MaxPlayers() {
		a.SetState(Countdown)
	}
}

func tickCountdown(a *Arena) {
	m := a.mode
	if m.PlayerCount() < m.MaxPlayers() {
		a.SetState(Waiting)
		return
	}
	if a.timer.Countdown() < 1 {
		m.DistributeToSpawns(a, a.spawns)
		a.SetState(InGame)
		return
	}
	a.timer.tickCountdown()
}

func tickInGame(a *Arena) {
	if a.timer.ArenaTime() < 1 || a.endRequested || a.mode.PlayerCount() == 0 {
		a.finishMatch()
		a.SetState(Restarting)
		return
	}
	a.timer.tickArena()
}

func tickRestarting(a *Arena) {
	if a.timer.Restarting() < 1 {
		a.SetState(Resetting)
		a.beginReset()
		return
	}
	a.timer.tickRestarting()
}

// tickResetting does nothing; the restore completion moves the arena on.
func tickResetting(*Arena) {}
