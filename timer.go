package arena

// Timer holds the countdown, match and restart counters of an arena, in
// seconds. The configured values are kept so counters can be reloaded.
type Timer struct {
	initialCountdown  int
	initialArena      int
	initialRestarting int

	countdown  int
	arena      int
	restarting int
}

// NewTimer creates a timer loaded with the given values.
func NewTimer(countdown, arena, restarting int) *Timer {
	t := &Timer{
		initialCountdown:  countdown,
		initialArena:      arena,
		initialRestarting: restarting,
	}
	t.Reload()
	return t
}

// Countdown returns the seconds left before the match starts.
func (t *Timer) Countdown() int { return t.countdown }

// ArenaTime returns the seconds left in the match.
func (t *Timer) ArenaTime() int { return t.arena }

// Restarting returns the seconds left before the world is reset.
func (t *Timer) Restarting() int { return t.restarting }

// Reload restores every counter to its configured value.
func (t *Timer) Reload() {
	t.countdown = t.initialCountdown
	t.arena = t.initialArena
	t.restarting = t.initialRestarting
}

// ResetCountdown restores only the countdown.
func (t *Timer) ResetCountdown() {
	t.countdown = t.initialCountdown
}

func (t *Timer) tickCountdown()  { t.countdown-- }
func (t *Timer) tickArena()      { t.arena-- }
func (t *Timer) tickRestarting() { t.restarting-- }

// observe reacts to a state transition. A lobby that drops below capacity
// always gets a fresh countdown, and a restored arena starts from scratch.
func (t *Timer) observe(from, to State) {
	switch {
	case from == Countdown && to == Waiting:
		t.ResetCountdown()
	case from == Resetting && to == Waiting:
		t.Reload()
	}
}
