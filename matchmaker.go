package arena

import (
	"math/rand/v2"
	"sort"
	"strings"
)

// Matchmaker picks an arena for a player joining at random. The choice
// balances load approximately; it does not guarantee the least loaded arena.
type Matchmaker struct {
	rng *rand.Rand
}

// NewMatchmaker creates a matchmaker drawing from rng.
func NewMatchmaker(rng *rand.Rand) *Matchmaker {
	return &Matchmaker{rng: rng}
}

// Open reports whether a accepts players through matchmaking: it waits or
// counts down and has room left.
func Open(a *Arena) bool {
	return a.State().Open() && a.Mode().PlayerCount() < a.Mode().MaxPlayers()
}

func headroom(a *Arena) int {
	return a.Mode().MaxPlayers() - a.Mode().PlayerCount()
}

// Pick selects an open arena. It starts from a random open arena and scans
// the rest once, moving to any arena with more headroom and drawing again on
// an exact headroom tie. It fails with ErrNoAvailableArenas when no arena is
// open.
func (m *Matchmaker) Pick(arenas []*Arena) (*Arena, error) {
	open := make([]*Arena, 0, len(arenas))
	for _, a := range arenas {
		if Open(a) {
			open = append(open, a)
		}
	}
	if len(open) == 0 {
		return nil, ErrNoAvailableArenas
	}

	sort.SliceStable(open, func(i, j int) bool {
		ci, cj := open[i].Mode().PlayerCount(), open[j].Mode().PlayerCount()
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(open[i].ID()) < strings.ToLower(open[j].ID())
	})

	candidate := open[m.rng.IntN(len(open))]
	for _, a := range open {
		if a == candidate {
			continue
		}
		switch h, ch := headroom(a), headroom(candidate); {
		case h > ch:
			candidate = a
		case h == ch:
			candidate = open[m.rng.IntN(len(open))]
		}
	}
	return candidate, nil
}
