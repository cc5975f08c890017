package arena

// Broadcast sends a chat message to every online member.
func (a *Arena) Broadcast(msg string) {
	a.each(func(p Player) { p.Message(msg) })
}

// BroadcastPopup shows a popup to every online member.
func (a *Arena) BroadcastPopup(msg string) {
	a.each(func(p Player) { p.Popup(msg) })
}

// BroadcastTip shows a tip to every online member.
func (a *Arena) BroadcastTip(msg string) {
	a.each(func(p Player) { p.Tip(msg) })
}

// BroadcastTitle shows a title and subtitle to every online member.
func (a *Arena) BroadcastTitle(title, subtitle string) {
	a.each(func(p Player) { p.Title(title, subtitle) })
}

// BroadcastActionBar shows an action bar message to every online member.
func (a *Arena) BroadcastActionBar(msg string) {
	a.each(func(p Player) { p.ActionBar(msg) })
}

func (a *Arena) each(fn func(p Player)) {
	for _, s := range a.mode.Players() {
		if p := s.Player(); p.Online() {
			fn(p)
		}
	}
}
