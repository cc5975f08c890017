package arena

import (
	"fmt"
	"net"
	"strconv"
)

// LobbyTransfer sends players leaving an arena to a lobby server behind a
// proxy instead of the local default spawn. A nil *LobbyTransfer is
// disabled.
type LobbyTransfer struct {
	addr string
}

// NewLobbyTransfer validates addr, which must be host:port.
func NewLobbyTransfer(addr string) (*LobbyTransfer, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("lobby address %q: %w", addr, err)
	}
	if host == "" {
		return nil, fmt.Errorf("lobby address %q: missing host", addr)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return nil, fmt.Errorf("lobby address %q: invalid port", addr)
	}
	return &LobbyTransfer{addr: addr}, nil
}

// Enabled reports whether transfers are configured.
func (t *LobbyTransfer) Enabled() bool {
	return t != nil && t.addr != ""
}

// Address returns the lobby server address.
func (t *LobbyTransfer) Address() string {
	if t == nil {
		return ""
	}
	return t.addr
}

// Send transfers p to the lobby server.
func (t *LobbyTransfer) Send(p Player) error {
	if !t.Enabled() {
		return ErrTransferDisabled
	}
	if err := p.Transfer(t.addr); err != nil {
		return fmt.Errorf("transfer %s to %s: %w", p.Name(), t.addr, err)
	}
	return nil
}
