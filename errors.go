package arena

import (
	"errors"
)

// Kind classifies an engine error.
type Kind uint8

const (
	// KindIO covers persistence and archive failures, and any error the
	// engine did not produce itself.
	KindIO Kind = iota
	// KindValidation covers malformed records, unknown modes and bad input.
	KindValidation
	// KindConflict covers duplicate arenas, memberships and setup sessions.
	KindConflict
	// KindCapacity covers full arenas and teams.
	KindCapacity
	// KindState covers operations the current arena state does not allow.
	KindState
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is an expected engine failure. Every sentinel below is an *Error so
// callers can match with errors.Is and classify with KindOf.
type Error struct {
	Kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.msg
}

var (
	ErrAlreadyLoaded     = newError(KindConflict, "arena already loaded")
	ErrNotLoaded         = newError(KindState, "arena not loaded")
	ErrArenaNotFound     = newError(KindValidation, "arena not found")
	ErrArenaExists       = newError(KindConflict, "arena already exists")
	ErrArenaUnknown      = newError(KindValidation, "arena does not exist")
	ErrArenaLoaded       = newError(KindConflict, "arena is loaded")
	ErrNoArenas          = newError(KindCapacity, "no arenas found")
	ErrNoAvailableArenas = newError(KindCapacity, "no available arenas found")
	ErrNoTeamsAvailable  = newError(KindCapacity, "no teams available")
	ErrTeamExists        = newError(KindConflict, "team already exists")
	ErrUnknownColour     = newError(KindValidation, "unknown team colour")
	ErrAlreadyInArena    = newError(KindConflict, "player already inside an arena")
	ErrArenaFull         = newError(KindCapacity, "arena is full")
	ErrArenaRunning      = newError(KindState, "arena is already running")
	ErrCannotLeaveNow    = newError(KindState, "cannot leave arena in its current state")
	ErrNotInGame         = newError(KindState, "arena is not in game")
	ErrNotInArena        = newError(KindState, "player not inside an arena")
	ErrAlreadyInSetup    = newError(KindConflict, "player already inside a setup")
	ErrArenaInSetup      = newError(KindConflict, "arena is being set up")
	ErrNotInSetup        = newError(KindState, "player not inside a setup")
	ErrNoBackup          = newError(KindValidation, "arena world backup not found")
	ErrBackupPending     = newError(KindConflict, "arena world operation already pending")
	ErrUnknownMode       = newError(KindValidation, "unknown arena mode")
	ErrModeExists        = newError(KindConflict, "arena mode already registered")
	ErrMissingKey        = newError(KindValidation, "arena record is missing a key")
	ErrInvalidRecord     = newError(KindValidation, "invalid arena record")
	ErrTransferDisabled  = newError(KindState, "lobby transfer is not enabled")
	ErrSnapshotRestored  = newError(KindState, "snapshot already restored")
	ErrStateUnavailable  = newError(KindIO, "player state unavailable")
	ErrClosed            = newError(KindState, "engine closed")
)

// KindOf returns the kind of err. Errors that are not engine errors are
// reported as KindIO.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}
