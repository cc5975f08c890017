package arena

// Worlds is the host's world manager. Load and Unload are called on the
// engine loop and must not block on the loop themselves.
type Worlds interface {
	// Loaded reports whether the named world is loaded.
	Loaded(name string) bool
	// Load loads the named world from Dir.
	Load(name string) error
	// Unload saves and closes the named world. Players still inside it are
	// moved to the default world first.
	Unload(name string) error
	// DefaultSpawn is where players go when they leave an arena.
	DefaultSpawn() Location
	// Dir returns the directory worlds are stored in.
	Dir() string
}
