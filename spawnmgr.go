package spawnmgr

import "time"

// Spawn server defaults
const (
	// DefaultEnvironment is the application environment label passed to the spawn server
	DefaultEnvironment = "production"

	// DefaultEnvironmentVariable is the variable the environment label is exported as
	DefaultEnvironmentVariable = "RAILS_ENV"

	// DefaultInterpreter is the command used to run the spawn server program
	DefaultInterpreter = "ruby"

	// DefaultShutdownTimeout is how long teardown waits for the spawn server
	// to exit after its channel is closed before killing it
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultWatchDebounce is the default debounce time for spawn server program changes
	DefaultWatchDebounce = 25 * time.Millisecond
)

// Protocol constants
const (
	// SpawnCommand is the command name of a spawn request. It carries three
	// fields: application root, user and group.
	SpawnCommand = "spawn_application"
)

// File modes
const (
	// LogFileMode is the mode used when the log target has to be created
	LogFileMode = 0o644

	// PIDFileMode is the mode of the spawn server pid file
	PIDFileMode = 0o644
)
