package controller

// State represents the lifecycle state of a controller
type State string

const (
	// StateNew represents a controller that has not been installed yet,
	// or whose last install attempt failed
	StateNew State = "new"
	// StateInstalling represents a controller precaching its manifest
	StateInstalling State = "installing"
	// StateIdle represents an installed controller waiting for activation
	StateIdle State = "idle"
	// StateActivating represents a controller removing stale stores
	StateActivating State = "activating"
	// StateActive represents a controller that routes every fetch
	StateActive State = "active"
	// StateRedundant represents a controller that has been shut down
	StateRedundant State = "redundant"
)
