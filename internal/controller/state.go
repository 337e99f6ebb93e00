package controller

import "time"

// Power is the tri-state power of the controlled outlet.
type Power int8

const (
	PowerUnknown Power = iota
	PowerOff
	PowerOn
)

// PowerOf converts a confirmed outlet state.
func PowerOf(on bool) Power {
	if on {
		return PowerOn
	}
	return PowerOff
}

func (p Power) String() string {
	switch p {
	case PowerOn:
		return "ON"
	case PowerOff:
		return "OFF"
	default:
		return "unknown"
	}
}

// State is the controller's mutable state. Only the supervisor goroutine
// holds the live value; everyone else gets copies.
type State struct {
	MonitoringEnabled    bool
	ManualOverrideActive bool
	ToggleInProgress     bool
	// CommandInFlight is set while an automatic power command is outstanding.
	CommandInFlight bool

	LastKnownPlugState Power

	// AppObserved is false until the first tick of a session has read the
	// process table.
	AppObserved            bool
	LastObservedAppRunning bool

	SessionID     string
	LastCommandAt time.Time
}

// Busy reports whether a power-change command may not start now.
func (s State) Busy() bool {
	return s.ToggleInProgress || s.CommandInFlight
}
