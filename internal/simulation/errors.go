package simulation

import "errors"

var (
	// ErrSessionActive is returned by Start while another session is held.
	ErrSessionActive = errors.New("a simulation is already running")
	// ErrNoSession is returned by control operations when nothing is running.
	ErrNoSession = errors.New("no simulation is running")
	// ErrNotPaused is returned by Resume when the session is not paused.
	ErrNotPaused = errors.New("simulation is not paused")
	// ErrEventNotFound is returned when the target event does not exist.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidTimeScale is returned for a non-positive multiplier or negative delay.
	ErrInvalidTimeScale = errors.New("invalid time scale")
	// ErrLeaseHeld is returned when another process holds the simulation lease.
	ErrLeaseHeld = errors.New("simulation lease is held by another process")
	// ErrEventFinished is returned by Advance once the event is complete.
	ErrEventFinished = errors.New("event simulation already finished")
)
