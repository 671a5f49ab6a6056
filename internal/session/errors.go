package session

import "errors"

var (
	ErrUnknownChallenge    = errors.New("unknown challenge")
	ErrNotFound            = errors.New("session not found")
	ErrFailed              = errors.New("session failed")
	ErrStopped             = errors.New("session stopped")
	ErrReadinessTimeout    = errors.New("session not ready")
	ErrContainerNotRunning = errors.New("container not running")
	ErrImageNotFound       = errors.New("image not found")
	ErrRuntime             = errors.New("runtime call failed")

	errSuperseded = errors.New("session state changed")
)
