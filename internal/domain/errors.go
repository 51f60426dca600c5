package domain

import "errors"

var (
	// ErrNotRegistered is returned when no background monitor is registered.
	ErrNotRegistered = errors.New("monitor not registered")

	// ErrNoDisplay is returned when no window manager backend is reachable.
	ErrNoDisplay = errors.New("no display available")

	// ErrKeyNotFound is returned when no breach log key has been stored.
	ErrKeyNotFound = errors.New("breach log key not found")

	// ErrKeyCorrupt is returned when a stored key fails validation.
	ErrKeyCorrupt = errors.New("breach log key corrupt")
)
