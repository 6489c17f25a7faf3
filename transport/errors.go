package transport

import "errors"

var (
	// ErrNoOpener is returned when a Transport is constructed without a
	// device opener.
	//
	// This indicates a configuration error. An Opener is required in order
	// to reach the serial device on the first Connect.
	ErrNoOpener = errors.New("transport: no device opener configured")

	// ErrNotConnected is returned by the net.Conn adapter when the link is
	// not in the connected state.
	ErrNotConnected = errors.New("transport: not connected")
)
