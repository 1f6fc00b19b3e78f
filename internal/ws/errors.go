package ws

import "errors"

// Sentinel errors returned by the transport.
var (
	// ErrNotConnected is returned when sending on a transport that has no
	// live connection.
	ErrNotConnected = errors.New("ws: not connected")

	// ErrAlreadyConnected is returned by Connect when a connection is
	// already open. Close the transport before reconnecting.
	ErrAlreadyConnected = errors.New("ws: already connected")

	// ErrHandshakeFailed is returned when the server does not accept the
	// HTTP upgrade.
	ErrHandshakeFailed = errors.New("ws: upgrade handshake failed")
)
