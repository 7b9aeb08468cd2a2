package pusher

import "errors"

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("pusher: client closed")

	// ErrUnauthorized is returned when a private or presence channel cannot
	// be authorized.
	ErrUnauthorized = errors.New("pusher: channel authorization failed")

	// ErrHandshake is returned when the server does not establish the
	// connection.
	ErrHandshake = errors.New("pusher: connection not established")
)
