package link

import "errors"

var (
	// ErrEndOfChain is emitted when the last link in a chain calls forward.
	ErrEndOfChain = errors.New("link: forward called past the end of the chain")
)
