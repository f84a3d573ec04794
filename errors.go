package udpm

import "errors"

// Sentinel errors returned by the transport's public operations, mapping
// 1:1 onto the status codes this transport's originating protocol
// defines (OK / INVALID / AGAIN).
var (
	// ErrInvalid is returned by Send for an over-long channel name or a
	// payload that would require more than 65535 fragments.
	ErrInvalid = errors.New("udpm: invalid argument")

	// ErrAgain is returned by Recv when no publication arrives before the
	// deadline.
	ErrAgain = errors.New("udpm: timed out waiting for a message")

	// ErrClosed is returned by operations attempted on a closed
	// Transport.
	ErrClosed = errors.New("udpm: transport is closed")
)
