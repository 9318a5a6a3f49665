package exception

import "errors"

// Frame errors. Any of these terminates only the offending connection.
var (
	ErrTruncatedHeader  = errors.New("frame: truncated header")
	ErrSizeMismatch     = errors.New("frame: declared size disagrees with frame length")
	ErrUnknownType      = errors.New("frame: unknown message type")
	ErrTruncatedPayload = errors.New("frame: truncated payload")
	ErrFrameTooLarge    = errors.New("frame: declared size exceeds maximum")
)
