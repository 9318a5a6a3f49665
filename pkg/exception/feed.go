package exception

import "errors"

// Feed errors
var (
	ErrUnsupportedExchange = errors.New("feed: unsupported exchange")
	ErrFeedNotConnected    = errors.New("feed: not connected")
	ErrFeedConnect         = errors.New("feed: connect failed")
	ErrAuthNotSupported    = errors.New("feed: authenticated feeds not supported")
)
