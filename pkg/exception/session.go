package exception

import "errors"

// Session errors
var (
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrNotAuthenticated  = errors.New("session: not authenticated")
	ErrSendFailed        = errors.New("session: send failed")
	ErrSessionClosed     = errors.New("session: closed")
)
