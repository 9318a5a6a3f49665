package exception

import "errors"

// Server errors
var (
	ErrAlreadyRunning  = errors.New("server: already running")
	ErrBind            = errors.New("server: bind failed")
	ErrUnknownSymbol   = errors.New("server: unknown symbol")
	ErrSymbolTableFull = errors.New("server: symbol table full")
	ErrInvalidArgument = errors.New("invalid argument")
)
