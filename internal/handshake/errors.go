package handshake

import "errors"

var (
	ErrAlreadyInitializing = errors.New("session is already initializing or initialized")
	ErrNotInitializing     = errors.New("initialized notification received before initialize request")
	ErrUnsupportedVersion  = errors.New("no mutually supported protocol version")
	ErrMethodNotAllowed    = errors.New("method not allowed before session is operational")
)
