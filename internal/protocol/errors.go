package protocol

import "errors"

var (
	ErrEngineClosed     = errors.New("protocol engine is closed")
	ErrRequestCancelled = errors.New("request was cancelled")
	ErrRequestTimedOut  = errors.New("request timed out waiting for a response")
	ErrUnknownRequestID = errors.New("response id does not match any pending request")
	ErrNotOperational   = errors.New("method not allowed before session is operational")
)
