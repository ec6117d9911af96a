package server

import "errors"

// Gateway-specific errors
var (
	ErrAlreadyRunning = errors.New("gateway is already running")
	ErrNotRunning     = errors.New("gateway is not running")
	ErrListenerFailed = errors.New("failed to create listener")
)
