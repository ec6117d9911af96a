package broadcast

import "errors"

// Loop lifecycle errors
var (
	ErrAlreadyRunning = errors.New("loop is already running")
	ErrNotRunning     = errors.New("loop is not running")
)
