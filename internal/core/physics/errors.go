package physics

import "errors"

// Engine-specific errors
var (
	ErrInvalidParameter     = errors.New("invalid particle parameter")
	ErrNumericalInstability = errors.New("numerical instability during step")
	ErrInvalidConstants     = errors.New("invalid physics constants")
)
