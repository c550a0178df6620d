package download

import "errors"

var (
	// ErrInvalidAction indicates an unknown download-control action.
	ErrInvalidAction = errors.New("invalid download action")
	// ErrInvalidInput indicates invalid download input.
	ErrInvalidInput = errors.New("invalid download input")
)
