package profile

import "errors"

var (
	// ErrProfileNotFound indicates the profile doesn't exist in the registry.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidInput indicates invalid profile input.
	ErrInvalidInput = errors.New("invalid profile input")
	// ErrPurgeFailed indicates the registry entry was removed but the
	// profile's storage directory could not be deleted.
	ErrPurgeFailed = errors.New("profile storage purge failed")
)

// ErrProfileActive indicates an attempt to delete the profile this process
// is running as.
var ErrProfileActive = errors.New("profile is in use")
