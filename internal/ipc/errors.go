package ipc

import (
	"errors"
	"fmt"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/repository"
	"github.com/rpggio/browserhost/internal/updater"
)

var (
	// ErrMethodNotFound indicates an unknown method name.
	ErrMethodNotFound = errors.New("method not found")
	// ErrInvalidParams indicates params that do not decode or miss a field.
	ErrInvalidParams = errors.New("invalid params")
)

// CodeInternal marks an error the IPC layer has no code for.
const CodeInternal = "INTERNAL"

// APIError is the error body returned to the presentation layer.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to API error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, ErrMethodNotFound):
		return &APIError{Code: "METHOD_NOT_FOUND", Message: err.Error(), RecoveryHint: "Check the method name"}
	case errors.Is(err, ErrInvalidParams),
		errors.Is(err, profile.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidInput),
		errors.Is(err, download.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Fix the request parameters"}
	case errors.Is(err, profile.ErrProfileNotFound):
		return &APIError{Code: "PROFILE_NOT_FOUND", Message: "profile not found", RecoveryHint: "Refresh the profile list"}
	case errors.Is(err, profile.ErrProfileActive):
		return &APIError{Code: "PROFILE_ACTIVE", Message: "profile is in use", RecoveryHint: "Switch to another profile first"}
	case errors.Is(err, profile.ErrPurgeFailed):
		return &APIError{Code: "PURGE_FAILED", Message: err.Error(), RecoveryHint: "Remove the profile directory manually"}
	case errors.Is(err, download.ErrInvalidAction):
		return &APIError{Code: "INVALID_ACTION", Message: err.Error(), RecoveryHint: "Use pause, resume or cancel"}
	case errors.Is(err, errors.ErrUnsupported):
		return &APIError{Code: "UNSUPPORTED", Message: err.Error()}
	case errors.Is(err, filter.ErrEngineUnavailable):
		return &APIError{Code: "FILTER_UNAVAILABLE", Message: "filter lists could not be loaded", RecoveryHint: "Retry when online"}
	case errors.Is(err, host.ErrRestartUnavailable):
		return &APIError{Code: "RESTART_UNAVAILABLE", Message: "choice saved but the host cannot restart itself", RecoveryHint: "Restart manually"}
	case errors.Is(err, host.ErrLaunchMismatch):
		return &APIError{Code: "LAUNCH_MISMATCH", Message: err.Error(), RecoveryHint: "Start a separate host for this launch"}
	case errors.Is(err, updater.ErrNotDownloaded):
		return &APIError{Code: "NO_UPDATE", Message: "no update has been downloaded"}
	case errors.Is(err, session.ErrClosed):
		return &APIError{Code: "SHUTTING_DOWN", Message: "host is shutting down"}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
