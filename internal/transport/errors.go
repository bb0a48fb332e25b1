// ABOUTME: Failure type for dialogue-service calls
// ABOUTME: Maps HTTP status codes onto sentinel errors usable with errors.Is

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by *Failure through errors.Is.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBadRequest      = errors.New("bad request")
	ErrUnavailable     = errors.New("service unavailable")
)

// Failure describes a failed remote operation. StatusCode is zero when no
// response was received, in which case Err holds the network error.
type Failure struct {
	Op         Op
	StatusCode int
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.StatusCode != 0 && f.Message != "":
		return fmt.Sprintf("%s: %s (status %d)", f.Op, f.Message, f.StatusCode)
	case f.StatusCode != 0:
		return fmt.Sprintf("%s: server returned status %d", f.Op, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Op, f.Message)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is maps status codes to the package sentinels.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrSessionNotFound:
		return f.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusForbidden
	case ErrBadRequest:
		return f.StatusCode == http.StatusBadRequest
	case ErrUnavailable:
		return f.StatusCode == 0 || f.StatusCode >= http.StatusInternalServerError
	}
	return false
}
