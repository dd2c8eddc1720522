// Package errs defines the error taxonomy shared by the services and
// mapped to HTTP status codes at the edge.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication marks a failed OAuth handshake or token
	// verification; the user must redo the linking flow.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConflict marks an identity already linked to this or another user.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a lookup or unlink on a nonexistent resource.
	ErrNotFound = errors.New("not found")

	// ErrExternal marks a platform or catalog API failure.
	ErrExternal = errors.New("external service error")

	// ErrValidation marks bad caller input (unknown platform, missing code).
	ErrValidation = errors.New("validation failed")
)

func Authenticationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAuthentication, args)...)
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrConflict, args)...)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

func Externalf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrExternal, args)...)
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

func prepend(err error, args []any) []any {
	return append([]any{err}, args...)
}
