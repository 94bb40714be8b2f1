// Package shared provides cross-cutting error helpers used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"
)

// Failure classes used across the session hub. Handlers classify faults with
// errors.Is against these sentinels and wrap them with fmt.Errorf("...: %w").
var (
	// ErrAuthentication covers bad, expired, or missing credentials.
	// Connections failing with it are refused and never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization covers role violations. The connection stays open;
	// only the offending sender is notified.
	ErrAuthorization = errors.New("not authorized")

	// ErrValidation covers malformed payloads and illegal status transitions.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers references to unknown interviews.
	ErrNotFound = errors.New("not found")

	// ErrExternalService covers analysis gateway failures. Periodic passes
	// degrade on it; finalize propagates it.
	ErrExternalService = errors.New("external service failure")
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports whether the error is either SQLite concurrency
// error. Both typically warrant retry logic.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
