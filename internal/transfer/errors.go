package transfer

import (
	"errors"
	"fmt"
)

// NetworkError represents failures while fetching the bundle including non-2xx
// responses, connection resets and timeouts.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "download_bundle")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Message    string // Error message from the server or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents 401 Unauthorized and 403 Forbidden responses
// from the bundle host.
type AuthenticationError struct {
	Operation string // The operation that required authentication
	Err       error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ArchiveError represents a corrupt or unreadable bundle archive.
type ArchiveError struct {
	Path   string // Archive path on disk
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("invalid bundle archive %s: %s", e.Path, e.Reason)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// ManifestError represents a missing or unparseable manifest entry.
type ManifestError struct {
	Entry  string // Archive entry, e.g. "recipes.json"
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.Entry, e.Reason)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// WriteError represents a failure writing installed content to the local store.
type WriteError struct {
	Operation string // The operation that failed (e.g., "replace_premium")
	Err       error  // Underlying error, if any
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
	}

	return fmt.Sprintf("failed to %s", e.Operation)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Describe converts an install failure into a short message suitable for the
// persisted error shown to users.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return "download not authorized"
	}

	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return fmt.Sprintf("download failed: %s", networkErr.Message)
	}

	var archiveErr *ArchiveError
	if errors.As(err, &archiveErr) {
		return fmt.Sprintf("bundle is corrupt: %s", archiveErr.Reason)
	}

	var manifestErr *ManifestError
	if errors.As(err, &manifestErr) {
		return fmt.Sprintf("bundle content is invalid: %s", manifestErr.Reason)
	}

	var writeErr *WriteError
	if errors.As(err, &writeErr) {
		return "could not save recipes"
	}

	return err.Error()
}
