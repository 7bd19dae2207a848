// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrContextUnavailable is returned when the platform denies creation or
	// resumption of the audio context. Recoverable: retry on the next user action.
	ErrContextUnavailable = errors.New("audio context unavailable")

	// ErrPlaybackRejected is returned when starting playback failed even after
	// the engine's single resume-and-retry attempt.
	ErrPlaybackRejected = errors.New("playback rejected")

	// ErrEmptyCategory is returned when an operation needs tracks from a
	// category that has none.
	ErrEmptyCategory = errors.New("category has no tracks")

	// ErrListingUnavailable is returned when the remote track listing failed.
	// The controller degrades to a placeholder track rather than failing.
	ErrListingUnavailable = errors.New("track listing unavailable")

	// ErrInvalidSourceHandle is returned when an unknown or released source
	// handle is used.
	ErrInvalidSourceHandle = errors.New("invalid source handle")

	// ErrInvalidVolume is returned when a volume is outside the 0-100 range.
	ErrInvalidVolume = errors.New("invalid volume: must be between 0 and 100")

	// ErrUnknownCategory is returned for a category outside the fixed pair.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrNotInitialized is returned when an operation is attempted before
	// the component has been initialized.
	ErrNotInitialized = errors.New("component not initialized")
)

// SourceLoadError reports a track URL that could not be fetched or decoded.
// Recoverable: the caller may substitute a fallback URL and retry.
type SourceLoadError struct {
	URL     string // URL that failed to load
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("source load failed for %q: %s", e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *SourceLoadError) Unwrap() error {
	return e.Err
}

// NewSourceLoadError creates a new SourceLoadError.
func NewSourceLoadError(url, message string, err error) *SourceLoadError {
	return &SourceLoadError{
		URL:     url,
		Message: message,
		Err:     err,
	}
}

// EngineError represents a failure inside the audio engine.
// This wraps low-level audio backend errors with additional context.
type EngineError struct {
	Op      string // Operation that failed (e.g. "play", "crossfade")
	URL     string // Source URL (if applicable)
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("audio engine %s failed for %q: %s", e.Op, e.URL, e.Message)
	}
	return fmt.Sprintf("audio engine %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(op, url, message string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		URL:     url,
		Message: message,
		Err:     err,
	}
}

// CacheError represents a failure in the playback cache. Cache errors are
// always best-effort: callers log them and continue.
type CacheError struct {
	Op      string // Operation that failed (e.g. "put_audio", "purge")
	Key     string // Cache key (usually a resolved URL)
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed for %q: %s", e.Op, e.Key, e.Message)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// NewCacheError creates a new CacheError.
func NewCacheError(op, key, message string, err error) *CacheError {
	return &CacheError{
		Op:      op,
		Key:     key,
		Message: message,
		Err:     err,
	}
}
