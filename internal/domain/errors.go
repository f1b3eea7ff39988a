// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a caller-supplied value failed validation.
var ErrValidation = errors.New("validation error")

// ErrPathEscape indicates a file reference canonicalized outside its
// declared project root.
var ErrPathEscape = errors.New("path escapes project root")

// ErrUnavailable indicates a language server or direct-invocation checker
// could not be used for the current request (missing binary, dead child,
// open circuit breaker).
var ErrUnavailable = errors.New("backend unavailable")
