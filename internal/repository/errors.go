// Package repository defines the transactional storage contract used by
// the booking and payment services, its MySQL implementation, and error
// values shared by every implementation.  These sentinel values allow
// higher layers such as services and handlers to distinguish between
// different failure scenarios.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a unique key collision on a generated
// booking or ticket number.  Handlers should translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by user creation when the email is taken.
var ErrEmailExists = errors.New("email already exists")
