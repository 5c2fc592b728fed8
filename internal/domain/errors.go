// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveInstance indicates a resume target is still heartbeating and
// therefore not eligible for takeover.
var ErrActiveInstance = errors.New("instance is still active")

// ErrSequenceConflict indicates a concurrent append raced on the same
// per-instance sequence number. Stores retry this internally; it is never
// returned across the service boundary.
var ErrSequenceConflict = errors.New("sequence number conflict")

// ErrClosed indicates an operation targeted an instance that was closed.
var ErrClosed = errors.New("instance is closed")
