// Package services defines the business logic for the companion backend:
// the knowledge cache, the dialog store, the engagement tracker, and the
// reply pipeline. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an inbound message contains no text
	// after normalization.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when an inbound message exceeds the maximum
	// configured rune count.
	ErrTooLong = errors.New("message too long")

	// ErrUserNotFound indicates that no engagement state exists for the
	// requested user (never seen, or forgotten after a permanent delivery
	// failure).
	ErrUserNotFound = errors.New("user not found")
)
