package domain

import "errors"

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrReservationNotFound is returned when a reservation cannot be located.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrActivityFull indicates the activity has no remaining capacity.
	ErrActivityFull = errors.New("activity is full")
	// ErrDuplicateReservation indicates the user already holds an active
	// reservation for the activity.
	ErrDuplicateReservation = errors.New("active reservation already exists")
	// ErrNotOwner indicates the caller does not own the reservation.
	ErrNotOwner = errors.New("reservation belongs to another user")
	// ErrNotActive indicates the reservation is not in the active state.
	ErrNotActive = errors.New("reservation is not active")
	// ErrInvalidStatus indicates a status value outside the allowed set.
	ErrInvalidStatus = errors.New("invalid reservation status")
	// ErrValidation wraps business-rule validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidID indicates a malformed identifier.
	ErrInvalidID = errors.New("invalid id format")
)
