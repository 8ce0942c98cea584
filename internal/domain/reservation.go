// Package domain defines the reservation ledger, the cancellation policy,
// and the business types shared across the service.
package domain

import "time"

// Status is the closed set of reservation states.
type Status string

const (
	// StatusActive marks a live reservation holding a slot.
	StatusActive Status = "active"
	// StatusCancelled marks a cancellation that released its slot.
	StatusCancelled Status = "cancelled"
	// StatusLateCancelled marks a cancellation inside the no-release window.
	// The slot stays counted against the activity.
	StatusLateCancelled Status = "late_cancelled"
	// StatusAttended and StatusAbsent are operator-recorded outcomes.
	StatusAttended Status = "attended"
	StatusAbsent   Status = "absent"
)

// ParseStatus converts raw caller input into a Status.
// Values outside the closed set are rejected with ErrInvalidStatus.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive, StatusCancelled, StatusLateCancelled, StatusAttended, StatusAbsent:
		return Status(raw), nil
	}
	return "", ErrInvalidStatus
}

// CountsAgainstCapacity reports whether a reservation in this status holds
// a slot. Cancelled reservations released theirs; late cancellations did not.
func (s Status) CountsAgainstCapacity() bool {
	switch s {
	case StatusActive, StatusAttended, StatusAbsent:
		return true
	}
	return false
}

// AttendanceStatus reports whether the status may be written by the
// attendance tracker. Active is included so an operator can correct a
// mistaken attendance mark; the write never touches booked_count.
func (s Status) AttendanceStatus() bool {
	switch s {
	case StatusAttended, StatusAbsent, StatusActive:
		return true
	}
	return false
}

// Reservation is a user's claim on one slot of an activity.
// ActivityTitle and ActivityStartTime are snapshotted at booking time and
// deliberately never refreshed when the activity is later edited.
type Reservation struct {
	ID                string
	UserID            string
	ActivityID        string
	ActivityTitle     string
	ActivityStartTime time.Time
	Status            Status
	CreatedAt         time.Time
}

// RosterEntry is a reservation hydrated with its owner's directory details
// for attendance listings.
type RosterEntry struct {
	Reservation
	UserName  string
	UserEmail string
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	Status   Status
	Released bool
	Message  string
}
