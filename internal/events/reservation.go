// Package events defines the payloads published through the outbox.
package events

import "time"

// ReservationBooked is emitted when a booking claims a slot.
type ReservationBooked struct {
	ReservationID     string    `json:"reservation_id"`
	UserID            string    `json:"user_id"`
	ActivityID        string    `json:"activity_id"`
	ActivityTitle     string    `json:"activity_title"`
	ActivityStartTime time.Time `json:"activity_start_time"`
	BookedAt          time.Time `json:"booked_at"`
}

// ReservationCancelled is emitted when an active reservation resolves to
// cancelled or late_cancelled.
type ReservationCancelled struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	ActivityID    string    `json:"activity_id"`
	Status        string    `json:"status"`
	SlotReleased  bool      `json:"slot_released"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AttendanceRecorded is emitted when an operator records an attendance
// outcome for a reservation.
type AttendanceRecorded struct {
	ReservationID string    `json:"reservation_id"`
	ActivityID    string    `json:"activity_id"`
	Status        string    `json:"status"`
	RecordedAt    time.Time `json:"recorded_at"`
}
