package domain

import (
	"fmt"
	"strings"
	"time"
)

// Activity is a scheduled event with fixed capacity.
// BookedCount tracks reservations in states that hold a slot (active,
// attended, absent) and is mutated only through the store's conditional
// increment and guarded decrement.
type Activity struct {
	ID          string
	Title       string
	Description string
	Location    string
	Instructor  string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    int
	BookedCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available returns the number of unclaimed slots.
func (a Activity) Available() int {
	return a.Capacity - a.BookedCount
}

// Validate enforces the rules common to create and update.
func (a Activity) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if a.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrValidation)
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	return nil
}
