package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// ActivityStore captures the persistence operations for activities.
type ActivityStore interface {
	Create(ctx context.Context, activity Activity) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	List(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	Update(ctx context.Context, activity Activity) (*Activity, error)
	Delete(ctx context.Context, activityID string) error

	// IncrementIfBelowCapacity bumps booked_count by one as a single
	// conditional update and reports whether a slot was claimed. This is
	// the admission gate: a plain read-then-write must never replace it.
	IncrementIfBelowCapacity(ctx context.Context, activityID string) (bool, error)

	// Decrement lowers booked_count by one, guarded so an already-zero
	// counter is never driven negative.
	Decrement(ctx context.Context, activityID string) (bool, error)
}

// ReservationStore captures the persistence operations for reservations.
type ReservationStore interface {
	// Create inserts an active reservation. The store enforces at most one
	// active reservation per (user, activity) and returns
	// ErrDuplicateReservation when a concurrent booking won the race.
	Create(ctx context.Context, reservation Reservation) error
	Get(ctx context.Context, reservationID string) (*Reservation, error)
	// Delete removes a reservation row. Used only to compensate a booking
	// whose slot claim failed after the row was written.
	Delete(ctx context.Context, reservationID string) error
	// ResolveActive moves an active reservation to a terminal status and
	// reports whether the row was still active when the update landed.
	ResolveActive(ctx context.Context, reservationID string, status Status, released bool) (bool, error)
	// SetStatus overwrites the status unconditionally (attendance writes).
	SetStatus(ctx context.Context, reservationID string, status Status) (bool, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Reservation, *Cursor, error)
	// ListByActivity returns the roster: every reservation still counted
	// against the activity plus late cancellations.
	ListByActivity(ctx context.Context, activityID string) ([]Reservation, error)
}

// UserDirectory resolves reservation owners for roster hydration.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*User, error)
}

// Cursor models the keyset pagination token shared by list operations.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// Service is the reservation ledger. It owns the booking protocol, the
// cancellation flow, and attendance writes.
type Service struct {
	activities   ActivityStore
	reservations ReservationStore
	users        UserDirectory
	policy       CancelPolicy
}

// NewService constructs the ledger.
func NewService(activities ActivityStore, reservations ReservationStore, users UserDirectory, policy CancelPolicy) *Service {
	return &Service{
		activities:   activities,
		reservations: reservations,
		users:        users,
		policy:       policy,
	}
}

// Book reserves one slot of the activity for the user.
//
// The reservation row is written first; the slot is then claimed with the
// store's conditional increment. If the claim fails the row is removed
// again. A crash between the two writes leaves booked_count under-counting
// until the reconciler runs, which is the accepted trade-off.
func (s *Service) Book(ctx context.Context, userID, activityID string) (*Reservation, error) {
	activity, err := s.activities.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	if activity.BookedCount >= activity.Capacity {
		return nil, ErrActivityFull
	}

	reservation := Reservation{
		ID:                uuid.NewString(),
		UserID:            userID,
		ActivityID:        activityID,
		ActivityTitle:     activity.Title,
		ActivityStartTime: activity.StartTime.UTC(),
		Status:            StatusActive,
		CreatedAt:         time.Now().UTC(),
	}

	// The partial unique index is the authority on duplicates; this insert
	// surfaces a concurrent same-user booking as ErrDuplicateReservation.
	if err := s.reservations.Create(ctx, reservation); err != nil {
		return nil, err
	}

	claimed, err := s.activities.IncrementIfBelowCapacity(ctx, activityID)
	if err != nil {
		// Best effort: without it the row sits active until the reconciler
		// retroactively admits it.
		if delErr := s.reservations.Delete(ctx, reservation.ID); delErr != nil {
			log.Printf("book: compensation delete failed for reservation %s: %v", reservation.ID, delErr)
		}
		return nil, err
	}
	if !claimed {
		if delErr := s.reservations.Delete(ctx, reservation.ID); delErr != nil {
			log.Printf("book: compensation delete failed for reservation %s: %v", reservation.ID, delErr)
		}
		return nil, ErrActivityFull
	}

	return &reservation, nil
}

// Cancel resolves an active reservation owned by callerUserID.
// The live activity start time drives the policy decision, not the
// snapshot captured at booking time.
func (s *Service) Cancel(ctx context.Context, reservationID, callerUserID string) (*CancelResult, error) {
	reservation, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	if reservation.UserID != callerUserID {
		return nil, ErrNotOwner
	}
	if reservation.Status != StatusActive {
		return nil, ErrNotActive
	}

	activity, err := s.activities.Get(ctx, reservation.ActivityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}

	release := s.policy.Release(activity.StartTime, time.Now())

	status := StatusCancelled
	message := "Cancelled successfully"
	if !release {
		status = StatusLateCancelled
		message = "Late cancellation. Slot not released."
	}

	resolved, err := s.reservations.ResolveActive(ctx, reservationID, status, release)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// A concurrent cancel got there first.
		return nil, ErrNotActive
	}

	if release {
		if _, err := s.activities.Decrement(ctx, reservation.ActivityID); err != nil {
			return nil, err
		}
	}

	return &CancelResult{Status: status, Released: release, Message: message}, nil
}

// ListByUser returns the caller's reservations, most imminent snapshotted
// start time first, with keyset pagination.
func (s *Service) ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Reservation, *Cursor, error) {
	return s.reservations.ListByUser(ctx, userID, cursor, limit)
}

// ListByActivity returns the attendance roster for an activity. Fully
// released cancellations are excluded; each entry is hydrated with the
// owner's name and email, falling back to a placeholder when the directory
// lookup fails so one missing user never sinks the whole roster.
func (s *Service) ListByActivity(ctx context.Context, activityID string) ([]RosterEntry, error) {
	reservations, err := s.reservations.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	entries := make([]RosterEntry, 0, len(reservations))
	for _, r := range reservations {
		entry := RosterEntry{Reservation: r, UserName: "Unknown", UserEmail: "Unknown"}
		if user, err := s.users.GetByID(ctx, r.UserID); err == nil && user != nil {
			entry.UserName = user.FullName
			entry.UserEmail = user.Email
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetAttendance overwrites a reservation's status with an attendance
// outcome. The write is unconditional within the allowed set and never
// touches booked_count: attendance classifies who showed up among those
// already counted.
func (s *Service) SetAttendance(ctx context.Context, reservationID string, status Status) error {
	if !status.AttendanceStatus() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	updated, err := s.reservations.SetStatus(ctx, reservationID, status)
	if err != nil {
		return err
	}
	if !updated {
		return ErrReservationNotFound
	}
	return nil
}

// IsNotFound reports whether err is one of the absence sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
