package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBookClaimsSlot(t *testing.T) {
	start := time.Now().Add(2 * time.Hour)
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", Title: "Morning Yoga", StartTime: start, Capacity: 10, BookedCount: 3,
	}}
	reservations := &mockReservationStore{}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	res, err := svc.Book(context.Background(), "user-1", "act-1")
	if err != nil {
		t.Fatalf("book failed: %v", err)
	}
	if res.Status != StatusActive {
		t.Fatalf("expected active reservation, got %s", res.Status)
	}
	if res.ActivityTitle != "Morning Yoga" {
		t.Fatalf("snapshot title missing, got %q", res.ActivityTitle)
	}
	if !res.ActivityStartTime.Equal(start.UTC()) {
		t.Fatalf("snapshot start time mismatch: %s", res.ActivityStartTime)
	}
	if activities.increments != 1 {
		t.Fatalf("expected one slot claim, got %d", activities.increments)
	}
	if len(reservations.created) != 1 {
		t.Fatalf("expected one created reservation, got %d", len(reservations.created))
	}
}

func TestBookFullActivityFastPath(t *testing.T) {
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", Title: "Spin", StartTime: time.Now().Add(time.Hour), Capacity: 5, BookedCount: 5,
	}}
	reservations := &mockReservationStore{}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	_, err := svc.Book(context.Background(), "user-1", "act-1")
	if !errors.Is(err, ErrActivityFull) {
		t.Fatalf("expected ErrActivityFull, got %v", err)
	}
	if len(reservations.created) != 0 {
		t.Fatal("full activity must not write a reservation")
	}
	if activities.increments != 0 {
		t.Fatal("full activity must not attempt a slot claim")
	}
}

func TestBookCompensatesWhenClaimLoses(t *testing.T) {
	// Capacity check passes on the stale read but the conditional increment
	// reports the last slot already taken.
	activities := &mockActivityStore{
		activity:      &Activity{ID: "act-1", Title: "Spin", StartTime: time.Now().Add(time.Hour), Capacity: 5, BookedCount: 4},
		incrementFull: true,
	}
	reservations := &mockReservationStore{}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	_, err := svc.Book(context.Background(), "user-1", "act-1")
	if !errors.Is(err, ErrActivityFull) {
		t.Fatalf("expected ErrActivityFull, got %v", err)
	}
	if len(reservations.deleted) != 1 {
		t.Fatalf("expected compensation delete, got %d", len(reservations.deleted))
	}
}

func TestBookCompensatesWhenClaimErrors(t *testing.T) {
	claimErr := errors.New("connection reset")
	activities := &mockActivityStore{
		activity:     &Activity{ID: "act-1", Title: "Spin", StartTime: time.Now().Add(time.Hour), Capacity: 5, BookedCount: 1},
		incrementErr: claimErr,
	}
	reservations := &mockReservationStore{}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	_, err := svc.Book(context.Background(), "user-1", "act-1")
	if !errors.Is(err, claimErr) {
		t.Fatalf("expected claim error to surface, got %v", err)
	}
	if len(reservations.deleted) != 1 {
		t.Fatalf("expected compensation delete on claim error, got %d", len(reservations.deleted))
	}
}

func TestBookDuplicateActive(t *testing.T) {
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", Title: "Spin", StartTime: time.Now().Add(time.Hour), Capacity: 5, BookedCount: 1,
	}}
	reservations := &mockReservationStore{createErr: ErrDuplicateReservation}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	_, err := svc.Book(context.Background(), "user-1", "act-1")
	if !errors.Is(err, ErrDuplicateReservation) {
		t.Fatalf("expected ErrDuplicateReservation, got %v", err)
	}
	if activities.increments != 0 {
		t.Fatal("duplicate must not claim a slot")
	}
}

func TestBookUnknownActivity(t *testing.T) {
	svc := NewService(&mockActivityStore{}, &mockReservationStore{}, &mockUserDirectory{}, NewCancelPolicy(0))

	_, err := svc.Book(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
}

func TestCancelReleasesSlotOutsideWindow(t *testing.T) {
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", StartTime: time.Now().Add(2 * time.Hour), Capacity: 5, BookedCount: 3,
	}}
	reservations := &mockReservationStore{existing: &Reservation{
		ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive,
	}}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	result, err := svc.Cancel(context.Background(), "res-1", "user-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Status != StatusCancelled || !result.Released {
		t.Fatalf("expected released cancellation, got %+v", result)
	}
	if result.Message != "Cancelled successfully" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if activities.decrements != 1 {
		t.Fatalf("expected one decrement, got %d", activities.decrements)
	}
	if reservations.resolvedStatus != StatusCancelled {
		t.Fatalf("expected resolution to cancelled, got %s", reservations.resolvedStatus)
	}
}

func TestCancelInsideWindowKeepsSlot(t *testing.T) {
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", StartTime: time.Now().Add(10 * time.Minute), Capacity: 5, BookedCount: 3,
	}}
	reservations := &mockReservationStore{existing: &Reservation{
		ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive,
	}}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	result, err := svc.Cancel(context.Background(), "res-1", "user-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Status != StatusLateCancelled || result.Released {
		t.Fatalf("expected late cancellation, got %+v", result)
	}
	if result.Message != "Late cancellation. Slot not released." {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if activities.decrements != 0 {
		t.Fatal("late cancellation must not release the slot")
	}
}

func TestCancelUsesLiveStartTime(t *testing.T) {
	// Snapshot says the activity is far away; the activity was rescheduled
	// to start in five minutes. The live time governs.
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", StartTime: time.Now().Add(5 * time.Minute), Capacity: 5, BookedCount: 3,
	}}
	reservations := &mockReservationStore{existing: &Reservation{
		ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive,
		ActivityStartTime: time.Now().Add(48 * time.Hour),
	}}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	result, err := svc.Cancel(context.Background(), "res-1", "user-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Status != StatusLateCancelled {
		t.Fatalf("expected late cancellation from live start time, got %s", result.Status)
	}
}

func TestCancelGuards(t *testing.T) {
	activities := &mockActivityStore{activity: &Activity{
		ID: "act-1", StartTime: time.Now().Add(2 * time.Hour), Capacity: 5, BookedCount: 3,
	}}

	t.Run("unknown reservation", func(t *testing.T) {
		svc := NewService(activities, &mockReservationStore{}, &mockUserDirectory{}, NewCancelPolicy(0))
		if _, err := svc.Cancel(context.Background(), "missing", "user-1"); !errors.Is(err, ErrReservationNotFound) {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})

	t.Run("wrong owner", func(t *testing.T) {
		reservations := &mockReservationStore{existing: &Reservation{
			ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive,
		}}
		svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))
		if _, err := svc.Cancel(context.Background(), "res-1", "someone-else"); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		reservations := &mockReservationStore{existing: &Reservation{
			ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusCancelled,
		}}
		svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))
		if _, err := svc.Cancel(context.Background(), "res-1", "user-1"); !errors.Is(err, ErrNotActive) {
			t.Fatalf("expected ErrNotActive, got %v", err)
		}
	})

	t.Run("concurrent cancel loses", func(t *testing.T) {
		reservations := &mockReservationStore{
			existing: &Reservation{ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive},
			resolved: true,
		}
		svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))
		if _, err := svc.Cancel(context.Background(), "res-1", "user-1"); !errors.Is(err, ErrNotActive) {
			t.Fatalf("expected ErrNotActive on lost race, got %v", err)
		}
	})
}

func TestSetAttendance(t *testing.T) {
	reservations := &mockReservationStore{existing: &Reservation{
		ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive,
	}}
	activities := &mockActivityStore{}
	svc := NewService(activities, reservations, &mockUserDirectory{}, NewCancelPolicy(0))

	for _, status := range []Status{StatusAttended, StatusAbsent, StatusActive} {
		if err := svc.SetAttendance(context.Background(), "res-1", status); err != nil {
			t.Fatalf("attendance write %s failed: %v", status, err)
		}
	}
	if activities.increments != 0 || activities.decrements != 0 {
		t.Fatal("attendance must never touch booked counts")
	}

	if err := svc.SetAttendance(context.Background(), "res-1", StatusCancelled); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for cancelled, got %v", err)
	}

	missing := &mockReservationStore{}
	svc = NewService(activities, missing, &mockUserDirectory{}, NewCancelPolicy(0))
	if err := svc.SetAttendance(context.Background(), "missing", StatusAttended); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestRosterHydratesUsers(t *testing.T) {
	reservations := &mockReservationStore{roster: []Reservation{
		{ID: "res-1", UserID: "user-1", ActivityID: "act-1", Status: StatusActive},
		{ID: "res-2", UserID: "ghost", ActivityID: "act-1", Status: StatusLateCancelled},
	}}
	users := &mockUserDirectory{users: map[string]*User{
		"user-1": {ID: "user-1", FullName: "Ada Lovelace", Email: "ada@example.com"},
	}}
	svc := NewService(&mockActivityStore{}, reservations, users, NewCancelPolicy(0))

	entries, err := svc.ListByActivity(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("roster failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(entries))
	}
	if entries[0].UserName != "Ada Lovelace" || entries[0].UserEmail != "ada@example.com" {
		t.Fatalf("expected hydrated entry, got %+v", entries[0])
	}
	if entries[1].UserName != "Unknown" || entries[1].UserEmail != "Unknown" {
		t.Fatalf("expected placeholder for missing user, got %+v", entries[1])
	}
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"active", "cancelled", "late_cancelled", "attended", "absent"} {
		if _, err := ParseStatus(raw); err != nil {
			t.Fatalf("ParseStatus(%q) failed: %v", raw, err)
		}
	}
	if _, err := ParseStatus("no_show"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	holds := map[Status]bool{
		StatusActive:        true,
		StatusAttended:      true,
		StatusAbsent:        true,
		StatusCancelled:     false,
		StatusLateCancelled: false,
	}
	for status, want := range holds {
		if got := status.CountsAgainstCapacity(); got != want {
			t.Fatalf("CountsAgainstCapacity(%s) = %v, want %v", status, got, want)
		}
	}
}

type mockActivityStore struct {
	activity      *Activity
	incrementFull bool
	incrementErr  error
	increments    int
	decrements    int
}

func (m *mockActivityStore) Create(ctx context.Context, activity Activity) error { return nil }

func (m *mockActivityStore) Get(ctx context.Context, activityID string) (*Activity, error) {
	if m.activity == nil || m.activity.ID != activityID {
		return nil, nil
	}
	copied := *m.activity
	return &copied, nil
}

func (m *mockActivityStore) List(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return nil, nil, nil
}

func (m *mockActivityStore) Update(ctx context.Context, activity Activity) (*Activity, error) {
	return &activity, nil
}

func (m *mockActivityStore) Delete(ctx context.Context, activityID string) error { return nil }

func (m *mockActivityStore) IncrementIfBelowCapacity(ctx context.Context, activityID string) (bool, error) {
	if m.incrementErr != nil {
		return false, m.incrementErr
	}
	if m.incrementFull {
		return false, nil
	}
	m.increments++
	return true, nil
}

func (m *mockActivityStore) Decrement(ctx context.Context, activityID string) (bool, error) {
	m.decrements++
	return true, nil
}

type mockReservationStore struct {
	createErr      error
	existing       *Reservation
	roster         []Reservation
	created        []Reservation
	deleted        []string
	resolved       bool
	resolvedStatus Status
}

func (m *mockReservationStore) Create(ctx context.Context, reservation Reservation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, reservation)
	return nil
}

func (m *mockReservationStore) Get(ctx context.Context, reservationID string) (*Reservation, error) {
	if m.existing == nil || m.existing.ID != reservationID {
		return nil, nil
	}
	copied := *m.existing
	return &copied, nil
}

func (m *mockReservationStore) Delete(ctx context.Context, reservationID string) error {
	m.deleted = append(m.deleted, reservationID)
	return nil
}

func (m *mockReservationStore) ResolveActive(ctx context.Context, reservationID string, status Status, released bool) (bool, error) {
	if m.resolved {
		return false, nil
	}
	m.resolved = true
	m.resolvedStatus = status
	return true, nil
}

func (m *mockReservationStore) SetStatus(ctx context.Context, reservationID string, status Status) (bool, error) {
	if m.existing == nil || m.existing.ID != reservationID {
		return false, nil
	}
	m.existing.Status = status
	return true, nil
}

func (m *mockReservationStore) ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Reservation, *Cursor, error) {
	return m.roster, nil, nil
}

func (m *mockReservationStore) ListByActivity(ctx context.Context, activityID string) ([]Reservation, error) {
	return m.roster, nil
}

type mockUserDirectory struct {
	users map[string]*User
}

func (m *mockUserDirectory) GetByID(ctx context.Context, userID string) (*User, error) {
	if user, ok := m.users[userID]; ok {
		return user, nil
	}
	return nil, ErrUserNotFound
}
