//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/reservation/internal/domain"
)

func setupRepos(t *testing.T, ctx context.Context) (*pgxpool.Pool, *ActivityRepository, *ReservationRepository, *UserRepository) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("reservation"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, NewActivityRepository(pool), NewReservationRepository(pool), NewUserRepository(pool)
}

func seedUser(t *testing.T, ctx context.Context, users *UserRepository) string {
	t.Helper()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		FullName:     "Integration Tester",
		Role:         domain.RoleClient,
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, users.Create(ctx, user))
	return user.ID
}

func seedActivity(t *testing.T, ctx context.Context, activities *ActivityRepository, capacity int) string {
	t.Helper()
	now := time.Now().UTC()
	activity := domain.Activity{
		ID:        uuid.NewString(),
		Title:     "Integration Spin",
		StartTime: now.Add(24 * time.Hour),
		EndTime:   now.Add(25 * time.Hour),
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, activities.Create(ctx, activity))
	return activity.ID
}

func bookOnce(ctx context.Context, activities *ActivityRepository, reservations *ReservationRepository, userID, activityID string) error {
	reservation := domain.Reservation{
		ID:                uuid.NewString(),
		UserID:            userID,
		ActivityID:        activityID,
		ActivityTitle:     "Integration Spin",
		ActivityStartTime: time.Now().UTC().Add(24 * time.Hour),
		Status:            domain.StatusActive,
		CreatedAt:         time.Now().UTC(),
	}
	if err := reservations.Create(ctx, reservation); err != nil {
		return err
	}
	claimed, err := activities.IncrementIfBelowCapacity(ctx, activityID)
	if err != nil {
		return err
	}
	if !claimed {
		if delErr := reservations.Delete(ctx, reservation.ID); delErr != nil {
			return delErr
		}
		return domain.ErrActivityFull
	}
	return nil
}

func TestConcurrentBookingNeverOversells(t *testing.T) {
	ctx := context.Background()
	pool, activities, reservations, users := setupRepos(t, ctx)

	const capacity = 5
	const contenders = 20
	activityID := seedActivity(t, ctx, activities, capacity)

	userIDs := make([]string, contenders)
	for i := range userIDs {
		userIDs[i] = seedUser(t, ctx, users)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = bookOnce(ctx, activities, reservations, userIDs[i], activityID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrActivityFull)
		}
	}
	require.Equal(t, capacity, succeeded, "exactly capacity bookings must win")

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, capacity, activity.BookedCount)

	var rows int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE activity_id=$1 AND status='active'`, activityID,
	).Scan(&rows))
	require.Equal(t, capacity, rows, "losers must leave no reservation rows behind")

	var events int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type='reservation.booked'`,
	).Scan(&events))
	require.Equal(t, capacity, events, "compensated bookings must withdraw their events")
}

func TestConcurrentSameUserBookingYieldsOneActive(t *testing.T) {
	ctx := context.Background()
	pool, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 10)
	userID := seedUser(t, ctx, users)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = bookOnce(ctx, activities, reservations, userID, activityID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrDuplicateReservation)
		}
	}
	require.Equal(t, 1, succeeded, "the partial unique index admits exactly one active reservation")

	var active int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE user_id=$1 AND activity_id=$2 AND status='active'`,
		userID, activityID,
	).Scan(&active))
	require.Equal(t, 1, active)
}

func TestCancelAndRebook(t *testing.T) {
	ctx := context.Background()
	_, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 3)
	userID := seedUser(t, ctx, users)

	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	// Find the reservation and resolve it as a released cancellation.
	list, _, err := reservations.ListByUser(ctx, userID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	resolved, err := reservations.ResolveActive(ctx, list[0].ID, domain.StatusCancelled, true)
	require.NoError(t, err)
	require.True(t, resolved)

	released, err := activities.Decrement(ctx, activityID)
	require.NoError(t, err)
	require.True(t, released)

	// A second resolve of the same reservation loses the race.
	resolved, err = reservations.ResolveActive(ctx, list[0].ID, domain.StatusCancelled, true)
	require.NoError(t, err)
	require.False(t, resolved)

	// The unique index no longer blocks a fresh booking.
	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, 1, activity.BookedCount)
}

func TestLateCancelKeepsSlotCounted(t *testing.T) {
	ctx := context.Background()
	_, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 2)
	userID := seedUser(t, ctx, users)

	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	list, _, err := reservations.ListByUser(ctx, userID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	resolved, err := reservations.ResolveActive(ctx, list[0].ID, domain.StatusLateCancelled, false)
	require.NoError(t, err)
	require.True(t, resolved)

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, 1, activity.BookedCount, "late cancellation must not release the slot")

	roster, err := reservations.ListByActivity(ctx, activityID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, domain.StatusLateCancelled, roster[0].Status)
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	_, activities, _, _ := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 2)

	released, err := activities.Decrement(ctx, activityID)
	require.NoError(t, err)
	require.False(t, released, "zero counter must not decrement")

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, 0, activity.BookedCount)
}

func TestReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	pool, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 5)
	userID := seedUser(t, ctx, users)

	// Simulate a crash between the reservation insert and the slot claim:
	// the row exists but booked_count was never incremented.
	require.NoError(t, reservations.Create(ctx, domain.Reservation{
		ID:                uuid.NewString(),
		UserID:            userID,
		ActivityID:        activityID,
		ActivityTitle:     "Integration Spin",
		ActivityStartTime: time.Now().UTC().Add(24 * time.Hour),
		Status:            domain.StatusActive,
		CreatedAt:         time.Now().UTC(),
	}))

	repaired, err := activities.ReconcileBookedCounts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, repaired)

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, 1, activity.BookedCount)

	// Idempotent: a second pass touches nothing.
	repaired, err = activities.ReconcileBookedCounts(ctx)
	require.NoError(t, err)
	require.Zero(t, repaired)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='reservation.booked'`).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows, "booking writes must queue exactly one outbox event")
}

func TestSetStatusRecordsAttendance(t *testing.T) {
	ctx := context.Background()
	pool, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 5)
	userID := seedUser(t, ctx, users)
	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	list, _, err := reservations.ListByUser(ctx, userID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := reservations.SetStatus(ctx, list[0].ID, domain.StatusAttended)
	require.NoError(t, err)
	require.True(t, updated)

	// Corrections are allowed: flip to absent and back.
	updated, err = reservations.SetStatus(ctx, list[0].ID, domain.StatusAbsent)
	require.NoError(t, err)
	require.True(t, updated)

	updated, err = reservations.SetStatus(ctx, uuid.NewString(), domain.StatusAttended)
	require.NoError(t, err)
	require.False(t, updated)

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	require.Equal(t, 1, activity.BookedCount, "attendance writes never touch the counter")

	var attendanceEvents int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='reservation.attendance'`).Scan(&attendanceEvents))
	require.Equal(t, 2, attendanceEvents)
}

func TestCancelAgainAfterAttendanceCorrection(t *testing.T) {
	ctx := context.Background()
	pool, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 3)
	userID := seedUser(t, ctx, users)
	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	list, _, err := reservations.ListByUser(ctx, userID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	reservationID := list[0].ID

	resolved, err := reservations.ResolveActive(ctx, reservationID, domain.StatusCancelled, true)
	require.NoError(t, err)
	require.True(t, resolved)

	// An operator flips the reservation back to active to undo a mistaken
	// cancellation; the user then cancels for real.
	updated, err := reservations.SetStatus(ctx, reservationID, domain.StatusActive)
	require.NoError(t, err)
	require.True(t, updated)

	resolved, err = reservations.ResolveActive(ctx, reservationID, domain.StatusCancelled, true)
	require.NoError(t, err, "second cancellation must not collide in the outbox")
	require.True(t, resolved)

	got, err := reservations.Get(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, got.Status)

	var cancelledEvents int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type='reservation.cancelled' AND aggregate_id=$1`, reservationID,
	).Scan(&cancelledEvents))
	require.Equal(t, 2, cancelledEvents, "each cancellation queues its own event")
}

func TestSnapshotSurvivesActivityEdit(t *testing.T) {
	ctx := context.Background()
	_, activities, reservations, users := setupRepos(t, ctx)

	activityID := seedActivity(t, ctx, activities, 3)
	userID := seedUser(t, ctx, users)
	require.NoError(t, bookOnce(ctx, activities, reservations, userID, activityID))

	list, _, err := reservations.ListByUser(ctx, userID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	snapTitle := list[0].ActivityTitle
	snapStart := list[0].ActivityStartTime

	activity, err := activities.Get(ctx, activityID)
	require.NoError(t, err)
	activity.Title = "Renamed Spin"
	activity.StartTime = activity.StartTime.Add(48 * time.Hour)
	activity.EndTime = activity.EndTime.Add(48 * time.Hour)
	_, err = activities.Update(ctx, *activity)
	require.NoError(t, err)

	got, err := reservations.Get(ctx, list[0].ID)
	require.NoError(t, err)
	require.Equal(t, snapTitle, got.ActivityTitle, "booking-time title survives the edit")
	require.True(t, snapStart.Equal(got.ActivityStartTime), "booking-time start survives the edit")
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return errors.Join(errors.New("database not reachable"), err)
		}
		time.Sleep(time.Second)
	}
}
