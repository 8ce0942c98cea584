package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reservation/internal/domain"
	"example.com/reservation/internal/events"
	"example.com/reservation/internal/observability"
)

const uniqueViolation = "23505"

const reservationColumns = `reservation_id, user_id, activity_id,
        activity_title, activity_start_time, status, created_at`

// ReservationRepository persists reservations and records outbox events in
// the same transaction as each write.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository constructs a ReservationRepository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Create inserts an active reservation. The partial unique index on
// (user_id, activity_id) WHERE status='active' turns a concurrent same-user
// booking into ErrDuplicateReservation; no application-level read can give
// that guarantee.
func (r *ReservationRepository) Create(ctx context.Context, reservation domain.Reservation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO reservations (reservation_id, user_id, activity_id, activity_title, activity_start_time, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		reservation.ID,
		reservation.UserID,
		reservation.ActivityID,
		reservation.ActivityTitle,
		reservation.ActivityStartTime,
		reservation.Status,
		reservation.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = domain.ErrDuplicateReservation
		}
		return err
	}

	if err = insertOutbox(ctx, tx, "reservation.booked", reservation.ActivityID, reservation.ID,
		reservation.ID+":booked", events.ReservationBooked{
		ReservationID:     reservation.ID,
		UserID:            reservation.UserID,
		ActivityID:        reservation.ActivityID,
		ActivityTitle:     reservation.ActivityTitle,
		ActivityStartTime: reservation.ActivityStartTime,
		BookedAt:          reservation.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordReservationPersisted(reservation.CreatedAt)
	return nil
}

// Get retrieves a reservation by ID. Returns nil when absent.
func (r *ReservationRepository) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE reservation_id=$1`

	row := r.pool.QueryRow(ctx, query, reservationID)
	reservation, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reservation, nil
}

// Delete removes a reservation row (booking compensation only). The queued
// booked event is withdrawn with it so losers of the slot race never announce
// a booking that did not happen.
func (r *ReservationRepository) Delete(ctx context.Context, reservationID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM reservations WHERE reservation_id=$1`, reservationID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx,
		`DELETE FROM outbox WHERE aggregate_id=$1 AND event_type='reservation.booked' AND published_at IS NULL`,
		reservationID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ResolveActive moves an active reservation to a terminal cancellation
// status. The WHERE status='active' clause makes the transition itself the
// race arbiter: the second of two concurrent cancels sees zero rows.
func (r *ReservationRepository) ResolveActive(ctx context.Context, reservationID string, status domain.Status, released bool) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE reservations SET status=$2
         WHERE reservation_id=$1 AND status='active'
         RETURNING user_id, activity_id`

	var userID, activityID string
	err = tx.QueryRow(ctx, stmt, reservationID, status).Scan(&userID, &activityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return false, tx.Rollback(ctx)
		}
		return false, err
	}

	occurredAt := time.Now().UTC()
	// A reservation can come back to active through an attendance correction
	// and be cancelled again, so the dedupe key carries the write time.
	if err = insertOutbox(ctx, tx, "reservation.cancelled", activityID, reservationID,
		fmt.Sprintf("%s:%s:%d", reservationID, status, occurredAt.UnixNano()), events.ReservationCancelled{
			ReservationID: reservationID,
			UserID:        userID,
			ActivityID:    activityID,
			Status:        string(status),
			SlotReleased:  released,
			OccurredAt:    occurredAt,
		}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus overwrites the status unconditionally (attendance writes).
// Reports false when the reservation does not exist.
func (r *ReservationRepository) SetStatus(ctx context.Context, reservationID string, status domain.Status) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE reservations SET status=$2
         WHERE reservation_id=$1
         RETURNING activity_id`

	var activityID string
	err = tx.QueryRow(ctx, stmt, reservationID, status).Scan(&activityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return false, tx.Rollback(ctx)
		}
		return false, err
	}

	recordedAt := time.Now().UTC()
	// Attendance can legitimately be rewritten, so the dedupe key carries the
	// write time instead of just the status.
	if err = insertOutbox(ctx, tx, "reservation.attendance", activityID, reservationID,
		fmt.Sprintf("%s:attendance:%s:%d", reservationID, status, recordedAt.UnixNano()), events.AttendanceRecorded{
			ReservationID: reservationID,
			ActivityID:    activityID,
			Status:        string(status),
			RecordedAt:    recordedAt,
		}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListByUser returns a user's reservations ordered by the snapshotted
// activity start time descending, with keyset pagination.
func (r *ReservationRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Reservation, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (activity_start_time, reservation_id) < ($3, $4)`
		args = append(args, cursor.StartTime, cursor.ID)
	}

	query += ` ORDER BY activity_start_time DESC, reservation_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Reservation, 0, limit)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.ActivityStartTime, ID: last.ID}
	}
	return results, next, nil
}

// ListByActivity returns the roster rows for an activity: everything still
// counted against capacity plus late cancellations. Fully released
// cancellations are excluded.
func (r *ReservationRepository) ListByActivity(ctx context.Context, activityID string) ([]domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations
         WHERE activity_id=$1
           AND status IN ('active','late_cancelled','attended','absent')
         ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanReservation(s scanner) (*domain.Reservation, error) {
	var res domain.Reservation
	err := s.Scan(&res.ID, &res.UserID, &res.ActivityID,
		&res.ActivityTitle, &res.ActivityStartTime, &res.Status, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
