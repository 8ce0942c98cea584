// Package postgres provides pgx-backed persistence for the reservation service.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reservation/internal/domain"
)

const activityColumns = `activity_id, title, description, location, instructor,
        start_time, end_time, capacity, booked_count, created_at, updated_at`

// ActivityRepository persists activities and owns the slot counter updates.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Create inserts a new activity row.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	const stmt = `INSERT INTO activities (activity_id, title, description, location, instructor, start_time, end_time, capacity, booked_count, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := r.pool.Exec(ctx, stmt,
		activity.ID,
		activity.Title,
		activity.Description,
		activity.Location,
		activity.Instructor,
		activity.StartTime,
		activity.EndTime,
		activity.Capacity,
		activity.BookedCount,
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	return err
}

// Get retrieves an activity by ID. Returns nil when absent.
func (r *ActivityRepository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities WHERE activity_id=$1`

	row := r.pool.QueryRow(ctx, query, activityID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// List returns activities ordered by start time ascending with keyset pagination.
func (r *ActivityRepository) List(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{limit}
	query := `SELECT ` + activityColumns + ` FROM activities`

	if cursor != nil {
		query += ` WHERE (start_time, activity_id) > ($2, $3)`
		args = append(args, cursor.StartTime, cursor.ID)
	}

	query += ` ORDER BY start_time ASC, activity_id ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// Update overwrites the mutable metadata of an activity. booked_count is
// deliberately excluded: only the counter operations may touch it.
func (r *ActivityRepository) Update(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	const stmt = `UPDATE activities
           SET title=$2, description=$3, location=$4, instructor=$5,
               start_time=$6, end_time=$7, capacity=$8, updated_at=NOW()
         WHERE activity_id=$1
         RETURNING ` + activityColumns

	row := r.pool.QueryRow(ctx, stmt,
		activity.ID,
		activity.Title,
		activity.Description,
		activity.Location,
		activity.Instructor,
		activity.StartTime,
		activity.EndTime,
		activity.Capacity,
	)
	updated, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes an activity.
func (r *ActivityRepository) Delete(ctx context.Context, activityID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activities WHERE activity_id=$1`, activityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// IncrementIfBelowCapacity claims one slot in a single conditional update.
// The zero-row case means the activity was full (or missing) at the instant
// the statement ran; callers treat both as no slot claimed.
func (r *ActivityRepository) IncrementIfBelowCapacity(ctx context.Context, activityID string) (bool, error) {
	const stmt = `UPDATE activities
           SET booked_count = booked_count + 1, updated_at = NOW()
         WHERE activity_id=$1 AND booked_count < capacity`

	tag, err := r.pool.Exec(ctx, stmt, activityID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Decrement releases one slot, guarded so a zero counter never goes negative.
func (r *ActivityRepository) Decrement(ctx context.Context, activityID string) (bool, error) {
	const stmt = `UPDATE activities
           SET booked_count = booked_count - 1, updated_at = NOW()
         WHERE activity_id=$1 AND booked_count > 0`

	tag, err := r.pool.Exec(ctx, stmt, activityID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReconcileBookedCounts recomputes booked_count from the reservations that
// hold slots (active, attended, absent) and returns the number of activities
// repaired. Idempotent: a second pass over a consistent store touches no rows.
func (r *ActivityRepository) ReconcileBookedCounts(ctx context.Context) (int64, error) {
	const stmt = `UPDATE activities a
           SET booked_count = sub.n, updated_at = NOW()
          FROM (
               SELECT act.activity_id, COUNT(res.reservation_id) AS n
                 FROM activities act
                 LEFT JOIN reservations res
                   ON res.activity_id = act.activity_id
                  AND res.status IN ('active','attended','absent')
                GROUP BY act.activity_id
          ) sub
         WHERE sub.activity_id = a.activity_id
           AND a.booked_count <> sub.n`

	tag, err := r.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (*domain.Activity, error) {
	var a domain.Activity
	err := s.Scan(&a.ID, &a.Title, &a.Description, &a.Location, &a.Instructor,
		&a.StartTime, &a.EndTime, &a.Capacity, &a.BookedCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
