package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityService manages the activity catalog. Plain record management:
// the capacity invariants live in the store operations, not here.
type ActivityService struct {
	activities ActivityStore
}

// NewActivityService constructs an ActivityService.
func NewActivityService(activities ActivityStore) *ActivityService {
	return &ActivityService{activities: activities}
}

// Create validates and persists a new activity. booked_count starts at zero.
func (s *ActivityService) Create(ctx context.Context, activity Activity) (*Activity, error) {
	if err := activity.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity.ID = uuid.NewString()
	activity.BookedCount = 0
	activity.StartTime = activity.StartTime.UTC()
	activity.EndTime = activity.EndTime.UTC()
	activity.CreatedAt = now
	activity.UpdatedAt = now

	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Get fetches one activity.
func (s *ActivityService) Get(ctx context.Context, activityID string) (*Activity, error) {
	activity, err := s.activities.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// List returns upcoming activities ordered by start time with keyset
// pagination.
func (s *ActivityService) List(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.activities.List(ctx, cursor, limit)
}

// Update overwrites the mutable metadata of an activity. Reservations keep
// their booking-time snapshot; edits here never propagate to them.
// Capacity may not drop below the current booked_count.
func (s *ActivityService) Update(ctx context.Context, activity Activity) (*Activity, error) {
	if err := activity.Validate(); err != nil {
		return nil, err
	}

	current, err := s.activities.Get(ctx, activity.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrActivityNotFound
	}
	if activity.Capacity < current.BookedCount {
		return nil, fmt.Errorf("%w: capacity %d below current booked count %d",
			ErrValidation, activity.Capacity, current.BookedCount)
	}

	return s.activities.Update(ctx, activity)
}

// Delete removes an activity.
func (s *ActivityService) Delete(ctx context.Context, activityID string) error {
	return s.activities.Delete(ctx, activityID)
}
