package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"reservation.booked": {
		Topic:         "reservation_events",
		SchemaSubject: "reservation_events-value",
	},
	"reservation.cancelled": {
		Topic:         "reservation_events",
		SchemaSubject: "reservation_events-value",
	},
	"reservation.attendance": {
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
	},
}

// insertOutbox records an event row inside the caller's transaction so the
// event is durably queued iff the domain write commits. Partitioning by
// activity keeps per-activity ordering for consumers. The dedupe key must
// identify the logical event; the unique index on it rejects double emits.
func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, activityID, reservationID, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"reservation",
		reservationID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		activityID,
		body,
		dedupeKey,
	)
	return err
}
