package outbox

const reservationBookedSchema = `{
  "type": "object",
  "title": "ReservationBooked",
  "properties": {
    "reservation_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "activity_title": {"type": "string"},
    "activity_start_time": {"type": "string", "format": "date-time"},
    "booked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["reservation_id", "user_id", "activity_id", "activity_title", "activity_start_time", "booked_at"],
  "additionalProperties": false
}`

const reservationCancelledSchema = `{
  "type": "object",
  "title": "ReservationCancelled",
  "properties": {
    "reservation_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "status": {"type": "string", "enum": ["cancelled", "late_cancelled"]},
    "slot_released": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["reservation_id", "user_id", "activity_id", "status", "slot_released", "occurred_at"],
  "additionalProperties": false
}`

const attendanceRecordedSchema = `{
  "type": "object",
  "title": "AttendanceRecorded",
  "properties": {
    "reservation_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "status": {"type": "string", "enum": ["attended", "absent", "active"]},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["reservation_id", "activity_id", "status", "recorded_at"],
  "additionalProperties": false
}`
