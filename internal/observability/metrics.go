package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation_service",
		Subsystem: "ledger",
		Name:      "bookings_total",
		Help:      "Number of reservations successfully booked.",
	})
	bookingsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_service",
		Subsystem: "ledger",
		Name:      "bookings_rejected_total",
		Help:      "Number of booking attempts rejected, by reason.",
	}, []string{"reason"})
	cancellationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_service",
		Subsystem: "ledger",
		Name:      "cancellations_total",
		Help:      "Number of cancellations processed, by outcome.",
	}, []string{"outcome"})
	attendanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_service",
		Subsystem: "ledger",
		Name:      "attendance_updates_total",
		Help:      "Number of attendance writes, by status.",
	}, []string{"status"})
	reservationPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reservation_service",
		Subsystem: "persistence",
		Name:      "last_reservation_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent reservation persisted to Postgres.",
	})
	reconcileRepairGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reservation_service",
		Subsystem: "persistence",
		Name:      "last_reconcile_repaired_activities",
		Help:      "Number of activities repaired by the most recent reconcile pass.",
	})
)

func init() {
	prometheus.MustRegister(
		bookingsCounter,
		bookingsRejectedCounter,
		cancellationsCounter,
		attendanceCounter,
		reservationPersistGauge,
		reconcileRepairGauge,
	)
}

// RecordBooking counts a successful booking.
func RecordBooking() {
	bookingsCounter.Inc()
}

// RecordBookingRejected counts a rejected booking attempt.
func RecordBookingRejected(reason string) {
	bookingsRejectedCounter.WithLabelValues(reason).Inc()
}

// RecordCancellation counts a processed cancellation by final status.
func RecordCancellation(outcome string) {
	cancellationsCounter.WithLabelValues(outcome).Inc()
}

// RecordAttendance counts an attendance write.
func RecordAttendance(status string) {
	attendanceCounter.WithLabelValues(status).Inc()
}

// RecordReservationPersisted updates the persistence watermark gauge.
func RecordReservationPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	reservationPersistGauge.Set(float64(ts.Unix()))
}

// RecordReconcileRepaired records how many counters the last repair fixed.
func RecordReconcileRepaired(count int64) {
	reconcileRepairGauge.Set(float64(count))
}
