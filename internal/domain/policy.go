package domain

import "time"

// DefaultCancelWindow is the no-release window before an activity starts.
const DefaultCancelWindow = 15 * time.Minute

// CancelPolicy decides whether a cancellation releases its slot.
// It is a pure function of the activity start time and the clock; no other
// reservation or activity state participates in the decision.
type CancelPolicy struct {
	Window time.Duration
}

// NewCancelPolicy builds a policy, falling back to the default window for
// non-positive values.
func NewCancelPolicy(window time.Duration) CancelPolicy {
	if window <= 0 {
		window = DefaultCancelWindow
	}
	return CancelPolicy{Window: window}
}

// Release reports whether cancelling at now frees the slot.
// Both instants are normalized to UTC before comparison. The window is
// inclusive: exactly Window before start counts as late. A start time in
// the past yields a negative difference and is therefore always late.
func (p CancelPolicy) Release(start, now time.Time) bool {
	return start.UTC().Sub(now.UTC()) > p.Window
}
