// ABOUTME: Self-change suppression for hardware volume events
// ABOUTME: Filters echoes of our own writes and duplicate observations
package volume

import "time"

// suppressor decides which observed volume states count as external
// changes. Two filters apply: an echo of a value we set ourselves
// inside the grace window, and a repeat of the last delivered state.
type suppressor struct {
	grace time.Duration
	now   func() time.Time

	lastSet   Change
	lastSetAt time.Time
	haveSet   bool

	lastDelivered Change
	haveDelivered bool
}

func newSuppressor(grace time.Duration) *suppressor {
	return &suppressor{
		grace: grace,
		now:   time.Now,
	}
}

// noteSet records a state we just wrote to the OS. The state also
// becomes the delivery baseline so a late echo of our own write is
// never reported as an external change.
func (s *suppressor) noteSet(state Change) {
	s.lastSet = state
	s.lastSetAt = s.now()
	s.haveSet = true
	s.lastDelivered = state
	s.haveDelivered = true
}

// observe reports whether an observed state should be delivered as an
// external change
func (s *suppressor) observe(state Change) bool {
	if s.haveSet && s.now().Sub(s.lastSetAt) <= s.grace && state == s.lastSet {
		return false
	}
	if s.haveDelivered && state == s.lastDelivered {
		return false
	}

	s.lastDelivered = state
	s.haveDelivered = true
	return true
}
