// ABOUTME: Tests for self-change suppression
// ABOUTME: Uses a fake clock to control the grace window
package volume

import (
	"testing"
	"time"
)

func newTestSuppressor(grace time.Duration) (*suppressor, *time.Time) {
	now := time.Unix(1000, 0)
	s := newSuppressor(grace)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestFirstObservationDelivered(t *testing.T) {
	s, _ := newTestSuppressor(200 * time.Millisecond)

	if !s.observe(Change{Volume: 50}) {
		t.Error("expected first observation delivered")
	}
}

func TestDuplicateObservationSuppressed(t *testing.T) {
	s, _ := newTestSuppressor(200 * time.Millisecond)

	s.observe(Change{Volume: 50})
	if s.observe(Change{Volume: 50}) {
		t.Error("expected duplicate observation suppressed")
	}
	if !s.observe(Change{Volume: 50, Muted: true}) {
		t.Error("expected changed state delivered")
	}
}

func TestOwnWriteEchoSuppressedWithinGrace(t *testing.T) {
	s, now := newTestSuppressor(200 * time.Millisecond)

	s.noteSet(Change{Volume: 30})

	*now = now.Add(100 * time.Millisecond)
	if s.observe(Change{Volume: 30}) {
		t.Error("expected echo of own write suppressed within grace window")
	}
}

func TestOwnValueStillSuppressedAfterGrace(t *testing.T) {
	s, now := newTestSuppressor(200 * time.Millisecond)

	s.noteSet(Change{Volume: 30})

	// Past the grace window the value matches the delivery baseline,
	// so a late echo still must not be reported.
	*now = now.Add(500 * time.Millisecond)
	if s.observe(Change{Volume: 30}) {
		t.Error("expected own value suppressed by delivery baseline")
	}
}

func TestExternalChangeDeliveredWithinGrace(t *testing.T) {
	s, now := newTestSuppressor(200 * time.Millisecond)

	s.noteSet(Change{Volume: 30})

	// A different value inside the grace window is a real user change
	*now = now.Add(50 * time.Millisecond)
	if !s.observe(Change{Volume: 80}) {
		t.Error("expected external change delivered within grace window")
	}
}

func TestExternalChangeDeliveredAfterGrace(t *testing.T) {
	s, now := newTestSuppressor(200 * time.Millisecond)

	s.noteSet(Change{Volume: 30})

	*now = now.Add(time.Second)
	if !s.observe(Change{Volume: 30, Muted: true}) {
		t.Error("expected mute change delivered after grace window")
	}
}
