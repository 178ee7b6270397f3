// ABOUTME: Tests for clock synchronization
// ABOUTME: Covers RTT/offset calculation, outlier rejection and time conversion
package clocksync

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestSync() *ClockSync {
	return New(zap.NewNop().Sugar())
}

func TestRTTCalculation(t *testing.T) {
	// 5ms total round trip with 0.5ms server processing
	t1 := int64(1000000)
	t2 := int64(1002000)
	t3 := int64(1002500)
	t4 := int64(1005000)

	cs := newTestSync()
	cs.ProcessSyncResponse(t1, t2, t3, t4)

	rtt, _ := cs.Stats()
	if rtt != 4500 {
		t.Errorf("expected RTT 4500µs, got %dµs", rtt)
	}
}

func TestInitialOffset(t *testing.T) {
	// Server 100ms ahead of client, symmetric 2ms legs
	t1 := int64(1000000)
	t2 := int64(1102000)
	t3 := int64(1102000)
	t4 := int64(1004000)

	cs := newTestSync()
	cs.ProcessSyncResponse(t1, t2, t3, t4)

	if !cs.Synced() {
		t.Fatal("expected synced after first response")
	}
	if got := cs.Offset(); got != 100000 {
		t.Errorf("expected offset 100000µs, got %dµs", got)
	}

	_, quality := cs.Stats()
	if quality != QualityGood {
		t.Errorf("expected QualityGood, got %v", quality)
	}
}

func TestHighRTTSamplesDiscarded(t *testing.T) {
	cs := newTestSync()

	// 300ms round trip should be rejected entirely
	cs.ProcessSyncResponse(0, 150000, 150000, 300000)

	if cs.Synced() {
		t.Error("expected high-RTT sample to be discarded")
	}
}

func TestServerToLocalTimeBeforeSync(t *testing.T) {
	cs := newTestSync()

	serverTime := int64(1700000000000000)
	got := cs.ServerToLocalTime(serverTime)
	want := time.Unix(0, serverTime*1000)
	if !got.Equal(want) {
		t.Errorf("expected passthrough before sync: got %v, want %v", got, want)
	}
}

func TestServerToLocalTimeAppliesOffset(t *testing.T) {
	cs := newTestSync()

	// Establish a 100ms offset with no drift
	clientNow := time.Now().UnixMicro()
	cs.ProcessSyncResponse(clientNow-2000, clientNow+99000, clientNow+99000, clientNow)

	serverTime := clientNow + 100000 + 500000 // 500ms ahead in server frame
	local := cs.ServerToLocalTime(serverTime).UnixMicro()
	expected := clientNow + 500000

	diff := local - expected
	if diff < -1000 || diff > 1000 {
		t.Errorf("conversion off by %dµs", diff)
	}
}

func TestNowServerMicrosTracksOffset(t *testing.T) {
	cs := newTestSync()

	clientNow := time.Now().UnixMicro()
	cs.ProcessSyncResponse(clientNow-2000, clientNow+99000, clientNow+99000, clientNow)

	serverNow := cs.NowServerMicros()
	expected := time.Now().UnixMicro() + 100000

	diff := serverNow - expected
	if diff < -5000 || diff > 5000 {
		t.Errorf("server-frame time off by %dµs", diff)
	}
}
