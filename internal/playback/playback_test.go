// ABOUTME: Tests for the playback pipeline and scheduler
// ABOUTME: Uses a fake sink so no audio device is needed
package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
	"github.com/Sendspin/sendspin-client-go/internal/clocksync"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu     sync.Mutex
	writes [][]int32
	closed bool
}

func (f *fakeSink) Write(samples []int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]int32, len(samples))
	copy(buf, samples)
	f.writes = append(f.writes, buf)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func testFormat() audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	factory := func(logger *zap.SugaredLogger, format audio.Format, deviceID string) (Sink, error) {
		return sink, nil
	}
	clock := clocksync.New(zap.NewNop().Sugar())
	p := NewPipeline(zap.NewNop().Sugar(), clock, factory, "", 0)
	return p, sink
}

func TestEnqueueWithoutPlayerDropsSilently(t *testing.T) {
	p, sink := newTestPipeline(t)
	defer p.Shutdown()

	for i := 0; i < 5; i++ {
		p.Enqueue(audio.Buffer{Timestamp: time.Now().UnixMicro(), Samples: []int32{1, 2}})
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().DroppedNoSink == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stats := p.Stats()
	if stats.DroppedNoSink != 5 {
		t.Errorf("expected 5 buffers dropped without sink, got %d", stats.DroppedNoSink)
	}
	if sink.writeCount() != 0 {
		t.Errorf("expected no writes without a player, got %d", sink.writeCount())
	}
}

func TestMutedPlaybackWritesSilence(t *testing.T) {
	p, sink := newTestPipeline(t)
	defer p.Shutdown()

	p.SetMute(true)
	p.CreatePlayer(testFormat())

	// Enough buffers to pass the buffering threshold, all due right away
	base := time.Now().Add(20 * time.Millisecond).UnixMicro()
	for i := 0; i < bufferTarget+5; i++ {
		p.Enqueue(audio.Buffer{
			Timestamp: base + int64(i),
			Samples:   []int32{100000, -100000},
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.writeCount() >= bufferTarget {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.writes) == 0 {
		t.Fatal("expected buffers to reach the sink")
	}
	for _, write := range sink.writes {
		for _, sample := range write {
			if sample != 0 {
				t.Fatalf("expected silence while muted, got sample %d", sample)
			}
		}
	}
}

func TestShutdownClosesSink(t *testing.T) {
	p, sink := newTestPipeline(t)

	p.CreatePlayer(testFormat())
	p.Shutdown()

	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Error("expected sink closed after shutdown")
	}

	// Second shutdown must not block or panic
	p.Shutdown()
}

func TestSchedulerOrdersBuffers(t *testing.T) {
	clock := clocksync.New(zap.NewNop().Sugar())
	s := NewScheduler(zap.NewNop().Sugar(), clock, 0)
	defer s.Stop()

	// Schedule out of order, all due within the play window
	base := time.Now().Add(30 * time.Millisecond).UnixMicro()
	order := []int64{4, 1, 3, 0, 2}
	count := bufferTarget + len(order)
	for _, n := range order {
		s.Schedule(audio.Buffer{Timestamp: base + n*100, Samples: []int32{int32(n)}})
	}
	for i := len(order); i < count; i++ {
		s.Schedule(audio.Buffer{Timestamp: base + int64(i)*100, Samples: []int32{int32(i)}})
	}

	var got []time.Time
	timeout := time.After(2 * time.Second)
	for len(got) < count {
		select {
		case buf := <-s.Output():
			got = append(got, buf.PlayAt)
		case <-timeout:
			t.Fatalf("timed out waiting for buffers, got %d of %d", len(got), count)
		}
	}

	for i := 1; i < len(got); i++ {
		if got[i].Before(got[i-1]) {
			t.Fatalf("buffer %d released out of order", i)
		}
	}
}

func TestSchedulerDropsLateBuffers(t *testing.T) {
	clock := clocksync.New(zap.NewNop().Sugar())
	s := NewScheduler(zap.NewNop().Sugar(), clock, 0)
	defer s.Stop()

	late := time.Now().Add(-200 * time.Millisecond).UnixMicro()
	s.Schedule(audio.Buffer{Timestamp: late, Samples: []int32{1}})

	stats := s.Stats()
	if stats.Dropped != 1 {
		t.Errorf("expected 1 dropped buffer, got %d", stats.Dropped)
	}
	if stats.Received != 1 {
		t.Errorf("expected 1 received buffer, got %d", stats.Received)
	}
}

func TestSchedulerClearRebuffers(t *testing.T) {
	clock := clocksync.New(zap.NewNop().Sugar())
	s := NewScheduler(zap.NewNop().Sugar(), clock, 0)
	defer s.Stop()

	base := time.Now().Add(30 * time.Millisecond).UnixMicro()
	for i := 0; i < bufferTarget; i++ {
		s.Schedule(audio.Buffer{Timestamp: base + int64(i)*100, Samples: []int32{1}})
	}
	s.Clear()

	// After a clear no buffers may come out until the target refills
	select {
	case <-s.Output():
		t.Fatal("expected no output while rebuffering")
	case <-time.After(100 * time.Millisecond):
	}
}
