// ABOUTME: Timestamp-based audio buffer scheduler
// ABOUTME: Orders buffers by server timestamp and releases them at play time
package playback

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
	"github.com/Sendspin/sendspin-client-go/internal/clocksync"
	"go.uber.org/zap"
)

const (
	// playbackWindow is how far from the target time a buffer may
	// still be released. Buffers later than this are dropped.
	playbackWindow = 50 * time.Millisecond

	// bufferTarget is how many buffers to hold before starting playback
	bufferTarget = 25

	schedulerTick = 10 * time.Millisecond
)

// bufferQueue is a min-heap of audio buffers ordered by play time
type bufferQueue []audio.Buffer

func (q bufferQueue) Len() int            { return len(q) }
func (q bufferQueue) Less(i, j int) bool  { return q[i].PlayAt.Before(q[j].PlayAt) }
func (q bufferQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *bufferQueue) Push(x interface{}) { *q = append(*q, x.(audio.Buffer)) }
func (q *bufferQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// SchedulerStats counts buffer outcomes since the scheduler started
type SchedulerStats struct {
	Received int64
	Played   int64
	Dropped  int64
}

// Scheduler holds timestamped buffers and emits them when their
// converted local play time arrives. Schedule may be called from a
// different goroutine than the internal release loop.
type Scheduler struct {
	mu        sync.Mutex
	logger    *zap.SugaredLogger
	clock     *clocksync.ClockSync
	queue     bufferQueue
	output    chan audio.Buffer
	syncDelay time.Duration
	buffering bool
	stats     SchedulerStats
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler releasing buffers into its output
// channel. syncDelay shifts every play time later, compensating for
// device latency.
func NewScheduler(logger *zap.SugaredLogger, clock *clocksync.ClockSync, syncDelay time.Duration) *Scheduler {
	s := &Scheduler{
		logger:    logger.Named("scheduler"),
		clock:     clock,
		queue:     make(bufferQueue, 0, bufferTarget*2),
		output:    make(chan audio.Buffer, 10),
		syncDelay: syncDelay,
		buffering: true,
		stopChan:  make(chan struct{}),
	}
	heap.Init(&s.queue)

	s.wg.Add(1)
	go s.run()
	return s
}

// Output returns the channel of buffers due for playback
func (s *Scheduler) Output() <-chan audio.Buffer {
	return s.output
}

// Schedule converts the buffer's server timestamp to a local play time
// and queues it
func (s *Scheduler) Schedule(buf audio.Buffer) {
	buf.PlayAt = s.clock.ServerToLocalTime(buf.Timestamp).Add(s.syncDelay)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Received++

	// A buffer already beyond the drop window will never play; reject
	// it here instead of letting it clog the queue.
	if time.Until(buf.PlayAt) < -playbackWindow {
		s.stats.Dropped++
		s.logger.Debugw("Dropping late buffer",
			"lateMs", -time.Until(buf.PlayAt).Milliseconds())
		return
	}

	heap.Push(&s.queue, buf)

	if s.buffering && s.queue.Len() >= bufferTarget {
		s.buffering = false
		s.logger.Debugw("Buffer target reached, starting playback",
			"queued", s.queue.Len())
	}
}

// Clear drops all queued buffers and re-enters the buffering phase
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = s.queue[:0]
	s.buffering = true
}

// Stats returns a snapshot of buffer counters
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop ends the release loop and closes the output channel
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	defer close(s.output)

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.release()
		}
	}
}

// release emits every buffer whose play time falls inside the window
// and drops buffers that are already too late
func (s *Scheduler) release() {
	now := time.Now()

	for {
		s.mu.Lock()
		if s.buffering || s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}

		next := s.queue[0]
		wait := next.PlayAt.Sub(now)

		if wait > playbackWindow {
			s.mu.Unlock()
			return
		}

		heap.Pop(&s.queue)

		if wait < -playbackWindow {
			s.stats.Dropped++
			s.mu.Unlock()
			s.logger.Debugw("Dropping late buffer at release",
				"lateMs", (-wait).Milliseconds())
			continue
		}

		s.stats.Played++
		s.mu.Unlock()

		select {
		case s.output <- next:
		case <-s.stopChan:
			return
		}
	}
}
