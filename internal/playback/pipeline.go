// ABOUTME: Playback pipeline command loop
// ABOUTME: Owns the sink, scheduler and software gain for the active stream
package playback

import (
	"sync"
	"time"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
	"github.com/Sendspin/sendspin-client-go/internal/clocksync"
	"github.com/Sendspin/sendspin-client-go/internal/gain"
	"go.uber.org/zap"
)

type commandKind int

const (
	cmdCreatePlayer commandKind = iota
	cmdEnqueue
	cmdSetVolume
	cmdSetMute
	cmdClear
	cmdShutdown
)

type command struct {
	kind   commandKind
	format audio.Format
	buffer audio.Buffer
	volume int
	muted  bool
}

// Stats counts buffer outcomes across the life of the pipeline
type Stats struct {
	Received      int64
	Played        int64
	Dropped       int64
	DroppedNoSink int64
}

// Pipeline serializes all playback mutations onto one goroutine.
// Commands are applied in submission order; audio buffers arriving
// before a player exists are dropped silently.
type Pipeline struct {
	logger      *zap.SugaredLogger
	clock       *clocksync.ClockSync
	sinkFactory SinkFactory
	deviceID    string
	syncDelay   time.Duration

	cmds chan command
	done chan struct{}

	mu            sync.Mutex
	sched         *Scheduler
	droppedNoSink int64
}

// NewPipeline creates the pipeline and starts its command loop
func NewPipeline(logger *zap.SugaredLogger, clock *clocksync.ClockSync, factory SinkFactory, deviceID string, syncDelay time.Duration) *Pipeline {
	p := &Pipeline{
		logger:      logger.Named("playback"),
		clock:       clock,
		sinkFactory: factory,
		deviceID:    deviceID,
		syncDelay:   syncDelay,
		cmds:        make(chan command, 64),
		done:        make(chan struct{}),
	}
	go p.run()
	return p
}

// CreatePlayer tears down any existing player and realizes a new one
// for the given format
func (p *Pipeline) CreatePlayer(format audio.Format) {
	p.send(command{kind: cmdCreatePlayer, format: format})
}

// Enqueue hands a decoded buffer to the active player
func (p *Pipeline) Enqueue(buf audio.Buffer) {
	p.send(command{kind: cmdEnqueue, buffer: buf})
}

// SetVolume queues a software volume change (0-100)
func (p *Pipeline) SetVolume(volume int) {
	p.send(command{kind: cmdSetVolume, volume: volume})
}

// SetMute queues a software mute change
func (p *Pipeline) SetMute(muted bool) {
	p.send(command{kind: cmdSetMute, muted: muted})
}

// Clear drops all queued audio, keeping the player alive
func (p *Pipeline) Clear() {
	p.send(command{kind: cmdClear})
}

// Shutdown tears down the player and stops the command loop.
// Blocks until the loop has exited. Safe to call more than once.
func (p *Pipeline) Shutdown() {
	p.send(command{kind: cmdShutdown})
	<-p.done
}

// Stats returns a snapshot of buffer counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	sched := p.sched
	noSink := p.droppedNoSink
	p.mu.Unlock()

	stats := Stats{DroppedNoSink: noSink}
	if sched != nil {
		ss := sched.Stats()
		stats.Received = ss.Received
		stats.Played = ss.Played
		stats.Dropped = ss.Dropped
	}
	return stats
}

func (p *Pipeline) send(cmd command) {
	select {
	case p.cmds <- cmd:
	case <-p.done:
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	var (
		sink      Sink
		sched     *Scheduler
		gainState *gain.State
	)
	volume := 100
	muted := false

	teardown := func() {
		if sched != nil {
			sched.Stop()
			p.mu.Lock()
			p.sched = nil
			p.mu.Unlock()
			sched = nil
		}
		if sink != nil {
			if err := sink.Close(); err != nil {
				p.logger.Warnw("Error closing sink", "error", err)
			}
			sink = nil
		}
		gainState = nil
	}
	defer teardown()

	for {
		var output <-chan audio.Buffer
		if sched != nil {
			output = sched.Output()
		}

		select {
		case cmd := <-p.cmds:
			switch cmd.kind {
			case cmdCreatePlayer:
				teardown()

				newSink, err := p.sinkFactory(p.logger, cmd.format, p.deviceID)
				if err != nil {
					p.logger.Errorw("Failed to create audio sink", "error", err)
					continue
				}
				sink = newSink
				sched = NewScheduler(p.logger, p.clock, p.syncDelay)
				gainState = gain.NewState(cmd.format.SampleRate)
				gainState.SetVolume(volume)
				gainState.SetMute(muted)

				p.mu.Lock()
				p.sched = sched
				p.mu.Unlock()

				p.logger.Infow("Player created",
					"codec", cmd.format.Codec,
					"sampleRate", cmd.format.SampleRate,
					"channels", cmd.format.Channels,
					"bitDepth", cmd.format.BitDepth)

			case cmdEnqueue:
				if sched == nil {
					p.mu.Lock()
					p.droppedNoSink++
					p.mu.Unlock()
					continue
				}
				sched.Schedule(cmd.buffer)

			case cmdSetVolume:
				volume = cmd.volume
				if gainState != nil {
					gainState.SetVolume(volume)
				}

			case cmdSetMute:
				muted = cmd.muted
				if gainState != nil {
					gainState.SetMute(muted)
				}

			case cmdClear:
				if sched != nil {
					sched.Clear()
				}

			case cmdShutdown:
				return
			}

		case buf, ok := <-output:
			if !ok {
				continue
			}
			gainState.ApplyInt32(buf.Samples)
			if err := sink.Write(buf.Samples); err != nil {
				p.logger.Errorw("Sink write failed", "error", err)
			}
		}
	}
}
