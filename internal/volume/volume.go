// ABOUTME: Hardware volume mirror
// ABOUTME: Worker goroutine owns the OS audio handles; requests go over a channel
package volume

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTimeout means the worker did not answer a request in time
	ErrTimeout = errors.New("volume request timed out")
	// ErrClosed means the mirror has been shut down
	ErrClosed = errors.New("volume mirror closed")
)

const (
	replyTimeout = 2 * time.Second

	// the audio service may not be up yet right after login
	openAttempts = 3
	openBackoff  = 100 * time.Millisecond
)

// Change is an observed or requested hardware volume state
type Change struct {
	Volume int // 0-100
	Muted  bool
}

// backend is the platform-specific handle to the OS master volume.
// All methods run on the worker goroutine only.
type backend interface {
	getState() (Change, error)
	setVolume(volume int) error
	setMute(muted bool) error
	pollInterval() time.Duration
	graceWindow() time.Duration
	close()
}

type opKind int

const (
	opSetVolume opKind = iota
	opSetMute
	opGetState
)

type request struct {
	kind   opKind
	volume int
	muted  bool
	reply  chan response
}

type response struct {
	state Change
	err   error
}

// Mirror tracks the OS master volume and applies remote volume
// commands to it. OS-initiated changes surface on Changes; changes the
// mirror made itself are filtered out.
type Mirror struct {
	logger   *zap.SugaredLogger
	requests chan request
	changes  chan Change
	done     chan struct{}
}

// New opens the platform volume backend and starts the worker.
// Returns an error when the platform has no usable backend; the caller
// is expected to fall back to software gain.
func New(logger *zap.SugaredLogger) (*Mirror, error) {
	m := &Mirror{
		logger:   logger.Named("volume"),
		requests: make(chan request),
		changes:  make(chan Change, 8),
		done:     make(chan struct{}),
	}

	initErr := make(chan error, 1)
	go m.worker(initErr)

	if err := <-initErr; err != nil {
		return nil, err
	}
	return m, nil
}

// SetVolume sets the OS master volume (0-100)
func (m *Mirror) SetVolume(volume int) error {
	_, err := m.roundTrip(request{kind: opSetVolume, volume: volume})
	return err
}

// SetMute sets the OS master mute state
func (m *Mirror) SetMute(muted bool) error {
	_, err := m.roundTrip(request{kind: opSetMute, muted: muted})
	return err
}

// State reads the current OS master volume state
func (m *Mirror) State() (Change, error) {
	return m.roundTrip(request{kind: opGetState})
}

// GetVolume reads the OS master volume (0-100)
func (m *Mirror) GetVolume() (int, error) {
	state, err := m.State()
	return state.Volume, err
}

// GetMute reads the OS master mute state
func (m *Mirror) GetMute() (bool, error) {
	state, err := m.State()
	return state.Muted, err
}

// Changes returns the stream of externally initiated volume changes
func (m *Mirror) Changes() <-chan Change {
	return m.changes
}

// Close stops the worker and releases the OS handles
func (m *Mirror) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Mirror) roundTrip(req request) (Change, error) {
	req.reply = make(chan response, 1)

	select {
	case m.requests <- req:
	case <-m.done:
		return Change{}, ErrClosed
	case <-time.After(replyTimeout):
		return Change{}, ErrTimeout
	}

	select {
	case resp := <-req.reply:
		return resp.state, resp.err
	case <-m.done:
		return Change{}, ErrClosed
	case <-time.After(replyTimeout):
		return Change{}, ErrTimeout
	}
}

// worker owns the backend for its whole life. COM on Windows is
// apartment-threaded, so the goroutine stays locked to one OS thread.
func (m *Mirror) worker(initErr chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	b, err := openWithRetry(m.logger)
	initErr <- err
	if err != nil {
		return
	}
	defer b.close()

	sup := newSuppressor(b.graceWindow())

	ticker := time.NewTicker(b.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return

		case req := <-m.requests:
			m.handle(b, sup, req)

		case <-ticker.C:
			state, err := b.getState()
			if err != nil {
				m.logger.Debugw("Failed to poll volume state", "error", err)
				continue
			}
			if !sup.observe(state) {
				continue
			}
			select {
			case m.changes <- state:
			default:
				m.logger.Debug("Dropping volume change, listener not keeping up")
			}
		}
	}
}

func (m *Mirror) handle(b backend, sup *suppressor, req request) {
	var resp response

	switch req.kind {
	case opSetVolume:
		resp.err = b.setVolume(req.volume)
		if resp.err == nil {
			state, err := b.getState()
			if err == nil {
				sup.noteSet(state)
			} else {
				sup.noteSet(Change{Volume: req.volume, Muted: sup.lastSet.Muted})
			}
		}

	case opSetMute:
		resp.err = b.setMute(req.muted)
		if resp.err == nil {
			state, err := b.getState()
			if err == nil {
				sup.noteSet(state)
			} else {
				sup.noteSet(Change{Volume: sup.lastSet.Volume, Muted: req.muted})
			}
		}

	case opGetState:
		resp.state, resp.err = b.getState()
	}

	req.reply <- resp
}

func openWithRetry(logger *zap.SugaredLogger) (backend, error) {
	var lastErr error

	for attempt := 1; attempt <= openAttempts; attempt++ {
		b, err := openBackend(logger)
		if err == nil {
			return b, nil
		}
		lastErr = err
		logger.Debugw("Volume backend not ready", "attempt", attempt, "error", err)
		time.Sleep(openBackoff)
	}

	return nil, fmt.Errorf("open volume backend: %w", lastErr)
}
