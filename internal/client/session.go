// ABOUTME: Sendspin session state machine
// ABOUTME: Connects, authenticates, negotiates roles and runs the streaming loop
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
	"github.com/Sendspin/sendspin-client-go/internal/clocksync"
	"github.com/Sendspin/sendspin-client-go/internal/nowplaying"
	"github.com/Sendspin/sendspin-client-go/internal/playback"
	"github.com/Sendspin/sendspin-client-go/internal/protocol"
	"github.com/Sendspin/sendspin-client-go/internal/version"
	"github.com/Sendspin/sendspin-client-go/internal/volume"
	"github.com/gorilla/websocket"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// Status is the session lifecycle state
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusAuthenticating
	StatusNegotiating
	StatusStreaming
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusAuthenticating:
		return "authenticating"
	case StatusNegotiating:
		return "negotiating"
	case StatusStreaming:
		return "streaming"
	case StatusError:
		return "error"
	}
	return "unknown"
}

const (
	authTimeout      = 5 * time.Second
	helloReadBudget  = 3
	clockSyncPeriod  = 5 * time.Second
	stopGracePeriod  = 2 * time.Second
	handshakeTimeout = 5 * time.Second

	// 10 seconds of buffer at 48kHz
	bufferCapacity = 480000
)

// per-read wait for server/hello; a variable so tests can shorten it
var helloTimeout = 10 * time.Second

var transportCommands = []string{"play", "pause", "stop", "next", "previous"}

// Options configures a session
type Options struct {
	ServerURL      string
	ClientID       string
	ClientName     string
	AuthToken      string
	OutputDevice   string
	SyncDelay      time.Duration
	HardwareVolume bool

	// SinkFactory overrides the audio output, mainly for tests.
	// Nil means the default device sink.
	SinkFactory playback.SinkFactory
}

// Session is one connection to a Sendspin server. It owns the
// websocket, the clock sync, the playback pipeline and the optional
// hardware volume mirror.
type Session struct {
	logger     *zap.SugaredLogger
	opts       Options
	clock      *clocksync.ClockSync
	nowPlaying *nowplaying.Store

	commands   chan string
	volumeCmds chan protocol.PlayerCommand
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	mu        sync.RWMutex
	status    Status
	lastError string
	volume    int
	muted     bool
}

// NewSession creates a session; call Start to connect
func NewSession(logger *zap.SugaredLogger, opts Options, store *nowplaying.Store) *Session {
	if opts.SinkFactory == nil {
		opts.SinkFactory = playback.NewOtoSink
	}

	return &Session{
		logger:     logger.Named("session"),
		opts:       opts,
		clock:      clocksync.New(logger),
		nowPlaying: store,
		commands:   make(chan string, 16),
		volumeCmds: make(chan protocol.PlayerCommand, 4),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		volume:     100,
	}
}

// Start connects and runs the session in the background
func (s *Session) Start() {
	go s.run()
}

// Stop disconnects. Blocks until the session has wound down or a
// short grace period expires. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	select {
	case <-s.done:
	case <-time.After(stopGracePeriod):
		s.logger.Warn("Session did not stop within grace period")
	}
}

// SendCommand queues a transport command for the controller role
func (s *Session) SendCommand(command string) error {
	if !funk.ContainsString(transportCommands, command) {
		return fmt.Errorf("unknown transport command %q", command)
	}
	if !s.active() {
		return fmt.Errorf("session not running")
	}

	select {
	case s.commands <- command:
		return nil
	case <-s.done:
		return fmt.Errorf("session not running")
	}
}

// active reports whether the session loop is alive to consume commands
func (s *Session) active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status != StatusDisconnected && s.status != StatusError
}

// Status returns the lifecycle state and the last error message, if any
func (s *Session) Status() (Status, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.lastError
}

// SetVolume applies a locally initiated volume change through
// whichever of hardware mirror or software gain is active
func (s *Session) SetVolume(volume int) error {
	return s.queueVolumeCommand(protocol.PlayerCommand{Command: "volume", Volume: volume})
}

// SetMute applies a locally initiated mute change
func (s *Session) SetMute(muted bool) error {
	return s.queueVolumeCommand(protocol.PlayerCommand{Command: "mute", Mute: muted})
}

func (s *Session) queueVolumeCommand(cmd protocol.PlayerCommand) error {
	if !s.active() {
		return fmt.Errorf("session not running")
	}

	select {
	case s.volumeCmds <- cmd:
		return nil
	case <-s.done:
		return fmt.Errorf("session not running")
	}
}

// Volume returns the volume state currently reported to the server
func (s *Session) Volume() (volume int, muted bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume, s.muted
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.logger.Infow("Session status changed", "status", status.String())
}

func (s *Session) setError(message string) {
	s.mu.Lock()
	s.status = StatusError
	s.lastError = message
	s.mu.Unlock()
	s.logger.Errorw("Session failed", "error", message)
}

type wsFrame struct {
	messageType int
	data        []byte
	err         error // terminal read error, nil on data frames
}

func (s *Session) run() {
	defer close(s.done)
	defer s.nowPlaying.Clear()

	if s.opts.AuthToken == "" {
		s.setError("auth token not configured")
		return
	}

	s.setStatus(StatusConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(s.opts.ServerURL, nil)
	if err != nil {
		s.setError(fmt.Sprintf("websocket connection failed: %v", err))
		return
	}
	defer conn.Close()

	if err := s.authenticate(conn); err != nil {
		s.setError(err.Error())
		return
	}

	// single reader for the rest of the connection; negotiation and the
	// streaming loop both consume from it
	inbound := make(chan wsFrame, 100)
	go s.readFrames(conn, inbound)

	s.setStatus(StatusNegotiating)
	if err := s.negotiate(conn, inbound); err != nil {
		s.setError(err.Error())
		return
	}

	pipeline := playback.NewPipeline(s.logger, s.clock, s.opts.SinkFactory, s.opts.OutputDevice, s.opts.SyncDelay)
	defer pipeline.Shutdown()

	mirror := s.openMirror()
	if mirror != nil {
		defer mirror.Close()
	}

	if err := s.sendState(conn); err != nil {
		s.setError(fmt.Sprintf("failed to send initial state: %v", err))
		return
	}
	if err := s.sendTime(conn); err != nil {
		s.setError(fmt.Sprintf("failed to send initial clock sync: %v", err))
		return
	}

	s.setStatus(StatusStreaming)
	s.streamLoop(conn, pipeline, mirror, inbound)
}

// readFrames pumps websocket frames into the channel until the
// connection fails or the session stops. The terminal read error
// travels as the last frame so the consumer can tell a polite close
// from a broken transport.
func (s *Session) readFrames(conn *websocket.Conn, inbound chan<- wsFrame) {
	defer close(inbound)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debugw("Websocket read ended", "error", err)
			select {
			case inbound <- wsFrame{err: err}:
			case <-s.stop:
			}
			return
		}
		select {
		case inbound <- wsFrame{messageType: messageType, data: data}:
		case <-s.stop:
			return
		}
	}
}

// authenticate sends the proxy auth frame and waits for any reply.
// The proxy answers before forwarding protocol traffic; silence means
// the token was swallowed.
func (s *Session) authenticate(conn *websocket.Conn) error {
	s.setStatus(StatusAuthenticating)

	auth := protocol.NewAuthMessage(s.opts.AuthToken, s.opts.ClientID)
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(authTimeout))
	_, _, err := conn.ReadMessage()
	conn.SetReadDeadline(time.Time{})

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return fmt.Errorf("Auth timeout")
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			return fmt.Errorf("connection closed during auth")
		}
		return fmt.Errorf("auth response error: %w", err)
	}
	return nil
}

// negotiate sends client/hello and scans a few messages for the
// server/hello answer. Proxies sometimes deliver queued state first.
func (s *Session) negotiate(conn *websocket.Conn, inbound <-chan wsFrame) error {
	hello := protocol.ClientHello{
		ClientID:       s.opts.ClientID,
		Name:           s.opts.ClientName,
		Version:        1,
		SupportedRoles: []string{"player@v1", "controller@v1", "metadata@v1"},
		DeviceInfo: &protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats: []protocol.AudioFormatSpec{
				{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 24},
				{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
			},
			BufferCapacity:    bufferCapacity,
			SupportedCommands: []string{"volume", "mute"},
		},
	}

	if err := conn.WriteJSON(protocol.Message{Type: "client/hello", Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	for i := 0; i < helloReadBudget; i++ {
		select {
		case frame, ok := <-inbound:
			if !ok || frame.err != nil {
				if frame.err != nil {
					return fmt.Errorf("error waiting for server/hello: %w", frame.err)
				}
				return fmt.Errorf("connection closed waiting for server/hello")
			}
			if frame.messageType != websocket.TextMessage {
				continue
			}

			var msg protocol.Message
			if err := json.Unmarshal(frame.data, &msg); err != nil {
				continue
			}
			if msg.Type == "server/hello" {
				payloadBytes, _ := json.Marshal(msg.Payload)
				var serverHello protocol.ServerHello
				if err := json.Unmarshal(payloadBytes, &serverHello); err == nil {
					s.logger.Infow("Handshake complete",
						"serverName", serverHello.Name,
						"activeRoles", serverHello.ActiveRoles)
				}
				return nil
			}

		case <-time.After(helloTimeout):
			// a quiet server just spends a slot of the read budget

		case <-s.stop:
			// the streaming loop notices the stop right away
			return nil
		}
	}

	// Some servers front-load other traffic; carry on and let the
	// streaming loop sort it out.
	s.logger.Warn("No server/hello within read budget, proceeding anyway")
	return nil
}

// openMirror tries to attach the hardware volume mirror. Failure is
// not fatal; volume commands then go through software gain.
func (s *Session) openMirror() *volume.Mirror {
	if !s.opts.HardwareVolume {
		return nil
	}

	mirror, err := volume.New(s.logger)
	if err != nil {
		s.logger.Infow("Hardware volume unavailable, using software gain", "error", err)
		return nil
	}

	if state, err := mirror.State(); err == nil {
		s.mu.Lock()
		s.volume = state.Volume
		s.muted = state.Muted
		s.mu.Unlock()
	}

	return mirror
}

// streamLoop multiplexes everything the session reacts to: shutdown,
// the clock sync tick, outbound controller commands, hardware volume
// changes and inbound server traffic.
func (s *Session) streamLoop(conn *websocket.Conn, pipeline *playback.Pipeline, mirror *volume.Mirror, inbound <-chan wsFrame) {
	var mirrorChanges <-chan volume.Change
	if mirror != nil {
		mirrorChanges = mirror.Changes()
	}

	ticker := time.NewTicker(clockSyncPeriod)
	defer ticker.Stop()

	stream := &streamState{}

	for {
		select {
		case <-s.stop:
			s.sendGoodbye(conn, "user_request")
			s.setStatus(StatusDisconnected)
			return

		case <-ticker.C:
			if err := s.sendTime(conn); err != nil {
				s.logger.Debugw("Failed to send clock sync", "error", err)
			}
			if s.clock.CheckQuality() == clocksync.QualityLost {
				s.logger.Warn("Clock sync lost, playback timing degraded")
			}

		case command := <-s.commands:
			msg := protocol.ClientCommandMessage{
				Controller: &protocol.ControllerCommand{Command: command},
			}
			if err := conn.WriteJSON(protocol.Message{Type: "client/command", Payload: msg}); err != nil {
				s.logger.Warnw("Failed to send transport command", "command", command, "error", err)
			}

		case cmd := <-s.volumeCmds:
			s.handlePlayerCommand(conn, pipeline, mirror, cmd)

		case change := <-mirrorChanges:
			s.mu.Lock()
			s.volume = change.Volume
			s.muted = change.Muted
			s.mu.Unlock()
			if err := s.sendState(conn); err != nil {
				s.logger.Debugw("Failed to report volume change", "error", err)
			}

		case frame, ok := <-inbound:
			if !ok || frame.err != nil {
				// a polite server close ends the session cleanly
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Info("Server closed the connection")
					s.setStatus(StatusDisconnected)
				} else {
					s.setError("connection lost")
				}
				return
			}

			switch frame.messageType {
			case websocket.TextMessage:
				s.handleJSON(conn, pipeline, mirror, stream, frame.data)
			case websocket.BinaryMessage:
				s.handleChunk(pipeline, stream, frame.data)
			}
		}
	}
}

// streamState is the per-stream decoding state, reset on stream/start
type streamState struct {
	format          *audio.Format
	decoder         *audio.PCMDecoder
	playbackStarted bool
}

func (s *Session) handleJSON(conn *websocket.Conn, pipeline *playback.Pipeline, mirror *volume.Mirror, stream *streamState, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debugw("Failed to parse message", "error", err)
		return
	}
	payloadBytes, _ := json.Marshal(msg.Payload)

	switch msg.Type {
	case "stream/start":
		var start protocol.StreamStart
		if err := json.Unmarshal(payloadBytes, &start); err != nil || start.Player == nil {
			return
		}
		if start.Player.Codec != "pcm" {
			s.logger.Warnw("Unsupported codec, ignoring stream", "codec", start.Player.Codec)
			return
		}

		format := audio.Format{
			Codec:      start.Player.Codec,
			SampleRate: start.Player.SampleRate,
			Channels:   start.Player.Channels,
			BitDepth:   start.Player.BitDepth,
		}
		pipeline.CreatePlayer(format)

		stream.format = &format
		stream.decoder = nil
		stream.playbackStarted = false

	case "server/time":
		var serverTime protocol.ServerTime
		if err := json.Unmarshal(payloadBytes, &serverTime); err != nil {
			return
		}
		t4 := time.Now().UnixMicro()
		s.clock.ProcessSyncResponse(
			serverTime.ClientTransmitted,
			serverTime.ServerReceived,
			serverTime.ServerTransmitted,
			t4)

	case "server/command":
		var cmdMsg protocol.ServerCommandMessage
		if err := json.Unmarshal(payloadBytes, &cmdMsg); err != nil || cmdMsg.Player == nil {
			return
		}
		s.handlePlayerCommand(conn, pipeline, mirror, *cmdMsg.Player)

	case "server/state":
		var state protocol.ServerStateMessage
		if err := json.Unmarshal(payloadBytes, &state); err != nil || state.Metadata == nil {
			return
		}
		s.updateNowPlaying(stream, state.Metadata)

	case "stream/end", "stream/clear":
		pipeline.Clear()
		stream.playbackStarted = false

		// keep the last track metadata; the next server/state replaces it
		state := s.nowPlaying.Get()
		state.IsPlaying = false
		state.PlayerName = s.opts.ClientName
		state.PlayerID = s.opts.ClientID
		state.CanPlay = true
		state.CanPause = false
		state.CanNext = true
		state.CanPrevious = true
		s.nowPlaying.Update(state)
	}
}

// handlePlayerCommand applies a volume or mute command. The hardware
// mirror takes priority; without one the software gain absorbs it.
func (s *Session) handlePlayerCommand(conn *websocket.Conn, pipeline *playback.Pipeline, mirror *volume.Mirror, cmd protocol.PlayerCommand) {
	switch cmd.Command {
	case "volume":
		level := cmd.Volume
		if level < 0 {
			level = 0
		} else if level > 100 {
			level = 100
		}

		if mirror != nil {
			if err := mirror.SetVolume(level); err != nil {
				s.logger.Warnw("Failed to set hardware volume", "error", err)
				return
			}
		} else {
			pipeline.SetVolume(level)
		}

		s.mu.Lock()
		s.volume = level
		s.mu.Unlock()

	case "mute":
		if mirror != nil {
			if err := mirror.SetMute(cmd.Mute); err != nil {
				s.logger.Warnw("Failed to set hardware mute", "error", err)
				return
			}
		} else {
			pipeline.SetMute(cmd.Mute)
		}

		s.mu.Lock()
		s.muted = cmd.Mute
		s.mu.Unlock()

	default:
		s.logger.Debugw("Ignoring unknown player command", "command", cmd.Command)
		return
	}

	if err := s.sendState(conn); err != nil {
		s.logger.Debugw("Failed to acknowledge command", "error", err)
	}
}

func (s *Session) handleChunk(pipeline *playback.Pipeline, stream *streamState, data []byte) {
	if stream.format == nil {
		return
	}

	chunk, err := protocol.ParseChunk(data, *stream.format)
	if err != nil {
		s.logger.Debugw("Discarding invalid audio chunk", "error", err)
		return
	}

	// The wire format carries no endianness flag; PCM is little-endian
	// in practice, locked on the first chunk of the stream.
	if stream.decoder == nil {
		decoder, err := audio.NewPCMDecoder(stream.format.BitDepth, audio.LittleEndian)
		if err != nil {
			s.logger.Warnw("Cannot decode stream", "error", err)
			return
		}
		stream.decoder = decoder
	}

	samples, err := stream.decoder.Decode(chunk.Data)
	if err != nil {
		s.logger.Debugw("Failed to decode audio chunk", "error", err)
		return
	}

	if !stream.playbackStarted {
		stream.playbackStarted = true
		s.nowPlaying.Update(nowplaying.State{
			IsPlaying:   true,
			PlayerName:  s.opts.ClientName,
			PlayerID:    s.opts.ClientID,
			CanPause:    true,
			CanNext:     true,
			CanPrevious: true,
		})
	}

	pipeline.Enqueue(audio.Buffer{
		Timestamp: chunk.Timestamp,
		Samples:   samples,
		Format:    *stream.format,
	})
}

func (s *Session) updateNowPlaying(stream *streamState, metadata *protocol.MetadataState) {
	state := nowplaying.State{
		IsPlaying:   stream.playbackStarted,
		Track:       deref(metadata.Title),
		Artist:      deref(metadata.Artist),
		Album:       deref(metadata.Album),
		ArtworkURL:  deref(metadata.ArtworkURL),
		PlayerName:  s.opts.ClientName,
		PlayerID:    s.opts.ClientID,
		CanPlay:     !stream.playbackStarted,
		CanPause:    stream.playbackStarted,
		CanNext:     true,
		CanPrevious: true,
	}
	if metadata.Progress != nil {
		state.Duration = int64(metadata.Progress.TrackDuration / 1000)
		state.Elapsed = int64(metadata.Progress.TrackProgress / 1000)
	}
	s.nowPlaying.Update(state)
}

func (s *Session) sendState(conn *websocket.Conn) error {
	s.mu.RLock()
	state := protocol.ClientStateMessage{
		Player: &protocol.PlayerState{
			State:  "synchronized",
			Volume: s.volume,
			Muted:  s.muted,
		},
	}
	s.mu.RUnlock()

	return conn.WriteJSON(protocol.Message{Type: "client/state", Payload: state})
}

func (s *Session) sendTime(conn *websocket.Conn) error {
	payload := protocol.ClientTime{ClientTransmitted: time.Now().UnixMicro()}
	return conn.WriteJSON(protocol.Message{Type: "client/time", Payload: payload})
}

func (s *Session) sendGoodbye(conn *websocket.Conn, reason string) {
	payload := protocol.ClientGoodbye{Reason: reason}
	if err := conn.WriteJSON(protocol.Message{Type: "client/goodbye", Payload: payload}); err != nil {
		s.logger.Debugw("Failed to send goodbye", "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
