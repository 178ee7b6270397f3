// ABOUTME: Sendspin Protocol message type definitions
// ABOUTME: Defines structs for all JSON message types plus the proxy auth frame
package protocol

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// AuthMessage authenticates the connection with the server proxy.
// It must be the first frame on the wire, before any protocol traffic.
type AuthMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// NewAuthMessage builds the auth frame for the given credentials
func NewAuthMessage(token, clientID string) AuthMessage {
	return AuthMessage{
		Type:     "auth",
		Token:    token,
		ClientID: clientID,
	}
}

// ClientHello is sent by clients to initiate the handshake.
// Roles use the versioned format like "player@v1".
type ClientHello struct {
	ClientID       string      `json:"client_id"`
	Name           string      `json:"name"`
	Version        int         `json:"version"`
	SupportedRoles []string    `json:"supported_roles"`
	DeviceInfo     *DeviceInfo `json:"device_info,omitempty"`
	// Support objects use versioned keys like "player@v1_support"
	PlayerV1Support *PlayerV1Support `json:"player@v1_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerV1Support describes player@v1 capabilities
type PlayerV1Support struct {
	SupportedFormats  []AudioFormatSpec `json:"supported_formats"`
	BufferCapacity    int               `json:"buffer_capacity"`
	SupportedCommands []string          `json:"supported_commands"`
}

// AudioFormatSpec describes a supported audio format
type AudioFormatSpec struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID    string   `json:"server_id"`
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	ActiveRoles []string `json:"active_roles"`
}

// ClientStateMessage is sent as client/state with role-specific objects
type ClientStateMessage struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerState reports the player's current state.
// Volume 0 and muted false are meaningful, so neither field is omitted.
type PlayerState struct {
	State  string `json:"state"` // "synchronized" or "error"
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// ServerCommandMessage is sent as server/command with role-specific objects
type ServerCommandMessage struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a control command for the player role.
// Only volume and mute exist here; transport controls are
// a controller-role command family.
type PlayerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ClientCommandMessage is sent as client/command with role-specific objects
type ClientCommandMessage struct {
	Controller *ControllerCommand `json:"controller,omitempty"`
}

// ControllerCommand carries a transport command from the controller role
// (play, pause, stop, next, previous)
type ControllerCommand struct {
	Command string `json:"command"`
	Volume  *int   `json:"volume,omitempty"`
	Mute    *bool  `json:"mute,omitempty"`
}

// StreamStartPlayer contains the audio format details
type StreamStartPlayer struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamStart notifies the client of stream format (nested structure)
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// ServerStateMessage is sent as server/state with role-specific objects
type ServerStateMessage struct {
	Metadata *MetadataState `json:"metadata,omitempty"`
}

// MetadataState contains track metadata (for the metadata role)
type MetadataState struct {
	Timestamp  int64          `json:"timestamp"`
	Title      *string        `json:"title,omitempty"`
	Artist     *string        `json:"artist,omitempty"`
	Album      *string        `json:"album,omitempty"`
	ArtworkURL *string        `json:"artwork_url,omitempty"`
	Progress   *ProgressState `json:"progress,omitempty"`
}

// ProgressState contains playback progress info
type ProgressState struct {
	TrackProgress int `json:"track_progress"` // Current position in ms
	TrackDuration int `json:"track_duration"` // Total duration in ms (0 = unknown)
	PlaybackSpeed int `json:"playback_speed"` // Speed * 1000 (1000 = normal, 0 = paused)
}

// StreamClear instructs clients to discard buffered audio (for seek)
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends streams for specified roles
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "restart", "user_request"
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`    // Server receive timestamp
	ServerTransmitted int64 `json:"server_transmitted"` // Server send timestamp
}
