// ABOUTME: Binary audio chunk framing
// ABOUTME: Parses and builds [type][timestamp][payload] wire frames
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
)

const (
	// ChunkHeaderSize is the size of the binary frame header:
	// 1 type byte plus an 8-byte big-endian microsecond timestamp.
	ChunkHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary message type ID for audio chunks
	AudioChunkMessageType = 4
)

// ErrChunkTooShort is returned for frames shorter than the header
var ErrChunkTooShort = errors.New("binary frame shorter than header")

// AudioChunk is one timestamped unit of raw audio payload
type AudioChunk struct {
	Timestamp int64  // Microseconds, server clock
	Data      []byte // Raw PCM payload
}

// ParseChunk parses a binary frame into an AudioChunk, validating the
// payload length against the active format. The frame type byte only
// has to be present; its value is not interpreted.
func ParseChunk(data []byte, format audio.Format) (AudioChunk, error) {
	if len(data) < ChunkHeaderSize {
		return AudioChunk{}, ErrChunkTooShort
	}

	frameSize := format.FrameSize()
	if frameSize == 0 {
		return AudioChunk{}, fmt.Errorf("unsupported bit depth: %d", format.BitDepth)
	}

	payload := data[ChunkHeaderSize:]
	if len(payload)%frameSize != 0 {
		return AudioChunk{}, fmt.Errorf("payload length %d not a multiple of frame size %d",
			len(payload), frameSize)
	}

	timestamp := int64(binary.BigEndian.Uint64(data[1:ChunkHeaderSize]))

	return AudioChunk{
		Timestamp: timestamp,
		Data:      payload,
	}, nil
}

// EncodeChunk builds a binary frame from a timestamp and payload
func EncodeChunk(timestamp int64, payload []byte) []byte {
	frame := make([]byte, ChunkHeaderSize+len(payload))
	frame[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(frame[1:ChunkHeaderSize], uint64(timestamp))
	copy(frame[ChunkHeaderSize:], payload)
	return frame
}
