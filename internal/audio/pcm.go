// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit and 24-bit PCM bytes to int32 samples
package audio

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder identifies the wire byte order of PCM samples.
// It is derived once per stream, on the first chunk, and kept
// for the remainder of that stream.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// PCMDecoder decodes raw PCM payloads into int32 samples
type PCMDecoder struct {
	bitDepth int
	order    ByteOrder
}

// NewPCMDecoder creates a PCM decoder for the given bit depth and byte order
func NewPCMDecoder(bitDepth int, order ByteOrder) (*PCMDecoder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", bitDepth)
	}

	return &PCMDecoder{
		bitDepth: bitDepth,
		order:    order,
	}, nil
}

// Decode converts PCM bytes to int32 samples
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.bitDepth == 24 {
		if len(data)%3 != 0 {
			return nil, fmt.Errorf("payload length %d not a multiple of 3", len(data))
		}

		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			if d.order == BigEndian {
				b[0], b[2] = b[2], b[0]
			}
			samples[i] = SampleFrom24Bit(b)
		}
		return samples, nil
	}

	if len(data)%2 != 0 {
		return nil, fmt.Errorf("payload length %d not a multiple of 2", len(data))
	}

	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		var sample16 int16
		if d.order == BigEndian {
			sample16 = int16(binary.BigEndian.Uint16(data[i*2:]))
		} else {
			sample16 = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		samples[i] = SampleFromInt16(sample16)
	}
	return samples, nil
}
