// ABOUTME: Tests for the PCM decoder
// ABOUTME: Covers 16-bit and 24-bit decoding and byte-order handling
package audio

import "testing"

func TestNewPCMDecoderRejectsBadBitDepth(t *testing.T) {
	for _, depth := range []int{8, 20, 32} {
		if _, err := NewPCMDecoder(depth, LittleEndian); err == nil {
			t.Errorf("expected error for bit depth %d", depth)
		}
	}
}

func TestPCMDecode16Bit(t *testing.T) {
	decoder, err := NewPCMDecoder(16, LittleEndian)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 0x00, 0x01 -> 0x0100 = 256 (16-bit) -> 256<<8 (24-bit range)
	// 0x02, 0x03 -> 0x0302 = 770 (16-bit) -> 770<<8
	input := []byte{0x00, 0x01, 0x02, 0x03}
	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(output) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(output))
	}
	if output[0] != 256<<8 {
		t.Errorf("expected first sample %d, got %d", 256<<8, output[0])
	}
	if output[1] != 770<<8 {
		t.Errorf("expected second sample %d, got %d", 770<<8, output[1])
	}
}

func TestPCMDecode16BitBigEndian(t *testing.T) {
	decoder, err := NewPCMDecoder(16, BigEndian)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	output, err := decoder.Decode([]byte{0x01, 0x00})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if output[0] != 256<<8 {
		t.Errorf("expected sample %d, got %d", 256<<8, output[0])
	}
}

func TestPCMDecode24Bit(t *testing.T) {
	decoder, err := NewPCMDecoder(24, LittleEndian)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 0x01, 0x02, 0x03 -> 0x030201 = 197121
	output, err := decoder.Decode([]byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(output) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(output))
	}
	if output[0] != 0x030201 {
		t.Errorf("expected sample %d, got %d", 0x030201, output[0])
	}
}

func TestPCMDecode24BitNegative(t *testing.T) {
	decoder, err := NewPCMDecoder(24, LittleEndian)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 0xFF, 0xFF, 0xFF -> -1 after sign extension
	output, err := decoder.Decode([]byte{0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if output[0] != -1 {
		t.Errorf("expected sample -1, got %d", output[0])
	}
}

func TestPCMDecodeRejectsPartialSamples(t *testing.T) {
	decoder16, _ := NewPCMDecoder(16, LittleEndian)
	if _, err := decoder16.Decode([]byte{0x01}); err == nil {
		t.Error("expected error for odd-length 16-bit payload")
	}

	decoder24, _ := NewPCMDecoder(24, LittleEndian)
	if _, err := decoder24.Decode([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for partial 24-bit payload")
	}
}

func TestSampleRoundTrip24Bit(t *testing.T) {
	for _, v := range []int32{0, 1, -1, Max24Bit, Min24Bit, 123456, -123456} {
		got := SampleFrom24Bit(SampleTo24Bit(v))
		if got != v {
			t.Errorf("round trip failed for %d: got %d", v, got)
		}
	}
}
