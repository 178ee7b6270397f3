// ABOUTME: Tests for JSON message serialization
// ABOUTME: Covers fields whose zero values carry meaning on the wire
package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPlayerStateKeepsZeroVolumeAndMute(t *testing.T) {
	data, err := json.Marshal(ClientStateMessage{
		Player: &PlayerState{State: "synchronized", Volume: 0, Muted: false},
	})
	if err != nil {
		t.Fatalf("marshal client state: %v", err)
	}

	// volume 0 and muted false are real states, not absent fields
	if !strings.Contains(string(data), `"volume":0`) {
		t.Errorf("expected volume 0 on the wire, got %s", data)
	}
	if !strings.Contains(string(data), `"muted":false`) {
		t.Errorf("expected muted false on the wire, got %s", data)
	}
}
