// ABOUTME: macOS volume backend
// ABOUTME: Shells out to osascript; no stable CoreAudio Go binding exists
package volume

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type osascriptBackend struct {
	logger *zap.SugaredLogger
}

func openBackend(logger *zap.SugaredLogger) (backend, error) {
	if _, err := exec.LookPath("osascript"); err != nil {
		return nil, fmt.Errorf("locate osascript: %w", err)
	}

	b := &osascriptBackend{logger: logger}

	// probe once so a sandboxed or headless environment fails fast
	if _, err := b.getState(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *osascriptBackend) getState() (Change, error) {
	out, err := runOsascript("output volume of (get volume settings) & output muted of (get volume settings)")
	if err != nil {
		return Change{}, err
	}

	// osascript renders the list as "47, false"
	parts := strings.Split(strings.TrimSpace(out), ",")
	if len(parts) != 2 {
		return Change{}, fmt.Errorf("unexpected osascript output %q", out)
	}

	volume, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Change{}, fmt.Errorf("parse volume from %q: %w", out, err)
	}
	muted := strings.TrimSpace(parts[1]) == "true"

	return Change{Volume: volume, Muted: muted}, nil
}

func (b *osascriptBackend) setVolume(volume int) error {
	_, err := runOsascript(fmt.Sprintf("set volume output volume %d", volume))
	return err
}

func (b *osascriptBackend) setMute(muted bool) error {
	_, err := runOsascript(fmt.Sprintf("set volume output muted %t", muted))
	return err
}

// Shelling out is slow, so the poll runs at 1s and the echo window is
// widened to match.
func (b *osascriptBackend) pollInterval() time.Duration { return time.Second }
func (b *osascriptBackend) graceWindow() time.Duration  { return time.Second }

func (b *osascriptBackend) close() {}

func runOsascript(script string) (string, error) {
	out, err := exec.Command("osascript", "-e", script).Output()
	if err != nil {
		return "", fmt.Errorf("run osascript: %w", err)
	}
	return string(out), nil
}
