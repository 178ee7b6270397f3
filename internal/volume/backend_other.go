// ABOUTME: Fallback volume backend
// ABOUTME: Platforms without a hardware mirror fall back to software gain
//go:build !windows && !linux && !darwin

package volume

import (
	"errors"

	"go.uber.org/zap"
)

// ErrUnsupported means this platform has no hardware volume backend
var ErrUnsupported = errors.New("hardware volume control not supported on this platform")

func openBackend(logger *zap.SugaredLogger) (backend, error) {
	return nil, ErrUnsupported
}
