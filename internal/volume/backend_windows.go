// ABOUTME: Windows volume backend
// ABOUTME: Talks to the default render endpoint through Core Audio COM interfaces
package volume

import (
	"fmt"
	"math"
	"time"

	"github.com/go-ole/go-ole"
	wca "github.com/moutend/go-wca"
	"go.uber.org/zap"
)

type wcaBackend struct {
	logger             *zap.SugaredLogger
	mmDeviceEnumerator *wca.IMMDeviceEnumerator
	mmDevice           *wca.IMMDevice
	endpointVolume     *wca.IAudioEndpointVolume
	eventCtx           *ole.GUID
}

func openBackend(logger *zap.SugaredLogger) (backend, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return nil, fmt.Errorf("initialize COM: %w", err)
	}

	var mmDeviceEnumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&mmDeviceEnumerator,
	); err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}

	var mmDevice *wca.IMMDevice
	if err := mmDeviceEnumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &mmDevice); err != nil {
		mmDeviceEnumerator.Release()
		ole.CoUninitialize()
		return nil, fmt.Errorf("get default audio endpoint: %w", err)
	}

	var endpointVolume *wca.IAudioEndpointVolume
	if err := mmDevice.Activate(wca.IID_IAudioEndpointVolume, wca.CLSCTX_ALL, nil, &endpointVolume); err != nil {
		mmDevice.Release()
		mmDeviceEnumerator.Release()
		ole.CoUninitialize()
		return nil, fmt.Errorf("activate endpoint volume: %w", err)
	}

	return &wcaBackend{
		logger:             logger,
		mmDeviceEnumerator: mmDeviceEnumerator,
		mmDevice:           mmDevice,
		endpointVolume:     endpointVolume,
		eventCtx:           ole.NewGUID("{b9f12d84-2c13-4e85-a46a-7d17f26b2b41}"),
	}, nil
}

func (b *wcaBackend) getState() (Change, error) {
	var level float32
	if err := b.endpointVolume.GetMasterVolumeLevelScalar(&level); err != nil {
		return Change{}, fmt.Errorf("get master volume: %w", err)
	}

	var muted bool
	if err := b.endpointVolume.GetMute(&muted); err != nil {
		return Change{}, fmt.Errorf("get mute: %w", err)
	}

	return Change{
		Volume: int(math.Round(float64(level) * 100)),
		Muted:  muted,
	}, nil
}

func (b *wcaBackend) setVolume(volume int) error {
	level := float32(volume) / 100
	if err := b.endpointVolume.SetMasterVolumeLevelScalar(level, b.eventCtx); err != nil {
		return fmt.Errorf("set master volume: %w", err)
	}
	return nil
}

func (b *wcaBackend) setMute(muted bool) error {
	if err := b.endpointVolume.SetMute(muted, b.eventCtx); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	return nil
}

func (b *wcaBackend) pollInterval() time.Duration { return 100 * time.Millisecond }
func (b *wcaBackend) graceWindow() time.Duration  { return 200 * time.Millisecond }

func (b *wcaBackend) close() {
	b.endpointVolume.Release()
	b.mmDevice.Release()
	b.mmDeviceEnumerator.Release()
	ole.CoUninitialize()
}
