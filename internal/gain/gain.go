// ABOUTME: Software volume control via gain applied to PCM samples
// ABOUTME: Converts 0-100 volume to a ramped per-sample multiplier
package gain

import (
	"math"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
)

// rampDuration is the gain ramp length in seconds (~20ms avoids audible clicks)
const rampDuration = 0.020

const epsilon = 1e-7

// VolumeToGain converts a 0-100 volume to a linear gain factor using a
// perceptual power curve: (volume/100)^4, giving roughly 60dB of range.
// Values above 100 behave as 100.
func VolumeToGain(volume int) float32 {
	if volume <= 0 {
		return 0.0
	}
	if volume > 100 {
		volume = 100
	}
	normalized := float64(volume) / 100.0
	return float32(math.Pow(normalized, 4))
}

// State tracks the gain applied to a playback session.
//
// Created once per playback session. Volume and mute commands update the
// target; Apply runs on every buffer from the playback goroutine, so all
// mutation happens on that one goroutine.
type State struct {
	currentGain         float32
	targetGain          float32
	rampSamplesLeft     int
	rampStep            float32
	muted               bool
	volume              int // remembered 0-100, independent of mute
	rampDurationSamples int
}

// NewState creates a gain state for the given sample rate.
// Starts at volume 100 (unity gain). A zero sample rate disables
// ramping; gain changes then take effect immediately.
func NewState(sampleRate int) *State {
	return &State{
		currentGain:         1.0,
		targetGain:          1.0,
		volume:              100,
		rampDurationSamples: int(math.Round(float64(sampleRate) * rampDuration)),
	}
}

// SetVolume updates the remembered volume and, unless muted,
// starts a ramp toward the matching gain.
func (s *State) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.volume = volume
	if !s.muted {
		s.setTargetGain(VolumeToGain(volume))
	}
}

// SetMute ramps toward silence or back to the remembered volume.
// The remembered volume itself is untouched.
func (s *State) SetMute(muted bool) {
	s.muted = muted
	if muted {
		s.setTargetGain(0.0)
	} else {
		s.setTargetGain(VolumeToGain(s.volume))
	}
}

// Volume returns the remembered volume, independent of mute state
func (s *State) Volume() int {
	return s.volume
}

// Muted returns the current mute flag
func (s *State) Muted() bool {
	return s.muted
}

// Apply multiplies a buffer of float32 samples by the current gain in-place,
// interpolating per-sample while a ramp is in progress.
func (s *State) Apply(samples []float32) {
	if s.rampSamplesLeft == 0 {
		// Unity gain: nothing to do
		if math.Abs(float64(s.currentGain-1.0)) < epsilon {
			return
		}

		// Zero gain: write silence without multiplying
		if math.Abs(float64(s.currentGain)) < epsilon {
			for i := range samples {
				samples[i] = 0.0
			}
			return
		}

		for i := range samples {
			samples[i] *= s.currentGain
		}
		return
	}

	for i := range samples {
		samples[i] *= s.currentGain
		s.advanceRamp()
	}
}

// ApplyInt32 multiplies a buffer of fixed-point samples (24-bit range,
// as produced by the PCM decoder) by the current gain in-place, clamping
// the scaled result to the representable range.
func (s *State) ApplyInt32(samples []int32) {
	if s.rampSamplesLeft == 0 {
		if math.Abs(float64(s.currentGain-1.0)) < epsilon {
			return
		}

		if math.Abs(float64(s.currentGain)) < epsilon {
			for i := range samples {
				samples[i] = 0
			}
			return
		}

		for i := range samples {
			samples[i] = clamp24(float64(samples[i]) * float64(s.currentGain))
		}
		return
	}

	for i := range samples {
		samples[i] = clamp24(float64(samples[i]) * float64(s.currentGain))
		s.advanceRamp()
	}
}

// advanceRamp steps the interpolated gain by one sample
func (s *State) advanceRamp() {
	if s.rampSamplesLeft == 0 {
		return
	}
	s.rampSamplesLeft--
	if s.rampSamplesLeft == 0 {
		// Snap to the exact target to avoid floating point drift
		s.currentGain = s.targetGain
	} else {
		s.currentGain += s.rampStep
	}
}

// setTargetGain starts a ramp from the current gain to target
func (s *State) setTargetGain(target float32) {
	s.targetGain = target

	if s.rampDurationSamples == 0 {
		s.currentGain = target
		s.rampSamplesLeft = 0
		return
	}

	diff := target - s.currentGain
	if math.Abs(float64(diff)) < epsilon {
		s.rampSamplesLeft = 0
		return
	}

	s.rampSamplesLeft = s.rampDurationSamples
	s.rampStep = diff / float32(s.rampDurationSamples)
}

// clamp24 clamps a scaled sample to the 24-bit signed range.
// NaN maps to 0.
func clamp24(value float64) int32 {
	if math.IsNaN(value) {
		return 0
	}
	if value <= audio.Min24Bit {
		return audio.Min24Bit
	}
	if value >= audio.Max24Bit {
		return audio.Max24Bit
	}
	return int32(math.Round(value))
}
