// ABOUTME: Audio output sink realization
// ABOUTME: Oto-based device sink behind a small interface for testability
package playback

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Sendspin/sendspin-client-go/internal/audio"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Sink is the realized connection to an output device
type Sink interface {
	// Write blocks until the samples are handed to the device
	Write(samples []int32) error
	// Close releases the device
	Close() error
}

// SinkFactory realizes a sink for a format on the given device
// (empty deviceID = system default)
type SinkFactory func(logger *zap.SugaredLogger, format audio.Format, deviceID string) (Sink, error)

// otoSink plays int32 samples through oto as 16-bit LE PCM
type otoSink struct {
	logger     *zap.SugaredLogger
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
}

// oto only allows one context per process, so it is created once and
// reused for subsequent sinks with the same rate and channel count.
var (
	otoCtx        *oto.Context
	otoSampleRate int
	otoChannels   int
)

// NewOtoSink realizes an oto-backed sink for the given format.
// oto has no device selection; a non-empty deviceID is noted and ignored.
func NewOtoSink(logger *zap.SugaredLogger, format audio.Format, deviceID string) (Sink, error) {
	logger = logger.Named("sink")

	if deviceID != "" {
		logger.Warnw("Output device selection not supported by oto, using default",
			"deviceID", deviceID)
	}

	if otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("create oto context: %w", err)
		}
		<-readyChan

		otoCtx = ctx
		otoSampleRate = format.SampleRate
		otoChannels = format.Channels
	} else if otoSampleRate != format.SampleRate || otoChannels != format.Channels {
		// oto cannot be reinitialized; keep the existing context
		logger.Warnw("Format change not supported by oto, continuing with existing context",
			"haveRate", otoSampleRate, "wantRate", format.SampleRate,
			"haveChannels", otoChannels, "wantChannels", format.Channels)
	}

	pr, pw := io.Pipe()
	player := otoCtx.NewPlayer(pr)
	player.Play()

	logger.Infow("Audio output initialized",
		"sampleRate", format.SampleRate, "channels", format.Channels)

	return &otoSink{
		logger:     logger,
		player:     player,
		pipeReader: pr,
		pipeWriter: pw,
	}, nil
}

// Write converts samples to 16-bit LE bytes and feeds the player pipe
func (s *otoSink) Write(samples []int32) error {
	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
	}

	if _, err := s.pipeWriter.Write(output); err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	return nil
}

// Close releases the player; the shared oto context stays alive
func (s *otoSink) Close() error {
	s.pipeWriter.Close()
	s.player.Close()
	s.pipeReader.Close()
	return nil
}
