// ABOUTME: Linux volume backend
// ABOUTME: Controls the default PulseAudio sink over the native protocol
package volume

import (
	"fmt"
	"math"
	"net"
	"time"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// normal PulseAudio volume (100%)
const maxPulseVolume = 0x10000

type pulseBackend struct {
	logger       *zap.SugaredLogger
	client       *proto.Client
	conn         net.Conn
	sinkIndex    uint32
	sinkChannels byte
}

func openBackend(logger *zap.SugaredLogger) (backend, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("sendspin-client"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set client name: %w", err)
	}

	sinkRequest := proto.GetSinkInfo{SinkIndex: proto.Undefined}
	sinkReply := proto.GetSinkInfoReply{}

	if err := client.Request(&sinkRequest, &sinkReply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("get default sink info: %w", err)
	}

	return &pulseBackend{
		logger:       logger,
		client:       client,
		conn:         conn,
		sinkIndex:    sinkReply.SinkIndex,
		sinkChannels: sinkReply.Channels,
	}, nil
}

func (b *pulseBackend) getState() (Change, error) {
	request := proto.GetSinkInfo{SinkIndex: b.sinkIndex}
	reply := proto.GetSinkInfoReply{}

	if err := b.client.Request(&request, &reply); err != nil {
		return Change{}, fmt.Errorf("get sink info: %w", err)
	}

	return Change{
		Volume: parseChannelVolumes(reply.ChannelVolumes),
		Muted:  reply.Mute,
	}, nil
}

func (b *pulseBackend) setVolume(volume int) error {
	request := proto.SetSinkVolume{
		SinkIndex:      b.sinkIndex,
		ChannelVolumes: createChannelVolumes(b.sinkChannels, volume),
	}

	if err := b.client.Request(&request, nil); err != nil {
		return fmt.Errorf("set sink volume: %w", err)
	}
	return nil
}

func (b *pulseBackend) setMute(muted bool) error {
	request := proto.SetSinkMute{
		SinkIndex: b.sinkIndex,
		Mute:      muted,
	}

	if err := b.client.Request(&request, nil); err != nil {
		return fmt.Errorf("set sink mute: %w", err)
	}
	return nil
}

func (b *pulseBackend) pollInterval() time.Duration { return 100 * time.Millisecond }
func (b *pulseBackend) graceWindow() time.Duration  { return 200 * time.Millisecond }

func (b *pulseBackend) close() {
	if err := b.conn.Close(); err != nil {
		b.logger.Debugw("Failed to close PulseAudio connection", "error", err)
	}
}

func createChannelVolumes(channels byte, volume int) []uint32 {
	level := uint32(math.Round(float64(volume) / 100 * maxPulseVolume))

	volumes := make([]uint32, channels)
	for i := range volumes {
		volumes[i] = level
	}
	return volumes
}

func parseChannelVolumes(volumes []uint32) int {
	var total uint32
	for _, v := range volumes {
		total += v
	}
	if len(volumes) == 0 {
		return 0
	}

	average := float64(total) / float64(len(volumes))
	return int(math.Round(average / maxPulseVolume * 100))
}
