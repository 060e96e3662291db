package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// Player plays a clip to completion.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
}

// DevicePlayer plays clips on an output device.
type DevicePlayer struct {
	// Device names the output device; empty selects the default.
	Device string
}

// Play blocks until the clip has played or ctx is done.
func (p DevicePlayer) Play(ctx context.Context, clip *Clip) error {
	if len(clip.Samples) == 0 {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	done := make(chan struct{})
	var once sync.Once
	pos := 0

	callback := func(out []int16) {
		n := copy(out, clip.Samples[pos:])
		pos += n
		// Fill remaining buffer with silence
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if pos >= len(clip.Samples) {
			once.Do(func() { close(done) })
		}
	}

	var stream *portaudio.Stream
	var err error
	if p.Device == "" {
		stream, err = portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), framesPerBuffer, callback)
	} else {
		dev, derr := findOutputDevice(p.Device)
		if derr != nil {
			return derr
		}
		params := portaudio.LowLatencyParameters(nil, dev)
		params.Output.Channels = clip.Channels
		params.SampleRate = float64(clip.SampleRate)
		params.FramesPerBuffer = framesPerBuffer
		stream, err = portaudio.OpenStream(params, callback)
	}
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	slog.Debug("Playing clip", "duration", clip.Duration(), "sampleRate", clip.SampleRate)

	select {
	case <-done:
	case <-ctx.Done():
	}
	return stream.Stop()
}
