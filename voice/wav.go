package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/youpy/go-wav"
)

const readChunk = 4096

// ErrUnsupportedFormat is returned for WAV data that is not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("voice: only 16-bit PCM wav is supported")

// Clip is decoded PCM audio with channels interleaved.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Duration is the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Decode reads a 16-bit PCM WAV file.
func Decode(data []byte) (*Clip, error) {
	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav format: %w", err)
	}
	if format.BitsPerSample != 16 || format.NumChannels == 0 || format.NumChannels > 2 {
		return nil, fmt.Errorf("%w: %d bits, %d channels", ErrUnsupportedFormat, format.BitsPerSample, format.NumChannels)
	}

	clip := &Clip{
		SampleRate: int(format.SampleRate),
		Channels:   int(format.NumChannels),
	}
	for {
		samples, err := reader.ReadSamples(readChunk)
		for _, s := range samples {
			for ch := 0; ch < clip.Channels; ch++ {
				clip.Samples = append(clip.Samples, int16(s.Values[ch]))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav samples: %w", err)
		}
	}
	return clip, nil
}
