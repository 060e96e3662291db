package voice

import (
	"context"
	"fmt"
	"log/slog"
)

// DeviceSpeaker synthesizes each line and plays it on the local device.
// Speak returns once playback has finished, so conversations using it need
// no paced wait.
type DeviceSpeaker struct {
	TTS    Synthesizer
	Player Player
}

func NewDeviceSpeaker(tts Synthesizer) *DeviceSpeaker {
	return &DeviceSpeaker{TTS: tts, Player: DevicePlayer{}}
}

func (s *DeviceSpeaker) Speak(ctx context.Context, text string) error {
	audio, err := s.TTS.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	clip, err := Decode(audio)
	if err != nil {
		return fmt.Errorf("failed to decode speech: %w", err)
	}
	slog.Debug("Speaking", "chars", len(text), "duration", clip.Duration())
	return s.Player.Play(ctx, clip)
}
