package meet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bosley/parley/conversation"
)

const (
	defaultSpeechRate = 0.9
	defaultMicToggle  = 500 * time.Millisecond
)

const speakScript = `(function(text, rate) {
	const u = new SpeechSynthesisUtterance(text);
	u.rate = rate;
	u.volume = 1.0;
	window.speechSynthesis.speak(u);
	return true;
})(%s, %g)`

// BrowserSpeaker speaks through the page's speech synthesis with the meeting
// mic opened for the duration of the line.
type BrowserSpeaker struct {
	Page Page
	Rate float64
	// MicToggle is the pause after switching the mic.
	MicToggle time.Duration
	// Output, when set, vocalizes lines instead of page speech synthesis,
	// for example a device speaker routed into the meeting microphone.
	Output conversation.SpeechOutput

	live atomic.Bool
}

func NewBrowserSpeaker(page Page) *BrowserSpeaker {
	return &BrowserSpeaker{
		Page:      page,
		Rate:      defaultSpeechRate,
		MicToggle: defaultMicToggle,
	}
}

// Speak unmutes and starts synthesis. It returns once speech has started;
// the orchestrator waits out the paced estimate and then calls FinishSpeaking.
func (s *BrowserSpeaker) Speak(ctx context.Context, text string) error {
	if !s.live.Load() {
		if err := s.Page.Press(ctx, chordMic); err != nil {
			return fmt.Errorf("failed to unmute: %w", err)
		}
		s.live.Store(true)
		if err := pause(ctx, s.MicToggle); err != nil {
			return err
		}
	}

	if s.Output != nil {
		return s.Output.Speak(ctx, text)
	}

	arg, err := json.Marshal(strings.ReplaceAll(text, "\n", " "))
	if err != nil {
		return err
	}
	if err := s.Page.Eval(ctx, fmt.Sprintf(speakScript, arg, s.Rate)); err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	return nil
}

// FinishSpeaking mutes the mic again.
func (s *BrowserSpeaker) FinishSpeaking(ctx context.Context) {
	if !s.live.Swap(false) {
		return
	}
	if err := s.Page.Press(ctx, chordMic); err != nil {
		slog.Warn("Failed to mute", "error", err)
		return
	}
	pause(ctx, s.MicToggle)
}
