package listen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bosley/parley/conversation"
)

// Inbox is the push variant of the detector: the provider delivers one
// finished utterance per turn and Listen hands it to the orchestrator.
type Inbox struct {
	gate      conversation.GateReader
	results   chan string
	sessionID string
}

// NewInbox returns an inbox that drops deliveries while gate reports the agent speaking.
func NewInbox(sessionID string, gate conversation.GateReader) *Inbox {
	return &Inbox{
		gate:      gate,
		results:   make(chan string, 1),
		sessionID: sessionID,
	}
}

// Deliver offers a recognized utterance. It reports false when the delivery
// was dropped because the agent holds the turn or a result is already pending.
func (b *Inbox) Deliver(text string) bool {
	if b.gate != nil && b.gate.AgentSpeaking() {
		slog.Warn("Dropping speech result while agent speaking", "sessionID", b.sessionID)
		return false
	}
	select {
	case b.results <- text:
		return true
	default:
		slog.Warn("Dropping speech result, one already pending", "sessionID", b.sessionID)
		return false
	}
}

// Drain discards a pending result left over from an earlier turn.
func (b *Inbox) Drain() {
	select {
	case <-b.results:
	default:
	}
}

// Listen waits for the next delivery. An empty delivery, an elapsed timeout
// and a done ctx all report a timeout.
func (b *Inbox) Listen(ctx context.Context, timeout time.Duration) conversation.Decision {
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return conversation.TimedOut()
	case <-timer.C:
		slog.Info("No speech result received", "sessionID", b.sessionID, "timeout", timeout)
		return conversation.TimedOut()
	case text := <-b.results:
		text = strings.TrimSpace(text)
		if text == "" {
			return conversation.TimedOut()
		}
		return conversation.Heard(text)
	}
}
