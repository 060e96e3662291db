package listen

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/bosley/parley/conversation"
)

const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultSilence         = 3 * time.Second
	DefaultListenTimeout   = 120 * time.Second
	defaultSnapshotTimeout = 2 * time.Second
)

// PollDetector decides a human turn by repeatedly scraping a live caption
// surface until it stops changing.
type PollDetector struct {
	Source   Source
	Gate     conversation.GateReader
	Filter   *CaptionFilter
	Interval time.Duration
	Silence  time.Duration
	Clock    clock.WithTicker

	// SessionID only labels log lines.
	SessionID string
}

// NewPollDetector returns a detector with the default cadence.
func NewPollDetector(src Source, gate conversation.GateReader) *PollDetector {
	return &PollDetector{
		Source:   Safe(src),
		Gate:     gate,
		Filter:   NewCaptionFilter(),
		Interval: DefaultPollInterval,
		Silence:  DefaultSilence,
		Clock:    clock.RealClock{},
	}
}

// Listen polls until the candidate has finished speaking, the timeout
// elapses or ctx is done. A cancelled listen reports a timeout.
func (d *PollDetector) Listen(ctx context.Context, timeout time.Duration) conversation.Decision {
	d.defaults()
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}

	slog.Info("Waiting for candidate response",
		"sessionID", d.SessionID,
		"silence", d.Silence,
		"timeout", timeout)

	tracker := NewTracker(d.Filter, d.Silence, timeout, d.Clock.Now())
	ticker := d.Clock.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return conversation.TimedOut()
		case now := <-ticker.C():
			gated := d.Gate != nil && d.Gate.AgentSpeaking()
			var snapshot string
			if !gated {
				snapshot = d.snapshot(ctx)
			}
			wasDetected := tracker.Detected()
			decision, ok := tracker.Observe(now, snapshot, gated)
			if !wasDetected && tracker.Detected() {
				slog.Debug("Speech detected in captions", "sessionID", d.SessionID)
			}
			if !ok {
				continue
			}
			if decision.IsTimeout() {
				slog.Info("No response detected", "sessionID", d.SessionID, "timeout", timeout)
			} else {
				slog.Info("Response complete", "sessionID", d.SessionID, "silence", d.Silence)
			}
			return decision
		}
	}
}

func (d *PollDetector) snapshot(ctx context.Context) string {
	sctx, cancel := context.WithTimeout(ctx, defaultSnapshotTimeout)
	defer cancel()
	return d.Source.Snapshot(sctx)
}

func (d *PollDetector) defaults() {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Filter == nil {
		d.Filter = NewCaptionFilter()
	}
	if d.Interval <= 0 {
		d.Interval = DefaultPollInterval
	}
	if d.Silence <= 0 {
		d.Silence = DefaultSilence
	}
	if d.Source == nil {
		d.Source = SourceFunc(func(context.Context) string { return "" })
	}
}
