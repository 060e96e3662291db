package listen

import (
	"strings"
	"time"

	"github.com/bosley/parley/conversation"
)

// Tracker is the end-of-turn state machine for cumulative snapshots:
// idle, speech detected, then complete after a silence, or timed out when
// nothing was ever heard. It does no I/O and takes time from its caller.
type Tracker struct {
	filter  *CaptionFilter
	silence time.Duration
	timeout time.Duration

	start         time.Time
	// baseline is the human block already on screen at the first ungated
	// poll. It belongs to an earlier turn.
	baseline      string
	seeded        bool
	lastSnapshot  string
	lastExtracted string
	lastChange    time.Time
	detected      bool
	done          bool
}

// NewTracker starts a listen cycle at start.
func NewTracker(filter *CaptionFilter, silence, timeout time.Duration, start time.Time) *Tracker {
	if filter == nil {
		filter = NewCaptionFilter()
	}
	return &Tracker{
		filter:  filter,
		silence: silence,
		timeout: timeout,
		start:   start,
	}
}

// Detected reports whether any human speech has been seen.
func (t *Tracker) Detected() bool {
	return t.detected
}

// Latest returns the most recently extracted human block.
func (t *Tracker) Latest() string {
	return t.lastExtracted
}

// Observe feeds one poll. While gated the snapshot is ignored and no timer
// other than the overall timeout advances. It returns a decision once the
// cycle is finished; later calls return nothing.
func (t *Tracker) Observe(now time.Time, snapshot string, gated bool) (conversation.Decision, bool) {
	if t.done {
		return conversation.Decision{}, false
	}

	if t.timeout > 0 && now.Sub(t.start) >= t.timeout {
		t.done = true
		if t.detected {
			return t.decide(), true
		}
		return conversation.TimedOut(), true
	}
	if gated {
		return conversation.Decision{}, false
	}

	if !t.seeded {
		t.seeded = true
		t.baseline = t.filter.LatestHumanBlock(snapshot)
		t.lastSnapshot = snapshot
	}

	if snapshot != "" && snapshot != t.lastSnapshot {
		extracted := t.unseen(t.filter.LatestHumanBlock(snapshot))
		if extracted != "" && extracted != t.lastExtracted {
			t.lastExtracted = extracted
			t.lastChange = now
			t.detected = true
		}
		t.lastSnapshot = snapshot
	}

	if t.detected && now.Sub(t.lastChange) >= t.silence {
		t.done = true
		return t.decide(), true
	}
	return conversation.Decision{}, false
}

// unseen strips the baseline from block. A block that only grew from the
// baseline keeps the new words.
func (t *Tracker) unseen(block string) string {
	switch {
	case t.baseline == "":
		return block
	case block == t.baseline:
		return ""
	case strings.HasPrefix(block, t.baseline+" "):
		return strings.TrimSpace(block[len(t.baseline):])
	}
	return block
}

func (t *Tracker) decide() conversation.Decision {
	return conversation.Heard(t.filter.Clean(t.lastExtracted))
}
