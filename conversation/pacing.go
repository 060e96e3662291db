package conversation

import (
	"strings"
	"time"
)

// Pacing estimates how long a spoken line occupies the channel.
type Pacing struct {
	PerWord time.Duration
	Floor   time.Duration
	Ceiling time.Duration
}

// DefaultPacing matches browser speech synthesis at a slightly slowed rate.
func DefaultPacing() Pacing {
	return Pacing{
		PerWord: 400 * time.Millisecond,
		Floor:   3 * time.Second,
		Ceiling: 60 * time.Second,
	}
}

// Estimate returns the wait for text, clamped to [Floor, Ceiling].
// A zero Pacing never waits.
func (p Pacing) Estimate(text string) time.Duration {
	d := time.Duration(len(strings.Fields(text))) * p.PerWord
	if d < p.Floor {
		d = p.Floor
	}
	if p.Ceiling > 0 && d > p.Ceiling {
		d = p.Ceiling
	}
	return d
}
