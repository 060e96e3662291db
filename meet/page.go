// Package meet runs interviews inside a video meeting driven through a
// browser tab: joining and leaving the room, scraping live captions,
// speaking through browser speech synthesis and picking up scheduled slots.
package meet

import (
	"context"
	"errors"
	"time"
)

// ErrLoginTimeout is returned by Join when the meeting host still asks for a
// sign-in after the login window.
var ErrLoginTimeout = errors.New("meet: login timeout")

// Page is the small slice of a browser tab the meeting needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// URL returns the address currently loaded in the tab.
	URL(ctx context.Context) (string, error)
	// Press sends a key chord such as "c" or "Control+d".
	Press(ctx context.Context, chord string) error
	// ClickButton clicks the first button whose text contains one of labels
	// and reports whether one was found.
	ClickButton(ctx context.Context, labels ...string) (bool, error)
	// Texts returns the visible text of every element matching selector.
	Texts(ctx context.Context, selector string) ([]string, error)
	// Eval runs a script in the page.
	Eval(ctx context.Context, script string) error
	Close() error
}

// Opener starts a fresh browser tab for one meeting.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
