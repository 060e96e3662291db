package meet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Keyboard shortcuts of the meeting UI.
const (
	chordCamera   = "Control+e"
	chordMic      = "Control+d"
	chordCaptions = "c"
	chordLeave    = "Control+h"

	loginHost   = "accounts.google.com"
	meetingHost = "meet.google.com"
)

var joinLabels = []string{"Join now", "Ask to join"}

// RoomTiming holds the waits between UI steps.
type RoomTiming struct {
	Settle       time.Duration
	Toggle       time.Duration
	LoginPoll    time.Duration
	LoginTimeout time.Duration
	JoinPoll     time.Duration
	JoinTimeout  time.Duration
	AfterJoin    time.Duration
	AfterLeave   time.Duration
	MicToggle    time.Duration
}

func DefaultRoomTiming() RoomTiming {
	return RoomTiming{
		Settle:       5 * time.Second,
		Toggle:       time.Second,
		LoginPoll:    5 * time.Second,
		LoginTimeout: 60 * time.Second,
		JoinPoll:     500 * time.Millisecond,
		JoinTimeout:  10 * time.Second,
		AfterJoin:    3 * time.Second,
		AfterLeave:   2 * time.Second,
		MicToggle:    defaultMicToggle,
	}
}

// Room is the meeting lifecycle of one interview. It implements the
// conversation channel: Join enters the meeting with camera and mic off,
// turns captions on and waits for StartAt; Leave hangs up.
type Room struct {
	Page   Page
	Link   string
	Timing RoomTiming
	// StartAt delays the end of Join until the interview slot begins.
	StartAt time.Time
	// SessionID only labels log lines.
	SessionID string

	joined atomic.Bool
}

func NewRoom(page Page, link string) *Room {
	return &Room{
		Page:   page,
		Link:   link,
		Timing: DefaultRoomTiming(),
	}
}

func (r *Room) Join(ctx context.Context) error {
	slog.Info("Opening meeting", "sessionID", r.SessionID, "link", r.Link)
	if err := r.Page.Navigate(ctx, r.Link); err != nil {
		return fmt.Errorf("failed to open meeting: %w", err)
	}
	if err := pause(ctx, r.Timing.Settle); err != nil {
		return err
	}
	if err := r.awaitLogin(ctx); err != nil {
		return err
	}

	for _, chord := range []string{chordCamera, chordMic} {
		if err := r.Page.Press(ctx, chord); err != nil {
			slog.Warn("Failed to toggle device", "sessionID", r.SessionID, "chord", chord, "error", err)
		}
		if err := pause(ctx, r.Timing.Toggle); err != nil {
			return err
		}
	}

	if err := r.clickJoin(ctx); err != nil {
		return err
	}
	if err := pause(ctx, r.Timing.AfterJoin); err != nil {
		return err
	}
	r.joined.Store(true)
	slog.Info("In meeting", "sessionID", r.SessionID)

	if err := r.enableCaptions(ctx); err != nil {
		return err
	}
	return r.awaitStart(ctx)
}

// awaitLogin gives an operator the login window to sign in when the
// meeting host redirects to its account page.
func (r *Room) awaitLogin(ctx context.Context) error {
	url, err := r.Page.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page location: %w", err)
	}
	if !strings.Contains(url, loginHost) {
		return nil
	}

	slog.Warn("Login required, sign in to the meeting account in the browser",
		"sessionID", r.SessionID,
		"timeout", r.Timing.LoginTimeout)

	deadline := time.Now().Add(r.Timing.LoginTimeout)
	for time.Now().Before(deadline) {
		if err := pause(ctx, r.Timing.LoginPoll); err != nil {
			return err
		}
		url, err := r.Page.URL(ctx)
		if err == nil && strings.Contains(url, meetingHost) {
			slog.Info("Login successful", "sessionID", r.SessionID)
			return nil
		}
		slog.Debug("Waiting for login", "sessionID", r.SessionID, "remaining", time.Until(deadline).Round(time.Second))
	}
	return ErrLoginTimeout
}

// clickJoin presses the join button. A missing button is logged, not fatal:
// some rooms admit the account directly.
func (r *Room) clickJoin(ctx context.Context) error {
	deadline := time.Now().Add(r.Timing.JoinTimeout)
	for {
		ok, err := r.Page.ClickButton(ctx, joinLabels...)
		if err == nil && ok {
			slog.Info("Clicked join button", "sessionID", r.SessionID)
			return nil
		}
		if !time.Now().Before(deadline) {
			slog.Warn("Join button not found", "sessionID", r.SessionID, "error", err)
			return nil
		}
		if err := pause(ctx, r.Timing.JoinPoll); err != nil {
			return err
		}
	}
}

func (r *Room) enableCaptions(ctx context.Context) error {
	if err := r.Page.Press(ctx, chordCaptions); err != nil {
		slog.Warn("Failed to enable captions", "sessionID", r.SessionID, "error", err)
		return nil
	}
	slog.Info("Captions enabled", "sessionID", r.SessionID)
	return pause(ctx, r.Timing.Toggle)
}

func (r *Room) awaitStart(ctx context.Context) error {
	wait := time.Until(r.StartAt)
	if r.StartAt.IsZero() || wait <= 0 {
		return nil
	}
	slog.Info("Waiting for interview start",
		"sessionID", r.SessionID,
		"startAt", r.StartAt.Format("15:04"),
		"wait", wait.Round(time.Second))
	return pause(ctx, wait)
}

func (r *Room) Leave(ctx context.Context) error {
	if !r.joined.Swap(false) {
		return nil
	}
	slog.Info("Leaving meeting", "sessionID", r.SessionID)
	if err := r.Page.Press(ctx, chordLeave); err != nil {
		return fmt.Errorf("failed to leave meeting: %w", err)
	}
	return pause(ctx, r.Timing.AfterLeave)
}

func (r *Room) IsJoined() bool {
	return r.joined.Load()
}
