package meet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_JoinAndLeave(t *testing.T) {
	page := &fakePage{}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()

	require.NoError(t, room.Join(context.Background()))
	assert.True(t, room.IsJoined())
	assert.Equal(t, []string{"https://meet.google.com/abc-defg-hij"}, page.navigated)
	assert.Equal(t, []string{chordCamera, chordMic, chordCaptions}, page.Presses())

	require.NoError(t, room.Leave(context.Background()))
	assert.False(t, room.IsJoined())
	assert.Equal(t, chordLeave, page.Presses()[3])

	require.NoError(t, room.Leave(context.Background()))
	assert.Len(t, page.Presses(), 4, "second leave is a no-op")
}

func TestRoom_WaitsForLogin(t *testing.T) {
	page := &fakePage{urls: []string{
		"https://accounts.google.com/signin",
		"https://accounts.google.com/signin",
		"https://meet.google.com/abc-defg-hij",
	}}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()
	room.Timing.LoginTimeout = time.Second

	require.NoError(t, room.Join(context.Background()))
	assert.True(t, room.IsJoined())
}

func TestRoom_LoginTimeout(t *testing.T) {
	page := &fakePage{urls: []string{"https://accounts.google.com/signin"}}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()

	err := room.Join(context.Background())
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.False(t, room.IsJoined())
	assert.Empty(t, page.Presses())
}

func TestRoom_MissingJoinButtonStillJoins(t *testing.T) {
	page := &fakePage{clickAfter: 1 << 30}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()

	require.NoError(t, room.Join(context.Background()))
	assert.True(t, room.IsJoined())
	assert.Greater(t, page.clicks, 1)
}

func TestRoom_WaitsForStart(t *testing.T) {
	page := &fakePage{}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()
	room.StartAt = time.Now().Add(60 * time.Millisecond)

	start := time.Now()
	require.NoError(t, room.Join(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRoom_JoinCancelled(t *testing.T) {
	page := &fakePage{}
	room := NewRoom(page, "https://meet.google.com/abc-defg-hij")
	room.Timing = fastTiming()
	room.StartAt = time.Now().Add(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, room.Join(ctx), context.DeadlineExceeded)
}

func TestCaptionSource_FirstMatchingSelectorWins(t *testing.T) {
	page := &fakePage{
		textsErr: map[string]error{DefaultCaptionSelectors[0]: errors.New("detached")},
		texts: func(sel string, _, _ int) []string {
			switch sel {
			case DefaultCaptionSelectors[1]:
				return []string{"  ", ""}
			case DefaultCaptionSelectors[2]:
				return []string{"one", "two", "three", "four", "five", " six "}
			case DefaultCaptionSelectors[3]:
				return []string{"never read"}
			}
			return nil
		},
	}
	src := NewCaptionSource(page)
	assert.Equal(t, "two\nthree\nfour\nfive\nsix", src.Snapshot(context.Background()))
}

func TestCaptionSource_NoCaptions(t *testing.T) {
	src := NewCaptionSource(&fakePage{})
	assert.Equal(t, "", src.Snapshot(context.Background()))
}

func TestBrowserSpeaker_TogglesMicAroundLine(t *testing.T) {
	page := &fakePage{}
	s := NewBrowserSpeaker(page)
	s.MicToggle = time.Millisecond
	ctx := context.Background()

	require.NoError(t, s.Speak(ctx, `Say "hi"`+"\nplease"))
	s.FinishSpeaking(ctx)
	s.FinishSpeaking(ctx)

	assert.Equal(t, []string{chordMic, chordMic}, page.Presses())
	evals := page.Evals()
	require.Len(t, evals, 1)
	assert.Contains(t, evals[0], `"Say \"hi\" please"`)
	assert.Contains(t, evals[0], "0.9")
}

func TestBrowserSpeaker_UnmuteFailure(t *testing.T) {
	page := &fakePage{pressErr: errors.New("tab gone")}
	s := NewBrowserSpeaker(page)
	assert.Error(t, s.Speak(context.Background(), "hello"))
	assert.Empty(t, page.Evals())
}

func TestParseChord(t *testing.T) {
	key, mods := parseChord("Control+d")
	assert.Equal(t, "d", key)
	assert.Equal(t, []input.Modifier{input.ModifierCtrl}, mods)

	key, mods = parseChord("c")
	assert.Equal(t, "c", key)
	assert.Empty(t, mods)

	key, mods = parseChord("Ctrl+Shift+x")
	assert.Equal(t, "x", key)
	assert.Equal(t, []input.Modifier{input.ModifierCtrl, input.ModifierShift}, mods)
}
