package meet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/listen"
)

const DefaultStartDelay = time.Minute

// Interviewer conducts one scheduled interview: it opens a browser, joins
// the room, and runs the conversation over captions and browser speech.
type Interviewer struct {
	Browser   Opener
	Completer conversation.Completer
	Profile   conversation.Profile
	Sink      conversation.Sink
	Observer  conversation.Observer
	Pacing    conversation.Pacing
	// Output replaces browser speech synthesis when set.
	Output conversation.SpeechOutput
	// SpeechRate overrides the browser synthesis rate when positive.
	SpeechRate float64

	Silence       time.Duration
	PollInterval  time.Duration
	ListenTimeout time.Duration
	// StartDelay is how long after the slot the interview begins.
	StartDelay time.Duration
	Timing     RoomTiming
}

func NewInterviewer(browser Opener, completer conversation.Completer, sink conversation.Sink) *Interviewer {
	return &Interviewer{
		Browser:       browser,
		Completer:     completer,
		Profile:       conversation.Interview(),
		Sink:          sink,
		Pacing:        conversation.DefaultPacing(),
		Silence:       listen.DefaultSilence,
		PollInterval:  listen.DefaultPollInterval,
		ListenTimeout: listen.DefaultListenTimeout,
		StartDelay:    DefaultStartDelay,
		Timing:        DefaultRoomTiming(),
	}
}

// Conduct runs the interview for m and closes the browser afterwards.
func (iv *Interviewer) Conduct(ctx context.Context, m Meeting) error {
	if iv.Browser == nil || iv.Completer == nil {
		return errors.New("meet: interviewer requires a browser and completer")
	}

	session := conversation.SessionContext{
		ID:            uuid.NewString(),
		CandidateName: m.CandidateName,
		Email:         m.Email,
		Role:          m.Role,
		ExternalID:    m.Link,
		Channel:       conversation.ChannelMeeting,
	}
	slog.Info("Joining meeting",
		"sessionID", session.ID,
		"candidate", m.CandidateName,
		"email", m.Email)

	page := &tab{opener: iv.Browser}
	defer page.Close()

	room := NewRoom(page, m.Link)
	room.Timing = iv.Timing
	room.SessionID = session.ID
	if !m.Scheduled.IsZero() {
		room.StartAt = m.Scheduled.Add(iv.StartDelay)
	}

	gate := conversation.NewGate()
	detector := listen.NewPollDetector(NewCaptionSource(page), gate)
	detector.SessionID = session.ID
	if iv.Silence > 0 {
		detector.Silence = iv.Silence
	}
	if iv.PollInterval > 0 {
		detector.Interval = iv.PollInterval
	}

	speaker := NewBrowserSpeaker(page)
	speaker.MicToggle = iv.Timing.MicToggle
	speaker.Output = iv.Output
	if iv.SpeechRate > 0 {
		speaker.Rate = iv.SpeechRate
	}

	orch := &conversation.Orchestrator{
		Session:       session,
		Policy:        conversation.NewPolicy(iv.Profile, session, iv.Completer),
		Speech:        speaker,
		Listener:      detector,
		Channel:       &browserRoom{Room: room, tab: page},
		Gate:          gate,
		Pacing:        iv.Pacing,
		Sink:          iv.Sink,
		Observer:      iv.Observer,
		ListenTimeout: iv.ListenTimeout,
	}
	return orch.Run(ctx)
}
