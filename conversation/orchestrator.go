package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultListenTimeout  = 120 * time.Second
	defaultSpeakGrace     = 30 * time.Second
	defaultPersistTimeout = 30 * time.Second
	defaultLeaveTimeout   = 15 * time.Second
)

// Orchestrator sequences one conversation end to end: it speaks the policy's
// lines behind the turn gate, listens for replies, and feeds them back to the
// policy until the policy ends the conversation. It is used once.
type Orchestrator struct {
	Session  SessionContext
	Policy   *Policy
	Speech   SpeechOutput
	Listener Listener
	// Channel is optional; when set it is joined before the first line and
	// always left after persistence.
	Channel  Channel
	Gate     *Gate
	Pacing   Pacing
	Sink     Sink
	Observer Observer

	ListenTimeout time.Duration
	// SpeakGrace bounds a Speech call beyond the paced estimate.
	SpeakGrace time.Duration

	persistOnce sync.Once
	persistErr  error
}

// Run drives the conversation. The transcript is persisted exactly once on
// every exit path, including cancellation, channel loss and panics.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if o.Policy == nil || o.Speech == nil || o.Listener == nil {
		return errors.New("orchestrator requires a policy, speech output and listener")
	}
	o.defaults()
	o.Policy.onRecord = func(u Utterance) {
		o.Observer.UtteranceRecorded(o.Session, u)
	}

	reason := EndNone
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Conversation aborted by panic",
				"sessionID", o.Session.ID,
				"panic", r)
			err = fmt.Errorf("conversation %s: panic: %v", o.Session.ID, r)
			reason = EndFault
		}
		o.Gate.Set(StateIdle)
		if perr := o.persist(ctx, reason); perr != nil {
			err = errors.Join(err, perr)
		}
		o.leave(ctx)
	}()

	if o.Channel != nil && !o.Channel.IsJoined() {
		if jerr := o.Channel.Join(ctx); jerr != nil {
			reason = EndChannelLost
			return fmt.Errorf("join session %s: %w", o.Session.ID, jerr)
		}
	}

	slog.Info("Conversation started",
		"sessionID", o.Session.ID,
		"candidate", o.Session.CandidateName,
		"role", o.Session.Role,
		"channel", o.Session.Channel)
	o.Observer.ConversationStarted(o.Session)

	reason = o.converse(ctx)

	switch reason {
	case EndCancelled, EndChannelLost, EndFault:
	default:
		if !o.Policy.Concluded() {
			o.speak(ctx, o.Policy.Closing().Line)
		}
	}

	slog.Info("Conversation ended",
		"sessionID", o.Session.ID,
		"reason", reason,
		"turns", o.Policy.Transcript().Len(),
		"elapsed", o.Policy.Elapsed().Round(time.Second))
	if reason == EndCancelled {
		return ctx.Err()
	}
	return nil
}

func (o *Orchestrator) converse(ctx context.Context) EndReason {
	step := o.Policy.Opening(ctx)
	o.speak(ctx, step.Line)
	if step.Done {
		return step.Reason
	}

	for turn := 1; ; turn++ {
		slog.Info("Turn",
			"sessionID", o.Session.ID,
			"turn", turn,
			"elapsedMin", int(o.Policy.Elapsed().Minutes()),
			"remainingMin", int(o.Policy.Remaining().Minutes()))

		if reason, stop := o.interrupted(ctx); stop {
			return reason
		}
		if step, over := o.Policy.Overtime(); over {
			slog.Info("Duration cap reached, concluding", "sessionID", o.Session.ID)
			o.speak(ctx, step.Line)
			return step.Reason
		}

		o.setState(StateListening)
		d := o.Listener.Listen(ctx, o.ListenTimeout)
		o.setState(StateIdle)
		o.Observer.ListenCompleted(o.Session, d)

		if reason, stop := o.interrupted(ctx); stop {
			return reason
		}
		if d.IsTimeout() {
			slog.Warn("No response detected",
				"sessionID", o.Session.ID,
				"attempt", o.Policy.NoResponses()+1)
		} else {
			slog.Info("Candidate", "sessionID", o.Session.ID, "text", d.Text)
		}

		step := o.Policy.Respond(ctx, d)
		o.speak(ctx, step.Line)
		if step.Done {
			return step.Reason
		}
	}
}

func (o *Orchestrator) interrupted(ctx context.Context) (EndReason, bool) {
	if ctx.Err() != nil {
		return EndCancelled, true
	}
	if o.Channel != nil && !o.Channel.IsJoined() {
		slog.Warn("Session channel lost", "sessionID", o.Session.ID)
		return EndChannelLost, true
	}
	return EndNone, false
}

// speak vocalizes text with the gate held, then waits out the paced estimate.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	if text == "" || ctx.Err() != nil {
		return
	}
	o.setState(StateAgentSpeaking)
	defer o.setState(StateIdle)

	slog.Info("Agent", "sessionID", o.Session.ID, "text", text)
	wait := o.Pacing.Estimate(text)

	speakCtx, cancel := context.WithTimeout(ctx, wait+o.SpeakGrace)
	if err := o.Speech.Speak(speakCtx, text); err != nil {
		slog.Warn("Speech output failed",
			"sessionID", o.Session.ID,
			"error", err)
	}
	cancel()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	if f, ok := o.Speech.(SpeechFinisher); ok {
		f.FinishSpeaking(ctx)
	}
}

func (o *Orchestrator) setState(s TurnState) {
	if prev := o.Gate.Set(s); prev != s {
		o.Observer.TurnStateChanged(o.Session, s)
	}
}

func (o *Orchestrator) persist(ctx context.Context, reason EndReason) error {
	o.persistOnce.Do(func() {
		defer o.Observer.ConversationEnded(o.Session, reason)
		if o.Sink == nil {
			slog.Warn("No transcript sink configured", "sessionID", o.Session.ID)
			return
		}
		rec := Record{
			Session:     o.Session,
			Utterances:  o.Policy.Transcript().Utterances(),
			StartedAt:   o.Policy.StartedAt(),
			CompletedAt: o.Policy.clock.Now(),
			Reason:      reason,
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPersistTimeout)
		defer cancel()
		if err := o.Sink.Persist(pctx, rec); err != nil {
			slog.Error("Failed to persist transcript",
				"sessionID", o.Session.ID,
				"error", err)
			o.persistErr = fmt.Errorf("persist transcript %s: %w", o.Session.ID, err)
		}
	})
	return o.persistErr
}

func (o *Orchestrator) leave(ctx context.Context) {
	if o.Channel == nil {
		return
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultLeaveTimeout)
	defer cancel()
	if err := o.Channel.Leave(lctx); err != nil {
		slog.Error("Failed to leave session",
			"sessionID", o.Session.ID,
			"error", err)
	}
}

func (o *Orchestrator) defaults() {
	if o.Gate == nil {
		o.Gate = NewGate()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.ListenTimeout <= 0 {
		o.ListenTimeout = defaultListenTimeout
	}
	if o.SpeakGrace <= 0 {
		o.SpeakGrace = defaultSpeakGrace
	}
}
