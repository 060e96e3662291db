package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Step is the policy's answer for one turn.
type Step struct {
	// Line is the next agent line to speak, empty when there is nothing to say.
	Line string
	// Done reports that the conversation is over once Line has been spoken.
	Done   bool
	Reason EndReason
}

// Policy owns the transcript and decides what the agent says next.
type Policy struct {
	profile   Profile
	session   SessionContext
	completer Completer
	clock     clock.PassiveClock
	onRecord  func(Utterance)

	transcript *Transcript
	started    time.Time
	noResponse int
	concluded  bool
	reason     EndReason
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithClock sets the time source used for timestamps and the duration cap.
func WithClock(c clock.PassiveClock) PolicyOption {
	return func(p *Policy) {
		p.clock = c
	}
}

// NewPolicy builds a policy for one conversation. The system instruction is
// rendered from the profile and fixed for the life of the transcript.
func NewPolicy(profile Profile, session SessionContext, completer Completer, opts ...PolicyOption) *Policy {
	p := &Policy{
		profile:   profile,
		session:   session,
		completer: completer,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.transcript = NewTranscript(Render(profile.Instruction, session))
	p.started = p.clock.Now()
	return p
}

// Transcript returns the conversation transcript.
func (p *Policy) Transcript() *Transcript {
	return p.transcript
}

// StartedAt returns when the conversation began.
func (p *Policy) StartedAt() time.Time {
	return p.started
}

// Elapsed returns the conversation duration so far.
func (p *Policy) Elapsed() time.Duration {
	return p.clock.Since(p.started)
}

// Remaining returns the time left before the duration cap.
func (p *Policy) Remaining() time.Duration {
	if p.profile.MaxDuration <= 0 {
		return 0
	}
	return p.profile.MaxDuration - p.Elapsed()
}

// Concluded reports whether a final line has already been produced.
func (p *Policy) Concluded() bool {
	return p.concluded
}

// Reason returns the termination reason, if any.
func (p *Policy) Reason() EndReason {
	return p.reason
}

// NoResponses returns the current consecutive no-response count.
func (p *Policy) NoResponses() int {
	return p.noResponse
}

// Opening produces the first agent line. A failed completion falls back to the
// templated greeting.
func (p *Policy) Opening(ctx context.Context) Step {
	p.started = p.clock.Now()
	if p.profile.GreetFromModel && p.completer != nil {
		reply, err := p.complete(ctx)
		if err == nil && strings.TrimSpace(reply) != "" {
			return p.interpret(reply)
		}
		slog.Warn("Greeting completion failed, using template",
			"sessionID", p.session.ID,
			"error", err)
	}
	return p.say(Render(p.profile.Greeting, p.session))
}

// Overtime reports whether the duration cap has been reached and, if so,
// returns a locally synthesized closing step.
func (p *Policy) Overtime() (Step, bool) {
	if p.profile.MaxDuration <= 0 || p.Elapsed() < p.profile.MaxDuration {
		return Step{}, false
	}
	p.reason = EndDuration
	step := p.conclude(Render(p.profile.Closing, p.session))
	return step, true
}

// Respond consumes the outcome of a listen cycle and returns the next step.
// A reply heard as the cap passes is recorded before the closing.
func (p *Policy) Respond(ctx context.Context, d Decision) Step {
	text := strings.TrimSpace(d.Text)
	heard := !d.IsTimeout() && text != ""
	if heard {
		p.record(Human, text)
	}
	if step, over := p.Overtime(); over {
		return step
	}

	if d.IsTimeout() {
		p.noResponse++
		if p.profile.MaxNoResponse > 0 && p.noResponse >= p.profile.MaxNoResponse {
			p.reason = EndNoResponse
			return Step{Done: true, Reason: EndNoResponse}
		}
		return p.say(Render(p.profile.RetryPrompt, p.session))
	}

	p.noResponse = 0
	if !heard {
		return p.say(Render(p.profile.RepeatPrompt, p.session))
	}

	if p.completer == nil {
		p.reason = EndCompletionFailure
		return Step{Done: true, Reason: EndCompletionFailure}
	}
	reply, err := p.complete(ctx)
	if err != nil || strings.TrimSpace(reply) == "" {
		slog.Error("Failed to generate reply",
			"sessionID", p.session.ID,
			"error", err)
		p.reason = EndCompletionFailure
		return Step{Done: true, Reason: EndCompletionFailure}
	}
	return p.interpret(reply)
}

// Closing returns the forced closing line when the conversation ended without
// the model concluding it. It returns an empty step once a final line exists.
func (p *Policy) Closing() Step {
	if p.concluded {
		return Step{Done: true, Reason: p.reason}
	}
	return p.conclude(Render(p.profile.Closing, p.session))
}

// interpret turns a model reply into a step, honoring the end marker and end phrases.
func (p *Policy) interpret(reply string) Step {
	reply = strings.TrimSpace(reply)

	if marker := p.profile.EndMarker; marker != "" && strings.Contains(reply, marker) {
		slog.Info("Conversation conclusion signaled", "sessionID", p.session.ID)
		line := strings.TrimSpace(strings.ReplaceAll(reply, marker, ""))
		if line == "" {
			line = Render(p.profile.Closing, p.session)
		}
		p.reason = EndMarker
		return p.conclude(line)
	}

	lower := strings.ToLower(reply)
	for _, phrase := range p.profile.EndPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			p.reason = EndPhrase
			return p.conclude(reply)
		}
	}

	return p.say(reply)
}

func (p *Policy) complete(ctx context.Context) (string, error) {
	msgs := p.transcript.Window(p.profile.HistoryWindow)
	return p.completer.Complete(ctx, msgs, CompletionOptions{
		Temperature: p.profile.Temperature,
		MaxTokens:   p.profile.MaxTokens,
	})
}

func (p *Policy) say(line string) Step {
	p.record(Agent, line)
	return Step{Line: line}
}

func (p *Policy) conclude(line string) Step {
	p.record(Agent, line)
	p.concluded = true
	return Step{Line: line, Done: true, Reason: p.reason}
}

func (p *Policy) record(speaker Speaker, text string) {
	u := Utterance{Speaker: speaker, Text: text, Timestamp: p.clock.Now()}
	if err := p.transcript.Append(u); err != nil {
		slog.Warn("Dropping utterance", "sessionID", p.session.ID, "error", err)
		return
	}
	if p.onRecord != nil {
		p.onRecord(u)
	}
}
