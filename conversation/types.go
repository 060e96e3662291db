// Package conversation implements the turn-taking engine that drives a spoken
// conversation between the agent and a candidate: the dialogue policy that
// owns the transcript and talks to the language model, and the orchestrator
// that alternates speaking and listening until the conversation concludes.
package conversation

import (
	"context"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker int

const (
	Agent Speaker = iota
	Human
)

func (s Speaker) String() string {
	if s == Human {
		return "Candidate"
	}
	return "Agent"
}

// Role returns the completion-service role for the speaker.
func (s Speaker) Role() string {
	if s == Human {
		return RoleUser
	}
	return RoleAssistant
}

// Completion-service message roles.
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Utterance is one speaker's contribution to a conversation.
type Utterance struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DecisionKind is the outcome of one listen cycle.
type DecisionKind int

const (
	DecisionUtterance DecisionKind = iota
	DecisionTimeout
)

// Decision is the terminal output of a listen cycle.
type Decision struct {
	Kind DecisionKind
	Text string
}

// Heard builds an utterance decision.
func Heard(text string) Decision {
	return Decision{Kind: DecisionUtterance, Text: text}
}

// TimedOut builds a timeout decision.
func TimedOut() Decision {
	return Decision{Kind: DecisionTimeout}
}

// IsTimeout reports whether no human reply was received.
func (d Decision) IsTimeout() bool {
	return d.Kind == DecisionTimeout
}

// ChannelKind names the transport a conversation runs over.
type ChannelKind string

const (
	ChannelPhone   ChannelKind = "phone"
	ChannelMeeting ChannelKind = "meeting"
)

// SessionContext is the read-only description of one call or meeting.
type SessionContext struct {
	ID            string      `json:"id"`
	CandidateName string      `json:"candidateName"`
	Email         string      `json:"email,omitempty"`
	Role          string      `json:"role"`
	SalaryRange   string      `json:"salaryRange,omitempty"`
	ExternalID    string      `json:"externalId,omitempty"`
	Channel       ChannelKind `json:"channel"`
}

// Vars returns the placeholder values used when rendering profile templates.
func (s SessionContext) Vars() map[string]string {
	return map[string]string{
		"candidate_name": s.CandidateName,
		"email":          s.Email,
		"role":           s.Role,
		"salary_range":   s.SalaryRange,
	}
}

// EndReason records why a conversation terminated.
type EndReason string

const (
	EndNone              EndReason = ""
	EndMarker            EndReason = "end-marker"
	EndPhrase            EndReason = "end-phrase"
	EndDuration          EndReason = "duration-cap"
	EndNoResponse        EndReason = "no-response"
	EndCompletionFailure EndReason = "completion-failure"
	EndChannelLost       EndReason = "channel-lost"
	EndCancelled         EndReason = "cancelled"
	EndFault             EndReason = "fault"
)

// Message is one entry of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single completion request.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Completer produces the next assistant message for an ordered message list.
// Any non-2xx response or timeout is reported as an error.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// SpeechOutput vocalizes agent lines. It is best-effort.
type SpeechOutput interface {
	Speak(ctx context.Context, text string) error
}

// SpeechFinisher is implemented by speech outputs that need a hook once the
// paced playback window has elapsed, for example to mute a microphone.
type SpeechFinisher interface {
	FinishSpeaking(ctx context.Context)
}

// Listener waits for the other party's reply.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) Decision
}

// Channel is the session lifecycle of a call or meeting.
type Channel interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	IsJoined() bool
}

// Record is the persisted artifact of one completed conversation.
type Record struct {
	Session     SessionContext `json:"session"`
	Utterances  []Utterance    `json:"utterances"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Reason      EndReason      `json:"reason"`
}

// Sink stores completed conversations.
type Sink interface {
	Persist(ctx context.Context, rec Record) error
}
