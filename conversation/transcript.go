package conversation

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when an utterance is older than the last one recorded.
var ErrOutOfOrder = errors.New("utterance out of chronological order")

// Transcript is the ordered record of one conversation plus the fixed system
// instruction it was created with. It is owned by a single Policy.
type Transcript struct {
	instruction string
	utterances  []Utterance
}

// NewTranscript creates an empty transcript with the given system instruction.
func NewTranscript(instruction string) *Transcript {
	return &Transcript{instruction: instruction}
}

// Instruction returns the system instruction.
func (t *Transcript) Instruction() string {
	return t.instruction
}

// Append records an utterance. Utterances must arrive in chronological order.
func (t *Transcript) Append(u Utterance) error {
	if n := len(t.utterances); n > 0 && u.Timestamp.Before(t.utterances[n-1].Timestamp) {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			u.Timestamp.Format("15:04:05.000"), t.utterances[n-1].Timestamp.Format("15:04:05.000"))
	}
	t.utterances = append(t.utterances, u)
	return nil
}

// Len returns the number of recorded utterances.
func (t *Transcript) Len() int {
	return len(t.utterances)
}

// Utterances returns a copy of the recorded utterances, excluding the instruction.
func (t *Transcript) Utterances() []Utterance {
	out := make([]Utterance, len(t.utterances))
	copy(out, t.utterances)
	return out
}

// Window returns the completion request for the transcript: the system
// instruction followed by at most the last n utterances. n <= 0 means all.
func (t *Transcript) Window(n int) []Message {
	recent := t.utterances
	if n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	msgs := make([]Message, 0, len(recent)+1)
	msgs = append(msgs, Message{Role: RoleSystem, Content: t.instruction})
	for _, u := range recent {
		msgs = append(msgs, Message{Role: u.Speaker.Role(), Content: u.Text})
	}
	return msgs
}
