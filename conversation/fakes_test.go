package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errService = errors.New("service unavailable")

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	seen    [][]Message
}

func (c *scriptedCompleter) Complete(_ context.Context, msgs []Message, _ CompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	c.seen = append(c.seen, msgs)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", errService
}

func (c *scriptedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingSpeech struct {
	gate    *Gate
	lines   []string
	states  []TurnState
	err     error
	panicOn string
}

func (s *recordingSpeech) Speak(_ context.Context, text string) error {
	if s.panicOn != "" && text == s.panicOn {
		panic("speaker exploded")
	}
	s.lines = append(s.lines, text)
	if s.gate != nil {
		s.states = append(s.states, s.gate.State())
	}
	return s.err
}

type scriptedListener struct {
	gate      *Gate
	decisions []Decision
	calls     int
	gated     int
	onListen  func(call int)
}

func (l *scriptedListener) Listen(_ context.Context, _ time.Duration) Decision {
	if l.gate != nil && l.gate.AgentSpeaking() {
		l.gated++
	}
	i := l.calls
	l.calls++
	if l.onListen != nil {
		l.onListen(i)
	}
	if i < len(l.decisions) {
		return l.decisions[i]
	}
	return TimedOut()
}

type memorySink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *memorySink) Persist(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

type fakeChannel struct {
	joined  bool
	joinErr error
	joins   int
	leaves  int
}

func (c *fakeChannel) Join(context.Context) error {
	c.joins++
	if c.joinErr != nil {
		return c.joinErr
	}
	c.joined = true
	return nil
}

func (c *fakeChannel) Leave(context.Context) error {
	c.leaves++
	c.joined = false
	return nil
}

func (c *fakeChannel) IsJoined() bool { return c.joined }

func testSession() SessionContext {
	return SessionContext{
		ID:            "sess-1",
		CandidateName: "Priya Raman",
		Email:         "priya@example.com",
		Role:          "Backend Engineer",
		SalaryRange:   "10-12 LPA",
		Channel:       ChannelMeeting,
	}
}
