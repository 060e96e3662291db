package meet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
)

type fakePage struct {
	mu sync.Mutex

	urls     []string
	urlCalls int

	clickAfter int
	clicks     int

	// texts sees the number of scripts evaluated and of caption reads
	// since the last one.
	texts    func(selector string, evals, reads int) []string
	textsErr map[string]error
	reads    int

	navigated []string
	presses   []string
	evals     []string
	pressErr  error
	closed    bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) == 0 {
		return "https://meet.google.com/abc-defg-hij", nil
	}
	i := p.urlCalls
	if i >= len(p.urls) {
		i = len(p.urls) - 1
	}
	p.urlCalls++
	return p.urls[i], nil
}

func (p *fakePage) Press(_ context.Context, chord string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pressErr != nil {
		return p.pressErr
	}
	p.presses = append(p.presses, chord)
	return nil
}

func (p *fakePage) ClickButton(_ context.Context, labels ...string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	return p.clicks > p.clickAfter, nil
}

func (p *fakePage) Texts(_ context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if err := p.textsErr[selector]; err != nil {
		return nil, err
	}
	if p.texts == nil {
		return nil, nil
	}
	return p.texts(selector, len(p.evals), p.reads), nil
}

func (p *fakePage) Eval(_ context.Context, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append(p.evals, script)
	p.reads = 0
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) Presses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.presses...)
}

func (p *fakePage) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

type fakeOpener struct {
	page *fakePage
	err  error
}

func (o *fakeOpener) Open(context.Context) (Page, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.page, nil
}

type queueCompleter struct {
	mu      sync.Mutex
	replies []string
}

func (q *queueCompleter) Complete(context.Context, []conversation.Message, conversation.CompletionOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := q.replies[0]
	q.replies = q.replies[1:]
	return r, nil
}

type recordSink struct {
	mu      sync.Mutex
	records []conversation.Record
}

func (s *recordSink) Persist(_ context.Context, rec conversation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func fastTiming() RoomTiming {
	return RoomTiming{
		Settle:       time.Millisecond,
		Toggle:       time.Millisecond,
		LoginPoll:    5 * time.Millisecond,
		LoginTimeout: 30 * time.Millisecond,
		JoinPoll:     time.Millisecond,
		JoinTimeout:  20 * time.Millisecond,
		AfterJoin:    time.Millisecond,
		AfterLeave:   time.Millisecond,
		MicToggle:    time.Millisecond,
	}
}

func countChord(presses []string, chord string) int {
	n := 0
	for _, p := range presses {
		if strings.EqualFold(p, chord) {
			n++
		}
	}
	return n
}
