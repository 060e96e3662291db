// Package telephony runs conversations over provider-driven phone calls.
// The provider asks the webhook what to do next; the bridge turns the
// orchestrator's speak and listen calls into those answers.
package telephony

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/listen"
)

// DirectiveKind is one instruction returned to the provider.
type DirectiveKind int

const (
	DirectiveSay DirectiveKind = iota
	DirectiveGather
	DirectiveHangup
)

// Directive is an instruction for the provider, rendered as TwiML by the service.
type Directive struct {
	Kind DirectiveKind
	Text string
}

// ErrCallEnded is returned by Speak once the call is over.
var ErrCallEnded = errors.New("telephony: call ended")

const directiveBuffer = 16

// Bridge joins one phone call to one orchestrator. It is the speech output,
// the listener and the session channel for that conversation.
type Bridge struct {
	session conversation.SessionContext
	gate    *conversation.Gate
	inbox   *listen.Inbox

	directives chan Directive

	ctx     context.Context
	cancel  context.CancelFunc
	joined  atomic.Bool
	hungUp  atomic.Bool
	endOnce sync.Once
}

// NewBridge returns a bridge for session. The call is already connected
// when the provider first hits the webhook, so Join only marks it.
func NewBridge(session conversation.SessionContext) *Bridge {
	gate := conversation.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		session:    session,
		gate:       gate,
		inbox:      listen.NewInbox(session.ID, gate),
		directives: make(chan Directive, directiveBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Session returns the bridged session.
func (b *Bridge) Session() conversation.SessionContext {
	return b.session
}

// Gate returns the bridge's turn gate; the orchestrator must use it.
func (b *Bridge) Gate() *conversation.Gate {
	return b.gate
}

// Speak queues a Say directive for the next webhook response.
func (b *Bridge) Speak(ctx context.Context, text string) error {
	return b.push(ctx, Directive{Kind: DirectiveSay, Text: text})
}

// Listen asks the provider to gather speech and waits for the result. It
// returns a timeout when the call drops mid-listen.
func (b *Bridge) Listen(ctx context.Context, timeout time.Duration) conversation.Decision {
	b.inbox.Drain()
	if err := b.push(ctx, Directive{Kind: DirectiveGather}); err != nil {
		return conversation.TimedOut()
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()
	return b.inbox.Listen(lctx, timeout)
}

// Deliver hands a recognized speech result from the provider to the listener.
func (b *Bridge) Deliver(text string) bool {
	return b.inbox.Deliver(text)
}

func (b *Bridge) Join(context.Context) error {
	if b.ctx.Err() != nil {
		return ErrCallEnded
	}
	b.joined.Store(true)
	return nil
}

// Leave ends the call: the next webhook response hangs up.
func (b *Bridge) Leave(context.Context) error {
	b.joined.Store(false)
	if !b.hungUp.Load() {
		select {
		case b.directives <- Directive{Kind: DirectiveHangup}:
		default:
			slog.Warn("Directive queue full, hangup not queued", "sessionID", b.session.ID)
		}
	}
	b.end()
	return nil
}

func (b *Bridge) IsJoined() bool {
	return b.joined.Load() && b.ctx.Err() == nil
}

// Drop records that the provider reported the call finished.
func (b *Bridge) Drop() {
	slog.Info("Call dropped by provider", "sessionID", b.session.ID, "callSid", b.session.ExternalID)
	b.hungUp.Store(true)
	b.end()
}

// Done is closed once the call is over.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Next collects queued directives for one webhook response. It returns as
// soon as a Gather or Hangup is queued, or when wait elapses; complete
// reports which of the two happened.
func (b *Bridge) Next(ctx context.Context, wait time.Duration) (out []Directive, complete bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case d := <-b.directives:
			out = append(out, d)
			if d.Kind == DirectiveGather || d.Kind == DirectiveHangup {
				return out, true
			}
		case <-b.ctx.Done():
			for {
				select {
				case d := <-b.directives:
					out = append(out, d)
					if d.Kind == DirectiveHangup {
						return out, true
					}
				default:
					return append(out, Directive{Kind: DirectiveHangup}), true
				}
			}
		case <-timer.C:
			return out, false
		case <-ctx.Done():
			return out, false
		}
	}
}

func (b *Bridge) push(ctx context.Context, d Directive) error {
	if b.ctx.Err() != nil {
		return ErrCallEnded
	}
	select {
	case b.directives <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return ErrCallEnded
	}
}

func (b *Bridge) end() {
	b.endOnce.Do(b.cancel)
}
