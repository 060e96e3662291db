package listen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bosley/parley/conversation"
)

func TestInbox_DeliversUtterance(t *testing.T) {
	gate := conversation.NewGate()
	gate.Set(conversation.StateListening)
	b := NewInbox("CA1", gate)

	go func() {
		time.Sleep(5 * time.Millisecond)
		b.Deliver("  Yes, this is Priya  ")
	}()
	got := b.Listen(context.Background(), time.Second)
	assert.Equal(t, conversation.Heard("Yes, this is Priya"), got)
}

func TestInbox_DropsWhileAgentSpeaking(t *testing.T) {
	gate := conversation.NewGate()
	gate.Set(conversation.StateAgentSpeaking)
	b := NewInbox("CA1", gate)

	assert.False(t, b.Deliver("echo"))
	gate.Set(conversation.StateListening)
	assert.True(t, b.Listen(context.Background(), 20*time.Millisecond).IsTimeout())
}

func TestInbox_EmptyResultIsTimeout(t *testing.T) {
	b := NewInbox("CA1", nil)
	assert.True(t, b.Deliver(""))
	assert.True(t, b.Listen(context.Background(), time.Second).IsTimeout())
}

func TestInbox_SinglePendingResult(t *testing.T) {
	b := NewInbox("CA1", nil)
	assert.True(t, b.Deliver("first"))
	assert.False(t, b.Deliver("second"))

	b.Drain()
	assert.True(t, b.Listen(context.Background(), 10*time.Millisecond).IsTimeout())
}
