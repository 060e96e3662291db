package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestRender(t *testing.T) {
	got := Render("Hi {{candidate_name}}, the {{role}} pays {{salary_range}}.", testSession())
	assert.Equal(t, "Hi Priya Raman, the Backend Engineer pays 10-12 LPA.", got)
}

func TestPolicy_OpeningFromModel(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Welcome Priya! Tell me about yourself."}}
	p := NewPolicy(Interview(), testSession(), c)

	step := p.Opening(context.Background())
	assert.Equal(t, "Welcome Priya! Tell me about yourself.", step.Line)
	assert.False(t, step.Done)
	require.Len(t, c.seen, 1)
	require.Len(t, c.seen[0], 1)
	assert.Equal(t, RoleSystem, c.seen[0][0].Role)
	assert.Contains(t, c.seen[0][0].Content, "Priya Raman")
}

func TestPolicy_OpeningFallsBackToTemplate(t *testing.T) {
	c := &scriptedCompleter{errs: []error{errService}}
	p := NewPolicy(Interview(), testSession(), c)

	step := p.Opening(context.Background())
	assert.Equal(t, "Hello Priya Raman! Welcome to your interview for the Backend Engineer position. Please tell me about yourself.", step.Line)
	assert.False(t, step.Done)
	assert.Equal(t, 1, p.Transcript().Len())
}

func TestPolicy_PhoneOpeningIsTemplated(t *testing.T) {
	c := &scriptedCompleter{}
	p := NewPolicy(PhoneScreen(), testSession(), c)

	step := p.Opening(context.Background())
	assert.Equal(t, "Hello Priya Raman, this is a call from Agentic HR. Am I speaking with Priya Raman?", step.Line)
	assert.Zero(t, c.Calls())
}

func TestPolicy_EndMarkerIsStripped(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!", "Thanks, goodbye! [END_INTERVIEW]"}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	step := p.Respond(context.Background(), Heard("I have three years of experience"))
	assert.Equal(t, "Thanks, goodbye!", step.Line)
	assert.True(t, step.Done)
	assert.Equal(t, EndMarker, step.Reason)
	assert.True(t, p.Concluded())

	utts := p.Transcript().Utterances()
	last := utts[len(utts)-1]
	assert.Equal(t, Agent, last.Speaker)
	assert.Equal(t, "Thanks, goodbye!", last.Text)
	assert.NotContains(t, last.Text, "[END_INTERVIEW]")
}

func TestPolicy_MarkerOnlyReplyUsesClosing(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!", "[END_INTERVIEW]"}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	step := p.Respond(context.Background(), Heard("that's all"))
	assert.Equal(t, Render(Interview().Closing, testSession()), step.Line)
	assert.True(t, step.Done)
}

func TestPolicy_EndPhrase(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Perfect, see you Monday at 10. Have a great day!"}}
	p := NewPolicy(PhoneScreen(), testSession(), c)
	p.Opening(context.Background())

	step := p.Respond(context.Background(), Heard("Monday at ten works"))
	assert.True(t, step.Done)
	assert.Equal(t, EndPhrase, step.Reason)
	assert.Equal(t, "Perfect, see you Monday at 10. Have a great day!", step.Line)
}

func TestPolicy_NoResponseCap(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!"}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	first := p.Respond(context.Background(), TimedOut())
	assert.Equal(t, Interview().RetryPrompt, first.Line)
	assert.False(t, first.Done)

	second := p.Respond(context.Background(), TimedOut())
	assert.False(t, second.Done)

	third := p.Respond(context.Background(), TimedOut())
	assert.True(t, third.Done)
	assert.Equal(t, EndNoResponse, third.Reason)
	assert.Empty(t, third.Line)
	assert.Equal(t, 1, c.Calls(), "no completion after the no-response cap")
}

func TestPolicy_ReplyResetsNoResponseCount(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!", "Great, tell me more."}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	p.Respond(context.Background(), TimedOut())
	p.Respond(context.Background(), TimedOut())
	assert.Equal(t, 2, p.NoResponses())

	p.Respond(context.Background(), Heard("Sorry, I'm here"))
	assert.Zero(t, p.NoResponses())
}

func TestPolicy_EmptyUtteranceAsksToRepeat(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!"}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	step := p.Respond(context.Background(), Heard("   "))
	assert.Equal(t, Interview().RepeatPrompt, step.Line)
	assert.False(t, step.Done)
	assert.Zero(t, p.NoResponses())
	assert.Equal(t, 1, c.Calls())
}

func TestPolicy_MidConversationFailureEnds(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Hello!"}, errs: []error{nil, errService}}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())

	step := p.Respond(context.Background(), Heard("I build APIs"))
	assert.True(t, step.Done)
	assert.Equal(t, EndCompletionFailure, step.Reason)
	assert.Empty(t, step.Line)
	assert.False(t, p.Concluded())

	closing := p.Closing()
	assert.Equal(t, Render(Interview().Closing, testSession()), closing.Line)
	assert.True(t, p.Concluded())
	assert.Equal(t, EndCompletionFailure, closing.Reason)
}

func TestPolicy_DurationCap(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fc := clocktesting.NewFakePassiveClock(start)
	c := &scriptedCompleter{replies: []string{"Hello!", "Next question."}}
	p := NewPolicy(Interview(), testSession(), c, WithClock(fc))
	p.Opening(context.Background())

	_, over := p.Overtime()
	assert.False(t, over)

	fc.SetTime(start.Add(40 * time.Minute))
	step := p.Respond(context.Background(), Heard("my final answer about salary"))
	assert.True(t, step.Done)
	assert.Equal(t, EndDuration, step.Reason)
	assert.Equal(t, Render(Interview().Closing, testSession()), step.Line)
	assert.Equal(t, 1, c.Calls(), "duration cap is checked before the model")

	utts := p.Transcript().Utterances()
	require.GreaterOrEqual(t, len(utts), 2)
	assert.Equal(t, Human, utts[1].Speaker)
	assert.Equal(t, "my final answer about salary", utts[1].Text)
}

func TestPolicy_DurationCapAfterTimeout(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fc := clocktesting.NewFakePassiveClock(start)
	c := &scriptedCompleter{replies: []string{"Hello!"}}
	p := NewPolicy(Interview(), testSession(), c, WithClock(fc))
	p.Opening(context.Background())

	fc.SetTime(start.Add(41 * time.Minute))
	step := p.Respond(context.Background(), TimedOut())
	assert.Equal(t, EndDuration, step.Reason)
	for _, u := range p.Transcript().Utterances() {
		assert.NotEqual(t, Human, u.Speaker)
	}
}

func TestPolicy_WindowBoundsContext(t *testing.T) {
	replies := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		replies = append(replies, "Question?")
	}
	c := &scriptedCompleter{replies: replies}
	p := NewPolicy(Interview(), testSession(), c)
	p.Opening(context.Background())
	for i := 0; i < 6; i++ {
		p.Respond(context.Background(), Heard("answer"))
	}

	last := c.seen[len(c.seen)-1]
	require.Len(t, last, 9)
	assert.Equal(t, RoleSystem, last[0].Role)
	assert.Equal(t, RoleUser, last[len(last)-1].Role)
}
