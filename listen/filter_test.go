package listen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const meetSnapshot = `language
English
format_size
Font size
circle
Font color
settings
Open caption settings
You
Hello Priya, welcome. Please tell me about yourself.
Priya Raman
I have three years of experience
building payment APIs in Go`

func TestCaptionFilter_Clean(t *testing.T) {
	f := NewCaptionFilter()
	got := f.Clean(meetSnapshot)
	assert.Equal(t, "Hello Priya, welcome. Please tell me about yourself. I have three years of experience building payment APIs in Go", got)
}

func TestCaptionFilter_CleanIsIdempotent(t *testing.T) {
	f := NewCaptionFilter()
	inputs := []string{
		meetSnapshot,
		"",
		"settings\nYou\n",
		"hello\nThere\nworld",
		"Okay sure\nFont color\nI think so",
		"  spaced   out  \n\n  lines ",
		"Open caption\nsettings",
	}
	for _, in := range inputs {
		once := f.Clean(in)
		assert.Equal(t, once, f.Clean(once), "input %q", in)
	}
}

func TestCaptionFilter_LatestHumanBlock(t *testing.T) {
	f := NewCaptionFilter()
	assert.Equal(t, "I have three years of experience building payment APIs in Go", f.LatestHumanBlock(meetSnapshot))
}

func TestCaptionFilter_LatestHumanBlockOnCumulativeSnapshots(t *testing.T) {
	f := NewCaptionFilter()
	first := "Priya Raman\nI worked at a fintech startup"
	second := first + "\nYou\nWhat did you build there?\nPriya Raman\nA ledger service"
	third := second + "\nYou\nHow large was the team?\nPriya Raman\nAbout eight engineers"

	assert.Equal(t, "I worked at a fintech startup", f.LatestHumanBlock(first))
	assert.Equal(t, "A ledger service", f.LatestHumanBlock(second))
	assert.Equal(t, "About eight engineers", f.LatestHumanBlock(third))
}

func TestCaptionFilter_AgentBlockIsDiscarded(t *testing.T) {
	f := NewCaptionFilter()
	snap := "Priya Raman\nan earlier answer\nYou\nThanks, what is your notice period?"
	assert.Empty(t, f.LatestHumanBlock(snap))
}

func TestCaptionFilter_UnlabeledLinesAreNotHuman(t *testing.T) {
	f := NewCaptionFilter()
	assert.Empty(t, f.LatestHumanBlock("Hello Priya, welcome. Please tell me about yourself."))
	assert.Empty(t, f.LatestHumanBlock("language\nEnglish\nHello Priya, welcome."))
	assert.Equal(t, "my answer", f.LatestHumanBlock("an agent line whose label scrolled away\nPriya Raman\nmy answer"))
}

func TestCaptionFilter_LabelFalsePositive(t *testing.T) {
	// A short capitalized answer is read as a speaker label and lost.
	f := NewCaptionFilter()
	snap := "Priya Raman\nNew York"
	assert.Empty(t, f.LatestHumanBlock(snap))
	assert.Empty(t, f.Clean("Yes"))
	assert.Equal(t, "yes please", f.Clean("yes please"))
}

func TestIsLabel(t *testing.T) {
	assert.True(t, IsLabel("Priya Raman"))
	assert.True(t, IsLabel("Priya"))
	assert.False(t, IsLabel("Priya R. Raman"))
	assert.False(t, IsLabel("Priya raman"))
	assert.False(t, IsLabel(""))
}

func TestCaptionFilter_CleanTranscript(t *testing.T) {
	f := NewCaptionFilter()
	in := "Interview Transcript: Priya Raman\nEmail: priya@example.com\n====\nAgent: Hello\nPriya Raman\nFont size\nCandidate: Hi\nCandidate: Yes"
	want := "Interview Transcript: Priya Raman\nEmail: priya@example.com\n====\nAgent: Hello\nCandidate: Hi\nCandidate: Yes"
	assert.Equal(t, want, f.CleanTranscript(in))
}
