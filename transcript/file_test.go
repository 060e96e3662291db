package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/parley/conversation"
)

func sampleRecord() conversation.Record {
	at := time.Date(2026, 3, 2, 10, 30, 0, 0, time.Local)
	return conversation.Record{
		Session: conversation.SessionContext{
			ID:            "sess-42",
			CandidateName: "Priya Raman",
			Email:         "priya@example.com",
			Role:          "Backend Engineer",
			Channel:       conversation.ChannelMeeting,
		},
		Utterances: []conversation.Utterance{
			{Speaker: conversation.Agent, Text: "Hello Priya! Tell me about yourself.", Timestamp: at},
			{Speaker: conversation.Human, Text: "I have three years of\nexperience", Timestamp: at.Add(time.Minute)},
			{Speaker: conversation.Agent, Text: "Thanks, goodbye!", Timestamp: at.Add(2 * time.Minute)},
		},
		StartedAt:   at,
		CompletedAt: at.Add(3 * time.Minute),
		Reason:      conversation.EndMarker,
	}
}

func TestRender(t *testing.T) {
	want := "Interview Transcript: Priya Raman\n" +
		"Email: priya@example.com\n" +
		"Role: Backend Engineer\n" +
		"Session: sess-42\n" +
		"Channel: meeting\n" +
		"Date: 2026-03-02 10:33:00\n" +
		"Ended: end-marker\n" +
		rule + "\n\n" +
		"Agent: Hello Priya! Tell me about yourself.\n\n" +
		"Candidate: I have three years of experience\n\n" +
		"Agent: Thanks, goodbye!\n\n"
	assert.Equal(t, want, Render(sampleRecord()))
}

func TestFileSink_PersistWritesFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	require.NoError(t, sink.Persist(context.Background(), sampleRecord()))

	path := filepath.Join(dir, "Priya_Raman_20260302_103300_sess-42.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Candidate: I have three years of experience")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileSink_SharedLinkKeepsBothConversations(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	first := sampleRecord()
	first.Session.ID = "0f9c2d4e-1111-4a5b-9c1d-2e3f4a5b6c7d"
	first.Session.ExternalID = "https://meet.google.com/abc-defg-hij"
	second := first
	second.Session.ID = "7a8b9c0d-2222-4e5f-8a9b-0c1d2e3f4a5b"

	p1, err := sink.Write(first)
	require.NoError(t, err)
	p2, err := sink.Write(second)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, filepath.Join(dir, "Priya_Raman_20260302_103300_0f9c2d4e.txt"), p1)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileSink_ExternalIDWithoutSession(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()
	rec.Session.ID = ""
	rec.Session.ExternalID = "CA123"

	path, err := NewFileSink(dir).Write(rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Priya_Raman_20260302_103300_CA123.txt"), path)
}

func TestParse_RoundTripsHeaderAndBody(t *testing.T) {
	rec := sampleRecord()
	rec.Session.SalaryRange = "10-12 LPA"

	doc, err := Parse(Render(rec))
	require.NoError(t, err)
	assert.Equal(t, rec.Session, doc.Session)
	assert.Equal(t, conversation.EndMarker, doc.Reason)
	assert.True(t, doc.Date.Equal(rec.CompletedAt))
	require.Len(t, doc.Utterances, 3)
	assert.Equal(t, conversation.Human, doc.Utterances[1].Speaker)
	assert.Equal(t, "I have three years of experience", doc.Utterances[1].Text)
}

func TestParse_LegacyPhoneFormat(t *testing.T) {
	text := "Candidate: Arjun Mehta\nRole: Data Analyst\nSalary Range: 6-8 LPA\nDate: 2026-03-02 09:00:00\n--------------------\n\n" +
		"ASSISTANT: Hello Arjun\nUSER: Yes speaking\nASSISTANT: Great, how about Monday\nat ten?\n"

	doc, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "Arjun Mehta", doc.Session.CandidateName)
	assert.Equal(t, "6-8 LPA", doc.Session.SalaryRange)
	require.Len(t, doc.Utterances, 3)
	assert.Equal(t, "Great, how about Monday at ten?", doc.Utterances[2].Text)
}

func TestParse_NoHeader(t *testing.T) {
	_, err := Parse("just some words\nwith no structure")
	assert.ErrorIs(t, err, ErrNoHeader)
}
