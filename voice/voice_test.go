package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

func encodeWAV(t *testing.T, rate uint32, channels uint16, frames int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), channels, rate, 16)
	samples := make([]wav.Sample, frames)
	for i := range samples {
		samples[i].Values[0] = i % 100
		samples[i].Values[1] = -(i % 100)
	}
	require.NoError(t, w.WriteSamples(samples))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	clip, err := Decode(encodeWAV(t, 8000, 1, 4000))
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Equal(t, 1, clip.Channels)
	assert.Len(t, clip.Samples, 4000)
	assert.Equal(t, int16(42), clip.Samples[42])
	assert.Equal(t, 500*time.Millisecond, clip.Duration())
}

func TestDecode_Stereo(t *testing.T) {
	clip, err := Decode(encodeWAV(t, 16000, 2, 16000))
	require.NoError(t, err)
	assert.Len(t, clip.Samples, 32000)
	assert.Equal(t, int16(7), clip.Samples[14], "channels are interleaved")
	assert.Equal(t, time.Second, clip.Duration())
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a wav file at all"))
	assert.Error(t, err)
}

func TestTTS_Synthesize(t *testing.T) {
	audio := encodeWAV(t, 24000, 1, 240)
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio)
	}))
	defer srv.Close()

	tts, err := NewTTS("key", WithBaseURL(srv.URL+"/"), WithVoice("nova"), WithSpeed(0.9))
	require.NoError(t, err)

	out, err := tts.Synthesize(context.Background(), "  Hello there  ")
	require.NoError(t, err)
	assert.Equal(t, audio, out)
	assert.Equal(t, speechRequest{Model: DefaultModel, Input: "Hello there", Voice: "nova", ResponseFormat: "wav", Speed: 0.9}, got)
}

func TestTTS_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tts, err := NewTTS("key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = tts.Synthesize(context.Background(), "hello")
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, http.StatusTooManyRequests, synthErr.StatusCode)
	assert.Equal(t, "quota exceeded", synthErr.Body)

	_, err = tts.Synthesize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = NewTTS("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

type stubSynth struct {
	audio []byte
	err   error
}

func (s stubSynth) Synthesize(context.Context, string) ([]byte, error) {
	return s.audio, s.err
}

type recordingPlayer struct {
	clips []*Clip
}

func (p *recordingPlayer) Play(_ context.Context, clip *Clip) error {
	p.clips = append(p.clips, clip)
	return nil
}

func TestDeviceSpeaker(t *testing.T) {
	player := &recordingPlayer{}
	s := &DeviceSpeaker{TTS: stubSynth{audio: encodeWAV(t, 8000, 1, 800)}, Player: player}

	require.NoError(t, s.Speak(context.Background(), "Hello"))
	require.Len(t, player.clips, 1)
	assert.Equal(t, 100*time.Millisecond, player.clips[0].Duration())

	failing := &DeviceSpeaker{TTS: stubSynth{err: errors.New("offline")}, Player: player}
	assert.Error(t, failing.Speak(context.Background(), "Hello"))
	assert.Len(t, player.clips, 1)
}
