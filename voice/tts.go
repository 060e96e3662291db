// Package voice speaks agent lines on the local audio device: text is
// synthesized by an OpenAI-compatible speech endpoint as WAV and played
// through PortAudio.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "tts-1"
	DefaultVoice   = "alloy"

	speechEndpoint = "/audio/speech"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

var (
	ErrEmptyText     = errors.New("voice: text is empty")
	ErrMissingAPIKey = errors.New("voice: api key is required")
)

// SynthesisError is a failed synthesis request.
type SynthesisError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voice: synthesis failed: %v", e.Err)
	}
	return fmt.Sprintf("voice: synthesis failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// TTS is an OpenAI-compatible text-to-speech client.
type TTS struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	speed   float64
	client  *http.Client
}

type Option func(*TTS)

func WithBaseURL(url string) Option {
	return func(t *TTS) {
		if url != "" {
			t.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithModel(model string) Option {
	return func(t *TTS) {
		if model != "" {
			t.model = model
		}
	}
}

func WithVoice(voice string) Option {
	return func(t *TTS) {
		if voice != "" {
			t.voice = voice
		}
	}
}

// WithSpeed sets the playback speed, 0.25 to 4.0.
func WithSpeed(speed float64) Option {
	return func(t *TTS) {
		if speed > 0 {
			t.speed = speed
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(t *TTS) {
		t.client = hc
	}
}

func NewTTS(apiKey string, opts ...Option) (*TTS, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	t := &TTS{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		voice:   DefaultVoice,
		speed:   1.0,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize returns text rendered as a WAV file.
func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	payload, err := json.Marshal(speechRequest{
		Model:          t.model,
		Input:          text,
		Voice:          t.voice,
		ResponseFormat: "wav",
		Speed:          t.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+speechEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	return audio, nil
}
