package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/parley/conversation"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, r, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestComplete_SendsRequest(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request, req chatRequest) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, 150, req.MaxTokens)
		assert.InDelta(t, 0.7, req.Temperature, 1e-9)
		assert.Nil(t, req.ResponseFormat)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`))
	})

	c, err := New("secret", WithBaseURL(srv.URL+"/"), WithModel("test-model"))
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), []conversation.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, conversation.CompletionOptions{Temperature: 0.7, MaxTokens: 150})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got)
}

func TestComplete_JSONMode(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, req chatRequest) {
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"scheduled\":true}"}}]}`))
	})

	c, err := New("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	var out struct {
		Scheduled bool `json:"scheduled"`
	}
	require.NoError(t, CompleteJSON(context.Background(), c, nil, 0.1, &out))
	assert.True(t, out.Scheduled)
}

func TestComplete_Non2xxIsAPIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	})

	c, err := New("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil, conversation.CompletionOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
	assert.Contains(t, apiErr.Body, "slow down")
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	c, err := New("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil, conversation.CompletionOptions{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_Timeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ chatRequest) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c, err := New("k", WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil, conversation.CompletionOptions{})
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Sure! ```json\n{\"a\": {\"b\": 1}}\n``` hope that helps")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, err = ExtractJSON("no object here")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ExtractJSON("{not json}")
	assert.ErrorIs(t, err, ErrNoJSON)
}
