package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/parley/conversation"
)

type queueCompleter struct {
	mu      sync.Mutex
	replies []string
}

func (q *queueCompleter) Complete(context.Context, []conversation.Message, conversation.CompletionOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) == 0 {
		return "", context.DeadlineExceeded
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

func (s *recordSink) all() []conversation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Record(nil), s.records...)
}

type webhookCounter struct {
	mu    sync.Mutex
	codes map[string][]int
}

func (w *webhookCounter) WebhookHandled(route string, code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.codes == nil {
		w.codes = make(map[string][]int)
	}
	w.codes[route] = append(w.codes[route], code)
}

func newTestService(t *testing.T, cfg Config, replies ...string) (*Service, *httptest.Server, *recordSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordSink{}
	if cfg.TurnWait == 0 {
		cfg.TurnWait = 2 * time.Second
	}
	svc, err := NewService(ctx, cfg, Deps{
		Completer: &queueCompleter{replies: replies},
		Sink:      sink,
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	svc.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		svc.Wait()
	})
	return svc, srv, sink
}

func post(t *testing.T, srv *httptest.Server, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := http.PostForm(srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	var b bytes.Buffer
	_, err = b.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b.String()
}

func TestService_CallFlow(t *testing.T) {
	svc, srv, sink := newTestService(t, Config{},
		"Congratulations on being shortlisted! The range is 10 to 12 LPA, does 10 work?",
		"Perfect, we will see you Monday at 10. Goodbye! [END_CALL]",
	)

	code, body := post(t, srv, "/voice?candidate_name=Priya+Raman&role=Backend+Engineer&salary_range=10-12+LPA",
		url.Values{"CallSid": {"CA100"}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Hello Priya Raman, this is a call from Agentic HR. Am I speaking with Priya Raman?")
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, `action="/process_speech"`)
	assert.Contains(t, body, `input="speech"`)

	_, body = post(t, srv, "/process_speech", url.Values{"CallSid": {"CA100"}, "SpeechResult": {"Yes, this is Priya"}})
	assert.Contains(t, body, "Congratulations on being shortlisted!")
	assert.Contains(t, body, "<Gather")

	_, body = post(t, srv, "/process_speech", url.Values{"CallSid": {"CA100"}, "SpeechResult": {"Ten works, Monday at 10"}})
	assert.Contains(t, body, "Perfect, we will see you Monday at 10. Goodbye!")
	assert.NotContains(t, body, "END_CALL")
	assert.Contains(t, body, "<Hangup")

	svc.Wait()
	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, conversation.EndMarker, rec.Reason)
	assert.Equal(t, "CA100", rec.Session.ExternalID)
	assert.Equal(t, "10-12 LPA", rec.Session.SalaryRange)
	require.Len(t, rec.Utterances, 5)
	assert.Equal(t, "Ten works, Monday at 10", rec.Utterances[3].Text)
}

func TestService_EmptySpeechResultPromptsRetry(t *testing.T) {
	_, srv, _ := newTestService(t, Config{})

	post(t, srv, "/voice", url.Values{"CallSid": {"CA200"}})
	_, body := post(t, srv, "/process_speech", url.Values{"CallSid": {"CA200"}, "SpeechResult": {""}})
	assert.Contains(t, body, "trouble hearing you")
	assert.Contains(t, body, "<Gather")
}

func TestService_StatusCallbackEndsConversation(t *testing.T) {
	svc, srv, sink := newTestService(t, Config{})

	post(t, srv, "/voice", url.Values{"CallSid": {"CA300"}})
	code, _ := post(t, srv, "/status", url.Values{"CallSid": {"CA300"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, code)

	svc.Wait()
	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, conversation.EndChannelLost, records[0].Reason)
}

func TestService_UnknownCall(t *testing.T) {
	_, srv, _ := newTestService(t, Config{})

	_, body := post(t, srv, "/process_speech", url.Values{"CallSid": {"CA404"}, "SpeechResult": {"hello"}})
	assert.Contains(t, body, "lost the connection details")
	assert.Contains(t, body, "<Hangup")

	_, body = post(t, srv, "/continue", url.Values{"CallSid": {"CA404"}})
	assert.Contains(t, body, "<Hangup")
}

func TestService_SlowTurnRedirects(t *testing.T) {
	svc, srv, _ := newTestService(t, Config{TurnWait: 30 * time.Millisecond})

	b := NewBridge(conversation.SessionContext{ID: "s", ExternalID: "CA500"})
	require.True(t, svc.Registry().Add("CA500", b))
	require.NoError(t, b.Speak(context.Background(), "Let me check"))

	_, body := post(t, srv, "/continue", url.Values{"CallSid": {"CA500"}})
	assert.Contains(t, body, "Let me check")
	assert.Contains(t, body, "<Pause")
	assert.Contains(t, body, "<Redirect")
	assert.Contains(t, body, "/continue")
}

func TestService_MissingCallSid(t *testing.T) {
	_, srv, _ := newTestService(t, Config{})
	code, _ := post(t, srv, "/voice", url.Values{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b bytes.Buffer
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestService_SignatureValidation(t *testing.T) {
	counter := &webhookCounter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := NewService(ctx, Config{
		PublicURL:          "https://parley.example.com",
		AuthToken:          "tok",
		ValidateSignatures: true,
	}, Deps{Completer: &queueCompleter{}, Sink: &recordSink{}, Metrics: counter})
	require.NoError(t, err)
	router := mux.NewRouter()
	svc.Register(router)

	form := url.Values{"CallSid": {"CA404"}}

	req := httptest.NewRequest(http.MethodPost, "/continue", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, "bogus")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/continue", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, sign("tok", "https://parley.example.com/continue", form))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int{http.StatusForbidden, http.StatusOK}, counter.codes["/continue"])
}

func TestNewService_RequiresCompleter(t *testing.T) {
	_, err := NewService(context.Background(), Config{}, Deps{})
	assert.Error(t, err)
}
