package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/bosley/parley/conversation"
)

const (
	defaultTurnWait      = 10 * time.Second
	defaultGatherTimeout = 10
	defaultVoice         = "alice"
	defaultRetainEnded   = time.Minute
	defaultListenTimeout = 60 * time.Second

	processSpeechPath = "/process_speech"
	continuePath      = "/continue"

	signatureHeader = "X-Twilio-Signature"
)

// Config tunes the webhook service.
type Config struct {
	// PublicURL is the externally visible base URL the provider calls.
	PublicURL string
	// AuthToken signs provider requests; required when ValidateSignatures is set.
	AuthToken          string
	ValidateSignatures bool

	// TurnWait bounds how long a webhook waits for the next agent line
	// before asking the provider to redirect back.
	TurnWait      time.Duration
	GatherTimeout int
	Voice         string
	ListenTimeout time.Duration
	// RetainEnded keeps a finished call's bridge reachable for late webhooks.
	RetainEnded time.Duration
}

func (c *Config) defaults() {
	if c.TurnWait <= 0 {
		c.TurnWait = defaultTurnWait
	}
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = defaultGatherTimeout
	}
	if c.Voice == "" {
		c.Voice = defaultVoice
	}
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = defaultListenTimeout
	}
	if c.RetainEnded <= 0 {
		c.RetainEnded = defaultRetainEnded
	}
}

// WebhookRecorder counts handled webhook requests.
type WebhookRecorder interface {
	WebhookHandled(route string, code int)
}

// Deps are the collaborators each phone conversation is built from.
type Deps struct {
	Completer conversation.Completer
	Profile   conversation.Profile
	Sink      conversation.Sink
	Observer  conversation.Observer
	Metrics   WebhookRecorder
}

// Service answers provider webhooks and runs one orchestrator per call.
type Service struct {
	cfg       Config
	deps      Deps
	registry  *Registry
	validator *client.RequestValidator

	base context.Context
	wg   sync.WaitGroup
}

// NewService builds the webhook service. Conversations run under ctx.
func NewService(ctx context.Context, cfg Config, deps Deps) (*Service, error) {
	cfg.defaults()
	if deps.Completer == nil {
		return nil, errors.New("telephony: completer is required")
	}
	if deps.Profile.Name == "" {
		deps.Profile = conversation.PhoneScreen()
	}
	s := &Service{
		cfg:      cfg,
		deps:     deps,
		registry: NewRegistry(),
		base:     ctx,
	}
	if cfg.ValidateSignatures {
		if cfg.AuthToken == "" || cfg.PublicURL == "" {
			return nil, errors.New("telephony: signature validation needs an auth token and public URL")
		}
		v := client.NewRequestValidator(cfg.AuthToken)
		s.validator = &v
	}
	return s, nil
}

// Registry exposes the live call registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Register mounts the webhook routes on router.
func (s *Service) Register(router *mux.Router) {
	router.HandleFunc("/voice", s.wrap("/voice", s.handleVoice)).Methods("POST")
	router.HandleFunc(processSpeechPath, s.wrap(processSpeechPath, s.handleProcessSpeech)).Methods("POST")
	router.HandleFunc(continuePath, s.wrap(continuePath, s.handleContinue)).Methods("POST")
	router.HandleFunc("/status", s.wrap("/status", s.handleStatus)).Methods("POST")
}

// Wait blocks until every running conversation has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) handleVoice(w http.ResponseWriter, r *http.Request) {
	callSid := r.PostFormValue("CallSid")
	if callSid == "" {
		http.Error(w, "Missing CallSid", http.StatusBadRequest)
		return
	}

	if b, ok := s.registry.Get(callSid); ok {
		slog.Warn("Repeated call start, resuming", "callSid", callSid)
		s.respond(w, r, b)
		return
	}

	q := r.URL.Query()
	session := conversation.SessionContext{
		ID:            uuid.NewString(),
		CandidateName: queryOr(q.Get("candidate_name"), "Candidate"),
		Email:         q.Get("email"),
		Role:          queryOr(q.Get("role"), "the position"),
		SalaryRange:   queryOr(q.Get("salary_range"), "competitive"),
		ExternalID:    callSid,
		Channel:       conversation.ChannelPhone,
	}

	slog.Info("Call started",
		"callSid", callSid,
		"sessionID", session.ID,
		"candidate", session.CandidateName,
		"role", session.Role,
		"salary", session.SalaryRange)

	b := NewBridge(session)
	if !s.registry.Add(callSid, b) {
		b, _ = s.registry.Get(callSid)
		s.respond(w, r, b)
		return
	}
	s.start(b)
	s.respond(w, r, b)
}

func (s *Service) handleProcessSpeech(w http.ResponseWriter, r *http.Request) {
	callSid := r.PostFormValue("CallSid")
	b, ok := s.registry.Get(callSid)
	if !ok {
		slog.Error("Speech result for unknown call", "callSid", callSid)
		s.write(w, []twiml.Element{
			&twiml.VoiceSay{Message: "I'm sorry, I lost the connection details. Goodbye.", Voice: s.cfg.Voice},
			&twiml.VoiceHangup{},
		})
		return
	}

	result := r.PostFormValue("SpeechResult")
	slog.Debug("Speech result",
		"callSid", callSid,
		"text", result,
		"confidence", r.PostFormValue("Confidence"))
	b.Deliver(result)
	s.respond(w, r, b)
}

func (s *Service) handleContinue(w http.ResponseWriter, r *http.Request) {
	b, ok := s.registry.Get(r.PostFormValue("CallSid"))
	if !ok {
		s.write(w, []twiml.Element{&twiml.VoiceHangup{}})
		return
	}
	s.respond(w, r, b)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	callSid := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	slog.Info("Call status", "callSid", callSid, "status", status)

	if terminalStatus(status) {
		if b, ok := s.registry.Get(callSid); ok {
			b.Drop()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) start(b *Bridge) {
	session := b.Session()
	orch := &conversation.Orchestrator{
		Session:       session,
		Policy:        conversation.NewPolicy(s.deps.Profile, session, s.deps.Completer),
		Speech:        b,
		Listener:      b,
		Channel:       b,
		Gate:          b.Gate(),
		Sink:          s.deps.Sink,
		Observer:      s.deps.Observer,
		ListenTimeout: s.cfg.ListenTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := orch.Run(s.base); err != nil {
			slog.Error("Phone conversation failed",
				"sessionID", session.ID,
				"callSid", session.ExternalID,
				"error", err)
		}
		time.AfterFunc(s.cfg.RetainEnded, func() {
			if cur, ok := s.registry.Get(session.ExternalID); ok && cur == b {
				s.registry.Remove(session.ExternalID)
			}
		})
	}()
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, b *Bridge) {
	ds, complete := b.Next(r.Context(), s.cfg.TurnWait)
	s.write(w, s.render(ds, complete))
}

func (s *Service) render(ds []Directive, complete bool) []twiml.Element {
	els := make([]twiml.Element, 0, len(ds)+2)
	for _, d := range ds {
		switch d.Kind {
		case DirectiveSay:
			els = append(els, &twiml.VoiceSay{Message: d.Text, Voice: s.cfg.Voice})
		case DirectiveGather:
			els = append(els, &twiml.VoiceGather{
				Input:         "speech",
				Action:        processSpeechPath,
				Method:        http.MethodPost,
				SpeechTimeout: "auto",
				Timeout:       strconv.Itoa(s.cfg.GatherTimeout),
				OptionalAttributes: map[string]string{
					"actionOnEmptyResult": "true",
				},
			})
		case DirectiveHangup:
			els = append(els, &twiml.VoiceHangup{})
		}
	}
	if !complete {
		els = append(els,
			&twiml.VoicePause{Length: "1"},
			&twiml.VoiceRedirect{Url: continuePath, Method: http.MethodPost},
		)
	}
	return els
}

func (s *Service) write(w http.ResponseWriter, els []twiml.Element) {
	doc, err := twiml.Voice(els)
	if err != nil {
		slog.Error("Failed to render TwiML", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(doc))
}

// wrap validates the provider signature and counts the request.
func (s *Service) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			if s.deps.Metrics != nil {
				s.deps.Metrics.WebhookHandled(route, sw.code)
			}
		}()

		if err := r.ParseForm(); err != nil {
			http.Error(sw, "Invalid form", http.StatusBadRequest)
			return
		}
		if s.validator != nil && !s.validSignature(r) {
			slog.Warn("Rejected webhook with bad signature", "route", route, "remote", r.RemoteAddr)
			http.Error(sw, "Invalid signature", http.StatusForbidden)
			return
		}
		next(sw, r)
	}
}

func (s *Service) validSignature(r *http.Request) bool {
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	url := strings.TrimRight(s.cfg.PublicURL, "/") + r.URL.RequestURI()
	return s.validator.Validate(url, params, r.Header.Get(signatureHeader))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func terminalStatus(status string) bool {
	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	}
	return false
}

func queryOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
