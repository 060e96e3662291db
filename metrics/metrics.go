// Package metrics exports conversation metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bosley/parley/conversation"
)

const namespace = "parley"

// Recorder is a conversation observer backed by a private registry.
type Recorder struct {
	registry *prometheus.Registry

	conversationsActive    *prometheus.GaugeVec
	conversationsTotal     *prometheus.CounterVec
	conversationDuration   *prometheus.HistogramVec
	utterancesTotal        *prometheus.CounterVec
	listensTotal           *prometheus.CounterVec
	completionDuration     *prometheus.HistogramVec
	completionRequests     *prometheus.CounterVec
	webhookRequestsTotal   *prometheus.CounterVec
	callsPlacedTotal       *prometheus.CounterVec
	transcriptsScoredTotal *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewRecorder registers every metric plus the Go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]time.Time),

		conversationsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Number of conversations in progress",
		}, []string{"channel"}),

		conversationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Finished conversations by termination reason",
		}, []string{"channel", "reason"}),

		conversationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_duration_seconds",
			Help:      "Conversation duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 2400, 3000},
		}, []string{"channel"}),

		utterancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances recorded by speaker",
		}, []string{"channel", "speaker"}),

		listensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listens_total",
			Help:      "Listen cycles by outcome",
		}, []string{"channel", "outcome"}), // outcome: utterance, empty, timeout

		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Duration of completion service calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"model"}),

		completionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Completion service calls by status",
		}, []string{"model", "status"}), // status: success, error

		webhookRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Telephony webhook requests by route and status code",
		}, []string{"route", "code"}),

		callsPlacedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_placed_total",
			Help:      "Outbound calls by status",
		}, []string{"status"}),

		transcriptsScoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_scored_total",
			Help:      "Transcripts scored by status",
		}, []string{"status"}),
	}

	r.registry.MustRegister(
		r.conversationsActive,
		r.conversationsTotal,
		r.conversationDuration,
		r.utterancesTotal,
		r.listensTotal,
		r.completionDuration,
		r.completionRequests,
		r.webhookRequestsTotal,
		r.callsPlacedTotal,
		r.transcriptsScoredTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *Recorder) ConversationStarted(s conversation.SessionContext) {
	r.mu.Lock()
	r.started[s.ID] = time.Now()
	r.mu.Unlock()
	r.conversationsActive.WithLabelValues(string(s.Channel)).Inc()
}

func (r *Recorder) UtteranceRecorded(s conversation.SessionContext, u conversation.Utterance) {
	r.utterancesTotal.WithLabelValues(string(s.Channel), u.Speaker.String()).Inc()
}

func (r *Recorder) TurnStateChanged(conversation.SessionContext, conversation.TurnState) {}

func (r *Recorder) ListenCompleted(s conversation.SessionContext, d conversation.Decision) {
	outcome := "utterance"
	switch {
	case d.IsTimeout():
		outcome = "timeout"
	case d.Text == "":
		outcome = "empty"
	}
	r.listensTotal.WithLabelValues(string(s.Channel), outcome).Inc()
}

func (r *Recorder) ConversationEnded(s conversation.SessionContext, reason conversation.EndReason) {
	channel := string(s.Channel)
	r.conversationsTotal.WithLabelValues(channel, string(reason)).Inc()

	r.mu.Lock()
	start, ok := r.started[s.ID]
	delete(r.started, s.ID)
	r.mu.Unlock()
	if ok {
		r.conversationsActive.WithLabelValues(channel).Dec()
		r.conversationDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
	}
}

// WebhookHandled counts one telephony webhook request.
func (r *Recorder) WebhookHandled(route string, code int) {
	r.webhookRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// CallPlaced counts one outbound call attempt.
func (r *Recorder) CallPlaced(err error) {
	r.callsPlacedTotal.WithLabelValues(status(err)).Inc()
}

// TranscriptScored counts one scoring attempt.
func (r *Recorder) TranscriptScored(err error) {
	r.transcriptsScoredTotal.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// InstrumentCompleter wraps c so each completion call is timed and counted.
func (r *Recorder) InstrumentCompleter(c conversation.Completer, model string) conversation.Completer {
	return &instrumentedCompleter{next: c, model: model, rec: r}
}

type instrumentedCompleter struct {
	next  conversation.Completer
	model string
	rec   *Recorder
}

func (c *instrumentedCompleter) Complete(ctx context.Context, msgs []conversation.Message, opts conversation.CompletionOptions) (string, error) {
	start := time.Now()
	reply, err := c.next.Complete(ctx, msgs, opts)
	c.rec.completionDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	c.rec.completionRequests.WithLabelValues(c.model, status(err)).Inc()
	return reply, err
}
