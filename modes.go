package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/twilio/twilio-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bosley/parley/config"
	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/extract"
	"github.com/bosley/parley/feed"
	"github.com/bosley/parley/llm"
	"github.com/bosley/parley/meet"
	"github.com/bosley/parley/metrics"
	"github.com/bosley/parley/scribe"
	"github.com/bosley/parley/server"
	"github.com/bosley/parley/telephony"
	"github.com/bosley/parley/transcript"
	"github.com/bosley/parley/voice"
)

func newCompleter(cfg config.Config, rec *metrics.Recorder) (conversation.Completer, error) {
	c, err := llm.New(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout))
	if err != nil {
		return nil, err
	}
	return rec.InstrumentCompleter(c, c.Model()), nil
}

// newStore returns the live session store and a function releasing it.
func newStore(ctx context.Context, cfg config.StoreConfig) (transcript.Store, func(), error) {
	if cfg.Backend != config.StoreRedis {
		return transcript.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Using redis session store", "addr", cfg.RedisAddr)
	store := transcript.NewRedisStore(client, transcript.WithPrefix(cfg.Prefix), transcript.WithTTL(cfg.TTL))
	return store, func() { client.Close() }, nil
}

// observe fans conversation events out to metrics, the live store and the feed.
func observe(rec *metrics.Recorder, store transcript.Store, hub *feed.Hub) conversation.Observer {
	return conversation.Observers{rec, transcript.NewRecorder(store), hub}
}

func serve(ctx context.Context, cfg config.Config, rec *metrics.Recorder) error {
	completer, err := newCompleter(cfg, rec)
	if err != nil {
		return err
	}
	store, release, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer release()
	hub := feed.NewHub()

	svc, err := telephony.NewService(ctx, telephony.Config{
		PublicURL:          cfg.Telephony.PublicURL,
		AuthToken:          cfg.Telephony.AuthToken,
		ValidateSignatures: cfg.Telephony.ValidateSignatures,
		TurnWait:           cfg.Telephony.TurnWait,
		GatherTimeout:      cfg.Telephony.GatherTimeout,
		Voice:              cfg.Telephony.Voice,
		ListenTimeout:      cfg.Telephony.ListenTimeout,
	}, telephony.Deps{
		Completer: completer,
		Profile:   cfg.Conversation.Apply(conversation.PhoneScreen()),
		Sink:      transcript.NewFileSink(cfg.Transcripts.PhoneDir),
		Observer:  observe(rec, store, hub),
		Metrics:   rec,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:     cfg.Server.Addr,
		CertFile: cfg.Server.CertFile,
		KeyFile:  cfg.Server.KeyFile,
	}, server.Deps{
		Webhooks: svc,
		Store:    store,
		Feed:     hub,
		Metrics:  rec.Handler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		svc.Wait()
		return nil
	})
	return g.Wait()
}

func dial(ctx context.Context, cfg config.Config, rec *metrics.Recorder, shortlist, role, salary string) error {
	cands, err := telephony.ReadShortlist(shortlist)
	if err != nil {
		return err
	}
	slog.Info("Loaded shortlist", "path", shortlist, "candidates", len(cands))

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.Telephony.AccountSID,
		Password: cfg.Telephony.AuthToken,
	})

	d := &telephony.Dialer{
		Calls:       client.Api,
		From:        cfg.Telephony.FromNumber,
		PublicURL:   cfg.Telephony.PublicURL,
		CountryCode: cfg.Telephony.CountryCode,
		Metrics:     rec,
	}
	if cfg.Telephony.CallsPerMinute > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(cfg.Telephony.CallsPerMinute/60), 1)
	}

	failed := 0
	results := d.DialAll(ctx, cands, role, salary)
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("Dialing complete", "placed", len(results)-failed, "failed", failed)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(results) > 0 && failed == len(results) {
		return fmt.Errorf("all %d calls failed", failed)
	}
	return nil
}

func interview(ctx context.Context, cfg config.Config, rec *metrics.Recorder) error {
	completer, err := newCompleter(cfg, rec)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	contacts, err := meet.ReadContacts(cfg.Meeting.Contacts)
	if err != nil {
		slog.Warn("No contacts loaded; missing emails stay unset", "path", cfg.Meeting.Contacts, "error", err)
		contacts = map[string]string{}
	}
	store, release, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer release()
	hub := feed.NewHub()

	iv := meet.NewInterviewer(
		&meet.Browser{ProfileDir: cfg.Meeting.ProfileDir, Headless: cfg.Meeting.Headless},
		completer,
		transcript.NewFileSink(cfg.Transcripts.InterviewDir))
	iv.Profile = cfg.Conversation.Apply(conversation.Interview())
	iv.Observer = observe(rec, store, hub)
	iv.Pacing = cfg.Conversation.Pacing()
	iv.Silence = cfg.Conversation.Silence
	iv.PollInterval = cfg.Conversation.PollInterval
	iv.ListenTimeout = cfg.Conversation.ListenTimeout
	iv.StartDelay = cfg.Meeting.StartDelay
	iv.Timing.LoginTimeout = cfg.Meeting.LoginTimeout
	iv.SpeechRate = cfg.Speech.Rate

	if cfg.Speech.Output == config.SpeechDevice {
		opts := []voice.Option{
			voice.WithModel(cfg.Speech.Model),
			voice.WithVoice(cfg.Speech.Voice),
			voice.WithSpeed(cfg.Speech.Speed),
		}
		if cfg.Speech.BaseURL != "" {
			opts = append(opts, voice.WithBaseURL(cfg.Speech.BaseURL))
		}
		tts, err := voice.NewTTS(cfg.Speech.APIKey, opts...)
		if err != nil {
			return err
		}
		speaker := voice.NewDeviceSpeaker(tts)
		speaker.Player = voice.DevicePlayer{Device: cfg.Speech.Device}
		iv.Output = speaker
		// Device playback blocks for the whole line.
		iv.Pacing = conversation.Pacing{}
	}

	sched := meet.NewScheduler(func(context.Context) ([]meet.Meeting, error) {
		return meet.ReadSchedule(cfg.Meeting.Schedule, loc, contacts)
	}, iv.Conduct)
	sched.Interval = cfg.Meeting.CheckInterval
	sched.Lead = cfg.Meeting.Lead
	sched.MaxConcurrent = cfg.Meeting.MaxConcurrent

	srv := server.New(server.Config{
		Addr:     cfg.Server.Addr,
		CertFile: cfg.Server.CertFile,
		KeyFile:  cfg.Server.KeyFile,
	}, server.Deps{
		Store:   store,
		Feed:    hub,
		Metrics: rec.Handler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	return g.Wait()
}

func score(ctx context.Context, cfg config.Config, rec *metrics.Recorder) error {
	completer, err := newCompleter(cfg, rec)
	if err != nil {
		return err
	}
	s, err := scribe.New(scribe.Config{
		UnverifiedDir: cfg.Transcripts.InterviewDir,
		VerifiedDir:   cfg.Scoring.VerifiedDir,
		ResultsFile:   cfg.Scoring.ResultsFile,
		Workers:       cfg.Scoring.Workers,
		Settle:        cfg.Scoring.Settle,
	}, completer)
	if err != nil {
		return err
	}
	s.Metrics = rec
	return s.Run(ctx)
}

func extractBookings(ctx context.Context, cfg config.Config, rec *metrics.Recorder) error {
	completer, err := newCompleter(cfg, rec)
	if err != nil {
		return err
	}
	emails, err := extract.ReadApplications(cfg.Extract.Applications)
	if err != nil {
		slog.Warn("No applications loaded; emails fall back to transcript headers",
			"path", cfg.Extract.Applications, "error", err)
	}
	e, err := extract.New(completer, emails)
	if err != nil {
		return err
	}
	if cfg.Extract.Workers > 0 {
		e.Workers = cfg.Extract.Workers
	}

	interviews, err := e.Dir(ctx, cfg.Transcripts.PhoneDir)
	if err != nil {
		return err
	}
	if len(interviews) == 0 {
		slog.Info("No scheduled interviews found")
		return nil
	}
	if err := extract.WriteSchedule(cfg.Extract.Output, interviews); err != nil {
		return err
	}
	slog.Info("Schedule saved", "path", cfg.Extract.Output, "interviews", len(interviews))
	return nil
}
