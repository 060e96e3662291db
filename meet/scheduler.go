package meet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const (
	DefaultCheckInterval = time.Minute
	DefaultLead          = 5 * time.Minute
	defaultMaxConcurrent = 2
)

// Scheduler polls the interview schedule and starts a meeting once its slot
// is within the lead window. Each meeting is started at most once.
type Scheduler struct {
	// Load returns the current schedule.
	Load func(ctx context.Context) ([]Meeting, error)
	// Conduct runs one interview to completion.
	Conduct func(ctx context.Context, m Meeting) error

	Interval      time.Duration
	Lead          time.Duration
	MaxConcurrent int
	Clock         clock.WithTicker

	mu        sync.Mutex
	processed map[string]struct{}
}

func NewScheduler(load func(context.Context) ([]Meeting, error), conduct func(context.Context, Meeting) error) *Scheduler {
	return &Scheduler{
		Load:          load,
		Conduct:       conduct,
		Interval:      DefaultCheckInterval,
		Lead:          DefaultLead,
		MaxConcurrent: defaultMaxConcurrent,
		Clock:         clock.RealClock{},
	}
}

// Run checks the schedule now and then every Interval until ctx is done,
// then waits for running interviews to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Interview scheduler running",
		"interval", s.Interval,
		"lead", s.Lead,
		"maxConcurrent", s.MaxConcurrent)

	var g errgroup.Group
	if s.MaxConcurrent > 0 {
		g.SetLimit(s.MaxConcurrent)
	}

	s.check(ctx, &g)
	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Interview scheduler stopping, waiting for running interviews")
			return g.Wait()
		case <-ticker.C():
			s.check(ctx, &g)
		}
	}
}

// Due returns the meetings starting within the lead window that have not
// been started yet.
func (s *Scheduler) Due(now time.Time, meetings []Meeting) []Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Meeting
	for _, m := range meetings {
		if _, done := s.processed[m.ID()]; done {
			continue
		}
		until := m.Scheduled.Sub(now)
		if until >= 0 && until <= s.Lead {
			due = append(due, m)
		}
	}
	return due
}

// Processed reports whether the meeting has been started.
func (s *Scheduler) Processed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

func (s *Scheduler) markProcessed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed == nil {
		s.processed = make(map[string]struct{})
	}
	s.processed[id] = struct{}{}
}

func (s *Scheduler) check(ctx context.Context, g *errgroup.Group) {
	now := s.Clock.Now()
	slog.Debug("Schedule check", "at", now.Format("15:04:05"))

	meetings, err := s.Load(ctx)
	if err != nil {
		slog.Error("Failed to load schedule", "error", err)
		return
	}

	for _, m := range s.Due(now, meetings) {
		started := g.TryGo(func() error {
			if err := s.Conduct(ctx, m); err != nil {
				slog.Error("Interview failed",
					"candidate", m.CandidateName,
					"slot", m.Slot,
					"error", err)
			}
			return nil
		})
		if !started {
			slog.Warn("Interview capacity reached, retrying next check", "candidate", m.CandidateName)
			continue
		}
		s.markProcessed(m.ID())
		slog.Info("Meeting found",
			"candidate", m.CandidateName,
			"email", m.Email,
			"role", m.Role,
			"slot", m.Slot,
			"in", m.Scheduled.Sub(now).Round(time.Second))
	}
}
