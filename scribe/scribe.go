// Package scribe scores finished interview transcripts. It watches the
// unverified transcript directory, asks the model for a structured
// evaluation of each new file, appends the result to a workbook and moves
// the transcript to the verified directory.
package scribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/listen"
)

const (
	DefaultWorkers = 2
	DefaultSettle  = time.Second

	queueSize = 100
)

// ErrMissingCompleter is returned by New without a completion service.
var ErrMissingCompleter = errors.New("scribe: completer is required")

// Recorder counts scored transcripts.
type Recorder interface {
	TranscriptScored(err error)
}

// Configuration for the Scribe service
type Config struct {
	// Directory watched for new transcripts
	UnverifiedDir string

	// Directory scored transcripts are moved to
	VerifiedDir string

	// Workbook scores are appended to
	ResultsFile string

	// Number of worker goroutines for scoring
	Workers int

	// Delay before reading a new file so its writer can finish
	Settle time.Duration
}

// Scribe manages the scoring service
type Scribe struct {
	config    Config
	completer conversation.Completer
	filter    *listen.CaptionFilter

	// Optional hooks
	Metrics  Recorder
	OnScored func(Result)

	// Files queued or in flight
	pending sync.Map

	// Processing queue
	queue   chan ScoringJob
	workers sync.WaitGroup

	resultsMu sync.Mutex
	now       func() time.Time
}

// New creates a new Scribe instance
func New(cfg Config, completer conversation.Completer) (*Scribe, error) {
	if completer == nil {
		return nil, ErrMissingCompleter
	}
	if cfg.UnverifiedDir == "" || cfg.VerifiedDir == "" || cfg.ResultsFile == "" {
		return nil, fmt.Errorf("scribe: directories and results file are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}

	return &Scribe{
		config:    cfg,
		completer: completer,
		filter:    listen.NewCaptionFilter(),
		queue:     make(chan ScoringJob, queueSize),
		now:       time.Now,
	}, nil
}

// Run scores transcripts already waiting, then watches for new ones until
// ctx is cancelled. Files still unscored at shutdown stay in place and are
// picked up by the next run.
func (s *Scribe) Run(ctx context.Context) error {
	for _, dir := range []string{s.config.UnverifiedDir, s.config.VerifiedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.config.UnverifiedDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.config.UnverifiedDir, err)
	}
	slog.Info("Started watching transcripts", "path", s.config.UnverifiedDir)

	// Start the worker pool
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}

	if err := s.scanExisting(ctx); err != nil {
		slog.Error("Failed to scan existing transcripts", "error", err)
	}

	s.watchFiles(ctx, watcher)

	// Stop accepting new jobs
	close(s.queue)
	s.workers.Wait()
	return nil
}
