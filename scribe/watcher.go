package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

func (s *Scribe) watchFiles(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if err := s.handleFSEvent(event); err != nil {
				slog.Error("Failed to handle file system event",
					"error", err,
					"event", event)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// scanExisting queues transcripts written while the scorer was down.
func (s *Scribe) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(s.config.UnverifiedDir)
	if err != nil {
		return err
	}

	found := 0
	for _, e := range entries {
		if e.IsDir() || !isTranscript(e.Name()) {
			continue
		}
		path := filepath.Join(s.config.UnverifiedDir, e.Name())
		if _, loaded := s.pending.LoadOrStore(path, struct{}{}); loaded {
			continue
		}
		select {
		case s.queue <- ScoringJob{FilePath: path, Timestamp: time.Now()}:
			found++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if found > 0 {
		slog.Info("Queued existing transcripts", "count", found)
	}
	return nil
}

func (s *Scribe) handleFSEvent(event fsnotify.Event) error {
	// Transcripts arrive by create or by rename into the directory
	if !event.Has(fsnotify.Create) || !isTranscript(filepath.Base(event.Name)) {
		return nil
	}
	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return nil
	}
	return s.handleNewTranscript(event.Name)
}

func (s *Scribe) handleNewTranscript(path string) error {
	if _, loaded := s.pending.LoadOrStore(path, struct{}{}); loaded {
		return nil
	}

	job := ScoringJob{
		FilePath:  path,
		Timestamp: time.Now(),
	}

	select {
	case s.queue <- job:
		slog.Info("Queued new transcript for scoring", "file", filepath.Base(path))
	default:
		s.pending.Delete(path)
		return fmt.Errorf("job queue is full")
	}

	return nil
}

func isTranscript(name string) bool {
	return strings.HasSuffix(name, ".txt") && !strings.HasPrefix(name, ".")
}
