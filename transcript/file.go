// Package transcript persists finished conversations as human-readable
// records and keeps live per-session snapshots for the hosting layer.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/bosley/parley/conversation"
)

const (
	dateLayout     = "2006-01-02 15:04:05"
	fileTimeLayout = "20060102_150405"
	rule           = "============================================================"
	notProvided    = "Not provided"
	shortIDLen     = 8
)

// FileSink writes one text file per conversation into Dir.
type FileSink struct {
	Dir   string
	Clock clock.PassiveClock
}

// NewFileSink returns a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir, Clock: clock.RealClock{}}
}

// Persist writes rec atomically and returns once the file is in place.
func (s *FileSink) Persist(ctx context.Context, rec conversation.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Write(rec)
	if err != nil {
		return err
	}
	slog.Info("Transcript saved",
		"sessionID", rec.Session.ID,
		"path", path,
		"utterances", len(rec.Utterances))
	return nil
}

// Write renders rec into Dir and returns the final path.
func (s *FileSink) Write(rec conversation.Record) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create transcript dir: %w", err)
	}

	finalPath := filepath.Join(s.Dir, s.fileName(rec))
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(Render(rec)), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize transcript: %w", err)
	}
	return finalPath, nil
}

// fileName is <name>_<completed>_<session>, unique per conversation even
// when candidates or meeting links repeat.
func (s *FileSink) fileName(rec conversation.Record) string {
	name := strings.Join(strings.Fields(rec.Session.CandidateName), "_")
	if name == "" {
		name = "Unknown"
	}
	at := rec.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	parts := []string{name, at.Format(fileTimeLayout)}
	id := rec.Session.ID
	if id == "" {
		id = rec.Session.ExternalID
	}
	if id != "" {
		parts = append(parts, shortID(id))
	}
	return sanitize(strings.Join(parts, "_") + ".txt")
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func (s *FileSink) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// Render formats rec as a transcript document.
func Render(rec conversation.Record) string {
	var b strings.Builder
	s := rec.Session
	fmt.Fprintf(&b, "Interview Transcript: %s\n", orDefault(s.CandidateName, "Unknown"))
	fmt.Fprintf(&b, "Email: %s\n", orDefault(s.Email, notProvided))
	fmt.Fprintf(&b, "Role: %s\n", orDefault(s.Role, "Unknown"))
	if s.SalaryRange != "" {
		fmt.Fprintf(&b, "Salary Range: %s\n", s.SalaryRange)
	}
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Channel: %s\n", s.Channel)
	fmt.Fprintf(&b, "Date: %s\n", rec.CompletedAt.Format(dateLayout))
	if rec.Reason != conversation.EndNone {
		fmt.Fprintf(&b, "Ended: %s\n", rec.Reason)
	}
	b.WriteString(rule)
	b.WriteString("\n\n")

	for _, u := range rec.Utterances {
		text := strings.Join(strings.Fields(u.Text), " ")
		fmt.Fprintf(&b, "%s: %s\n\n", u.Speaker, text)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
