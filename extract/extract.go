// Package extract reads finished phone-screen transcripts and collects the
// technical interviews they booked into a schedule workbook.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/llm"
	"github.com/bosley/parley/sheet"
	"github.com/bosley/parley/transcript"
)

const (
	DefaultWorkers = 4

	extractTemperature = 0.1
	emailNotFound      = "Email Not Found"
)

// ErrMissingCompleter is returned by New without a completion service.
var ErrMissingCompleter = errors.New("extract: completer is required")

// ScheduleHeader is the column layout of the scheduled interviews workbook.
var ScheduleHeader = []string{
	"Candidate Name", "Email", "Role", "Scheduled Time", "Agreed Salary", "Transcript File",
}

const systemPrompt = "You extract JSON from text."

const extractPrompt = `
You are an expert Data Extractor. Analyze the following interview transcript.
Your task is to identify if a **Technical Interview** was successfully scheduled.

Transcript:
%s

Extract the following:
1. **scheduled**: Boolean (true if a specific date/time was agreed upon, false otherwise).
2. **schedule_time**: The agreed date and time.
   - **CRITICAL**: You MUST convert relative dates (e.g. "next Monday", "tomorrow") to an absolute date based on the "Date:" timestamp found in the transcript header.
   - **Format**: "DD-MM-YYYY HH:MM AM/PM" (e.g., "26-01-2026 10:00 AM").
3. **role**: The role discussed.
4. **final_salary**: The agreed or discussed salary (if available).

Return ONLY JSON:
{
    "scheduled": true/false,
    "schedule_time": "DD-MM-YYYY HH:MM AM/PM",
    "role": "...",
    "final_salary": "..."
}
`

// Booking is what the model read out of one transcript.
type Booking struct {
	Scheduled    bool `json:"scheduled"`
	ScheduleTime Text `json:"schedule_time"`
	Role         Text `json:"role"`
	FinalSalary  Text `json:"final_salary"`
}

// Text decodes a JSON string, number or null into a string.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	default:
		*t = Text(data)
		return nil
	}
}

// Interview is one booked technical interview.
type Interview struct {
	CandidateName  string
	Email          string
	Role           string
	ScheduledTime  string
	AgreedSalary   string
	TranscriptFile string
}

// Extractor asks the completion service about each transcript.
type Extractor struct {
	completer conversation.Completer
	// Emails maps lowercased candidate names to email addresses.
	Emails  map[string]string
	Workers int
}

func New(completer conversation.Completer, emails map[string]string) (*Extractor, error) {
	if completer == nil {
		return nil, ErrMissingCompleter
	}
	if emails == nil {
		emails = map[string]string{}
	}
	return &Extractor{completer: completer, Emails: emails, Workers: DefaultWorkers}, nil
}

// Dir examines every .txt transcript in dir and returns the booked
// interviews in file name order. A transcript the model cannot read is
// treated as not booked.
func (e *Extractor) Dir(ctx context.Context, dir string) ([]Interview, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	slog.Info("Found transcripts", "dir", dir, "count", len(files))

	found := make([]*Interview, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for i, path := range files {
		g.Go(func() error {
			iv, err := e.File(gctx, path)
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				slog.Warn("Skipping transcript", "file", filepath.Base(path), "error", err)
			default:
				found[i] = iv
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Interview
	for _, iv := range found {
		if iv != nil {
			out = append(out, *iv)
		}
	}
	slog.Info("Extraction complete", "scheduled", len(out))
	return out, nil
}

// File examines one transcript. It returns nil when no interview was booked.
func (e *Extractor) File(ctx context.Context, path string) (*Interview, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)

	var sc conversation.SessionContext
	if doc, err := transcript.Parse(text); err == nil {
		sc = doc.Session
	}
	name := sc.CandidateName
	if name == "" {
		name = "Unknown"
	}

	msgs := []conversation.Message{
		{Role: conversation.RoleSystem, Content: systemPrompt},
		{Role: conversation.RoleUser, Content: fmt.Sprintf(extractPrompt, text)},
	}
	var b Booking
	if err := llm.CompleteJSON(ctx, e.completer, msgs, extractTemperature, &b); err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if !b.Scheduled {
		slog.Debug("No interview booked", "candidate", name)
		return nil, nil
	}

	iv := &Interview{
		CandidateName:  name,
		Email:          e.email(name, sc.Email),
		Role:           string(b.Role),
		ScheduledTime:  string(b.ScheduleTime),
		AgreedSalary:   string(b.FinalSalary),
		TranscriptFile: filepath.Base(path),
	}
	if iv.Role == "" {
		iv.Role = sc.Role
	}
	return iv, nil
}

func (e *Extractor) email(name, fromHeader string) string {
	if v, ok := e.Emails[strings.ToLower(strings.TrimSpace(name))]; ok && v != "" {
		return v
	}
	if fromHeader != "" {
		return fromHeader
	}
	return emailNotFound
}

// ReadApplications maps lowercased applicant names to emails from a
// workbook with "full_name" and "email" columns.
func ReadApplications(path string) (map[string]string, error) {
	tbl, err := sheet.Read(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		name := strings.ToLower(tbl.Get(i, "full_name"))
		if name != "" {
			out[name] = tbl.Get(i, "email")
		}
	}
	return out, nil
}

// WriteSchedule replaces path with the booked interviews.
func WriteSchedule(path string, interviews []Interview) error {
	rows := make([][]any, len(interviews))
	for i, iv := range interviews {
		rows[i] = []any{iv.CandidateName, iv.Email, iv.Role, iv.ScheduledTime, iv.AgreedSalary, iv.TranscriptFile}
	}
	return sheet.Write(path, ScheduleHeader, rows)
}
