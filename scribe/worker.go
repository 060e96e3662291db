package scribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/llm"
	"github.com/bosley/parley/sheet"
	"github.com/bosley/parley/transcript"
)

const (
	scoreTemperature = 0.3
	scoredDateLayout = "2006-01-02 15:04:05"

	unknown     = "Unknown"
	notProvided = "Not provided"
)

const scoringPrompt = `You are an expert HR interviewer analyzing interview transcripts.

TRANSCRIPT FORMAT:
- Lines starting with "Agent:" are the interviewer's questions
- Lines starting with "Candidate:" are the candidate's responses
- Focus ONLY on evaluating the CANDIDATE's responses, not the Agent's questions

TASK: Evaluate the candidate's responses and provide a confidence score.

SCORING CRITERIA (0-100):
- Communication Skills (0-20): Clarity, articulation, professional language
- Technical Knowledge (0-25): Relevant skills, domain expertise, problem-solving ability
- Experience Relevance (0-20): Past experience matching the role requirements
- Enthusiasm & Fit (0-15): Interest in the role, cultural fit indicators
- Response Quality (0-20): Complete answers, depth of responses, relevance

OUTPUT FORMAT (JSON only, no other text):
{
    "candidate_name": "extracted name from transcript",
    "email": "if mentioned, else 'Not provided'",
    "role": "position applied for",
    "communication_score": 0-20,
    "technical_score": 0-25,
    "experience_score": 0-20,
    "enthusiasm_score": 0-15,
    "response_quality_score": 0-20,
    "total_score": 0-100,
    "summary": "2-3 sentence evaluation of the candidate",
    "recommendation": "Strongly Recommend / Recommend / Consider / Do Not Recommend"
}`

// ResultsHeader is the column layout of the scores workbook.
var ResultsHeader = []string{
	"Candidate Name", "Email", "Role", "Communication", "Technical",
	"Experience", "Enthusiasm", "Response Quality", "Total Score",
	"Recommendation", "Summary", "Transcript Path", "Scored Date",
}

func (s *Scribe) worker(ctx context.Context) {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker context cancelled")
			return

		case job, ok := <-s.queue:
			if !ok {
				slog.Debug("Worker queue closed")
				return
			}

			err := s.processJob(ctx, job)
			s.pending.Delete(job.FilePath)
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("Transcript already handled", "file", job.FilePath)
				continue
			}
			if s.Metrics != nil {
				s.Metrics.TranscriptScored(err)
			}
			if err != nil {
				slog.Error("Failed to score transcript",
					"error", err,
					"file", job.FilePath)
			}
		}
	}
}

func (s *Scribe) processJob(ctx context.Context, job ScoringJob) error {
	if s.config.Settle > 0 {
		timer := time.NewTimer(s.config.Settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	slog.Info("Scoring transcript", "file", filepath.Base(job.FilePath))

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		return err
	}
	header := readHeader(string(data))

	score, err := s.score(ctx, string(data))
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	// The header is more reliable than what the model read back
	score.Email = header.Email
	if header.Role != unknown || score.Role == "" {
		score.Role = header.Role
	}
	if score.CandidateName == "" {
		score.CandidateName = header.CandidateName
	}
	if score.Recommendation == "" {
		score.Recommendation = "N/A"
	}

	result := Result{
		Score:          score,
		TranscriptPath: filepath.Join(s.config.VerifiedDir, filepath.Base(job.FilePath)),
		ScoredAt:       s.now(),
	}
	if err := s.record(result); err != nil {
		return err
	}
	if err := os.Rename(job.FilePath, result.TranscriptPath); err != nil {
		return fmt.Errorf("failed to move transcript: %w", err)
	}

	slog.Info("Transcript scored",
		"candidate", score.CandidateName,
		"total", score.Total,
		"recommendation", score.Recommendation)
	if s.OnScored != nil {
		s.OnScored(result)
	}
	return nil
}

func (s *Scribe) score(ctx context.Context, text string) (Score, error) {
	msgs := []conversation.Message{
		{Role: conversation.RoleSystem, Content: scoringPrompt},
		{Role: conversation.RoleUser, Content: "Please analyze this interview transcript and score the CANDIDATE's performance:\n\n" +
			s.filter.CleanTranscript(text)},
	}
	var score Score
	if err := llm.CompleteJSON(ctx, s.completer, msgs, scoreTemperature, &score); err != nil {
		return Score{}, err
	}
	return score, nil
}

// record appends r to the results workbook.
func (s *Scribe) record(r Result) error {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	row := []any{
		r.CandidateName, r.Email, r.Role,
		r.Communication, r.Technical, r.Experience, r.Enthusiasm, r.ResponseQuality, r.Total,
		r.Recommendation, r.Summary, r.TranscriptPath, r.ScoredAt.Format(scoredDateLayout),
	}
	if err := sheet.Append(s.config.ResultsFile, ResultsHeader, row); err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// readHeader returns the candidate fields of a transcript header, with
// placeholders for anything missing.
func readHeader(text string) conversation.SessionContext {
	var sc conversation.SessionContext
	if doc, err := transcript.Parse(text); err == nil {
		sc = doc.Session
	}
	if sc.CandidateName == "" {
		sc.CandidateName = unknown
	}
	if sc.Email == "" {
		sc.Email = notProvided
	}
	if sc.Role == "" {
		sc.Role = unknown
	}
	return sc
}
