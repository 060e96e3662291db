package scribe

import (
	"time"
)

// Score is the model's evaluation of one interview transcript.
type Score struct {
	CandidateName   string  `json:"candidate_name"`
	Email           string  `json:"email"`
	Role            string  `json:"role"`
	Communication   float64 `json:"communication_score"`
	Technical       float64 `json:"technical_score"`
	Experience      float64 `json:"experience_score"`
	Enthusiasm      float64 `json:"enthusiasm_score"`
	ResponseQuality float64 `json:"response_quality_score"`
	Total           float64 `json:"total_score"`
	Summary         string  `json:"summary"`
	Recommendation  string  `json:"recommendation"`
}

// Result is a scored transcript as written to the results workbook.
type Result struct {
	Score
	// TranscriptPath is where the transcript lives after scoring.
	TranscriptPath string
	ScoredAt       time.Time
}

// ScoringJob represents a job for the worker pool
type ScoringJob struct {
	FilePath  string
	Timestamp time.Time
}
