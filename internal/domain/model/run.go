package model

import "time"

// Stage is the position of a submission in the pipeline.
type Stage string

// Pipeline stages.
const (
	StageAnalyzing  Stage = "analyzing"
	StagePreview    Stage = "preview"
	StageConfirming Stage = "confirming"
	StageConfirmed  Stage = "confirmed"
	StageFailed     Stage = "failed"
	StageDiscarded  Stage = "discarded"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageConfirmed || s == StageDiscarded
}

// Run is the pipeline record for one submission.
type Run struct {
	ID         string          `json:"id"`
	Stage      Stage           `json:"stage"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Generation int             `json:"generation"`
	Submission MatchSubmission `json:"submission"`
	Result     *AnalysisResult `json:"result,omitempty"`
	Receipt    *Receipt        `json:"receipt,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AnalysisJob asks a worker to analyze one generation of a run.
type AnalysisJob struct {
	RunID      string
	Generation int
	Submission MatchSubmission
}
