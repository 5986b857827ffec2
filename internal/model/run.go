package model

import "time"

// RunStatus is the lifecycle state of a discovery run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunPhase is the step a running run is in.
type RunPhase string

const (
	PhaseSearching  RunPhase = "searching"
	PhaseProcessing RunPhase = "processing"
	PhaseFinalizing RunPhase = "finalizing"
)

// RunStats counts what a run produced.
type RunStats struct {
	CandidatesFound   int `json:"candidatesFound"`
	NewCandidates     int `json:"newCandidates"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`
	ErrorCount        int `json:"errorCount"`
}

// RunProgress is a checkpoint within a phase.
type RunProgress struct {
	Phase     RunPhase `json:"phase"`
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
}

// Run is one execution of the discovery or scrape pipeline.
type Run struct {
	ID           string      `json:"id"`
	Preset       string      `json:"preset"`
	Query        string      `json:"query,omitempty"`
	Region       string      `json:"region,omitempty"`
	Status       RunStatus   `json:"status"`
	StartedAt    time.Time   `json:"startedAt"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	Stats        RunStats    `json:"stats"`
	Progress     RunProgress `json:"progress"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// Terminal reports whether the run can no longer change.
func (r *Run) Terminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
