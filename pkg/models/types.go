package models

import (
	"time"
)

// ==================== Status Types ====================

// RunStatus represents the status of a walkthrough run or of one of its steps
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusSkipped  RunStatus = "skipped"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further updates are expected for this status
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// ErrorKind classifies why a step failed
type ErrorKind string

const (
	ErrorNone            ErrorKind = ""
	ErrorTimeout         ErrorKind = "timeout"           // bounded wait not satisfied
	ErrorElementNotFound ErrorKind = "element_not_found" // locator never resolved
	ErrorAssertion       ErrorKind = "assertion"         // observed value does not match expected
	ErrorIO              ErrorKind = "io"                // artifact write failure
	ErrorDriver          ErrorKind = "driver"            // browser driver failed outright
)

// Checkpoint groups steps into the externally visible phases of a walkthrough
type Checkpoint string

const (
	CheckpointLanding  Checkpoint = "landing"
	CheckpointForm     Checkpoint = "form"
	CheckpointOutcome  Checkpoint = "outcome"
	CheckpointArtifact Checkpoint = "artifact"
)

// Checkpoints lists every checkpoint in execution order
var Checkpoints = []Checkpoint{CheckpointLanding, CheckpointForm, CheckpointOutcome, CheckpointArtifact}

// ==================== Result Types ====================

// StepResult represents the result of executing a single walkthrough step
type StepResult struct {
	Sequence     int        `json:"sequence" db:"sequence"`
	Name         string     `json:"name" db:"name"`
	Checkpoint   Checkpoint `json:"checkpoint" db:"checkpoint"`
	Status       RunStatus  `json:"status" db:"status"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	ArtifactPath string     `json:"artifact_path,omitempty" db:"artifact_path"`
	Duration     int64      `json:"duration_ms" db:"duration_ms"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
}

// CheckpointResult is the aggregated status of the steps in one checkpoint
type CheckpointResult struct {
	Name   Checkpoint `json:"name"`
	Status RunStatus  `json:"status"`
}

// RunResult represents the result of one walkthrough run
type RunResult struct {
	RunID          string             `json:"run_id"`
	Status         RunStatus          `json:"status"`
	Steps          []StepResult       `json:"steps"`
	Checkpoints    []CheckpointResult `json:"checkpoints"`
	ScreenshotPath string             `json:"screenshot_path,omitempty"`
	TotalDuration  int64              `json:"total_duration_ms"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// Summarize derives checkpoint results and the overall status from the step results.
// A checkpoint fails if any of its steps failed and is skipped if none of its steps ran.
func (r *RunResult) Summarize() {
	r.Checkpoints = r.Checkpoints[:0]
	overall := StatusSuccess
	for _, cp := range Checkpoints {
		status := StatusSkipped
		seen := false
		for _, step := range r.Steps {
			if step.Checkpoint != cp {
				continue
			}
			seen = true
			switch step.Status {
			case StatusFailed:
				status = StatusFailed
			case StatusSuccess:
				if status == StatusSkipped {
					status = StatusSuccess
				}
			}
		}
		if !seen {
			continue
		}
		if status != StatusSuccess {
			overall = StatusFailed
		}
		r.Checkpoints = append(r.Checkpoints, CheckpointResult{Name: cp, Status: status})
	}
	if len(r.Steps) == 0 {
		overall = StatusFailed
	}
	r.Status = overall
}

// ==================== Persistence Types ====================

// RunRecord represents a persisted walkthrough run
type RunRecord struct {
	ID                 string     `json:"id" db:"id"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	ScreenshotPath     string     `json:"screenshot_path,omitempty" db:"screenshot_path"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	Duration           int64      `json:"duration_ms" db:"duration_ms"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`

	// Computed fields
	Steps []StepResult `json:"steps,omitempty"`
}

// ==================== Workflow Types ====================

// RunInput represents input for executing a walkthrough as a workflow
type RunInput struct {
	RunID    string   `json:"run_id"`
	Steps    []string `json:"steps,omitempty"` // Defaults to the full walkthrough
	Headless bool     `json:"headless"`
	Timeout  int      `json:"timeout_seconds"`
}

// RunRequest represents a request to start a walkthrough run
type RunRequest struct {
	Headless *bool `json:"headless,omitempty"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
