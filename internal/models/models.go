package models

import (
	"time"

	"github.com/google/uuid"
)

// InitialProjectVersion is stamped into every newly created manifest.
const InitialProjectVersion = "0.1.0"

// ProjectManifest is the identity record persisted at a project root.
type ProjectManifest struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
}

// ProjectInfo is a manifest plus the locations derived from the project path.
type ProjectInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
	DBPath    string    `json:"db_path"`
}

// Run statuses written by the execution engine.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// EvalRun is one execution of an eval definition against a model.
// ConfigJSON is an audit snapshot and is never rewritten after insert.
type EvalRun struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	EvalID      string     `json:"eval_id"`
	ModelID     string     `json:"model_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	ConfigJSON  string     `json:"config_json"`
	MetricsJSON *string    `json:"metrics_json,omitempty"`
}

// Sample is a single input/output/scoring record inside a run.
type Sample struct {
	ID             string  `json:"id"`
	RunID          string  `json:"run_id"`
	Index          int64   `json:"index_num"`
	InputJSON      string  `json:"input_json"`
	OutputJSON     *string `json:"output_json,omitempty"`
	ScoresJSON     *string `json:"scores_json,omitempty"`
	TrajectoryJSON *string `json:"trajectory_json,omitempty"`
	Status         string  `json:"status"`
	LatencyMS      *int64  `json:"latency_ms,omitempty"`
	TokensInput    *int64  `json:"tokens_input,omitempty"`
	TokensOutput   *int64  `json:"tokens_output,omitempty"`
}

// SampleResult carries the fields an engine fills in once a sample finishes.
type SampleResult struct {
	OutputJSON     *string
	ScoresJSON     *string
	TrajectoryJSON *string
	Status         string
	LatencyMS      *int64
	TokensInput    *int64
	TokensOutput   *int64
}

// Annotation is a human note attached to a sample.
type Annotation struct {
	ID        string    `json:"id"`
	SampleID  string    `json:"sample_id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"annotation_type"`
	Content   string    `json:"content"`
}

// SampleHit is a full-text search match together with its run context.
type SampleHit struct {
	Sample
	EvalID  string `json:"eval_id"`
	ModelID string `json:"model_id"`
}

// ErrorPolicy decides what a listing does when a single entry fails to load.
type ErrorPolicy int

const (
	// SkipAndContinue drops the failing entry and keeps listing.
	SkipAndContinue ErrorPolicy = iota
	// FailFast aborts the whole listing with the entry's error.
	FailFast
)

func (p ErrorPolicy) String() string {
	switch p {
	case SkipAndContinue:
		return "skip-and-continue"
	case FailFast:
		return "fail-fast"
	default:
		return "unknown"
	}
}
