// Package evaldef loads evaluation definitions from a project's evals
// directory.
package evaldef

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EvalDefinition is one evals/*.yaml document.
type EvalDefinition struct {
	ID          string          `yaml:"id" json:"id" validate:"required"`
	Name        string          `yaml:"name" json:"name" validate:"required"`
	Description *string         `yaml:"description,omitempty" json:"description,omitempty"`
	Dataset     DatasetConfig   `yaml:"dataset" json:"dataset"`
	Solver      SolverConfig    `yaml:"solver" json:"solver"`
	Scorer      ScorerList      `yaml:"scorer" json:"scorer" validate:"required,dive"`
	Execution   ExecutionConfig `yaml:"execution" json:"execution"`
}

// DatasetConfig points at the samples an eval runs over.
type DatasetConfig struct {
	Source  string  `yaml:"source" json:"source" validate:"required"`
	Path    string  `yaml:"path" json:"path" validate:"required"`
	Split   *string `yaml:"split,omitempty" json:"split,omitempty"`
	Limit   *uint32 `yaml:"limit,omitempty" json:"limit,omitempty"`
	Shuffle *bool   `yaml:"shuffle,omitempty" json:"shuffle,omitempty"`
	Seed    *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// SolverConfig names the solver and its optional settings. Tools and
// Sandbox are passed through to the engine untouched.
type SolverConfig struct {
	Type         string  `yaml:"type" json:"type" validate:"required"`
	SystemPrompt *string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Tools        []any   `yaml:"tools,omitempty" json:"tools,omitempty"`
	MaxTurns     *uint32 `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`
	Sandbox      any     `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
}

// ExecutionConfig holds run parameters. All four keys must be present in
// the document; zero is a valid value for the numeric ones, so presence is
// tracked with pointers.
type ExecutionConfig struct {
	MaxConcurrent  *uint32  `yaml:"max_concurrent" json:"max_concurrent" validate:"required"`
	TimeoutSeconds *uint32  `yaml:"timeout_seconds" json:"timeout_seconds" validate:"required"`
	Retries        *uint32  `yaml:"retries" json:"retries" validate:"required"`
	Model          ModelRef `yaml:"model" json:"model"`
}

// EvalSummary is the listing view of a definition.
type EvalSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Path        string  `json:"path"`
}

// Summary returns the listing view of d loaded from path.
func (d *EvalDefinition) Summary(path string) EvalSummary {
	return EvalSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Path:        path,
	}
}

// Validate checks required fields.
func (d *EvalDefinition) Validate() error { return validate.Struct(d) }
