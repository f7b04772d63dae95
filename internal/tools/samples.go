package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GhostScientist/assay/internal/workspace"
)

// SampleTools exposes runs, samples and annotations of a project store.
type SampleTools struct {
	Workspace *workspace.Service
}

// --- Input types ---

type SearchSamplesInput struct {
	ProjectPath string `json:"project_path" jsonschema:"Project directory"`
	Query       string `json:"query" jsonschema:"Search query over sample inputs and outputs (supports FTS5 syntax: AND, OR, NOT, prefix*)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum number of hits (default 50)"`
}

type ListRunsInput struct {
	ProjectPath string `json:"project_path" jsonschema:"Project directory"`
	EvalID      string `json:"eval_id,omitempty" jsonschema:"Only list runs of this eval definition"`
}

type AnnotateSampleInput struct {
	ProjectPath    string `json:"project_path" jsonschema:"Project directory"`
	SampleID       string `json:"sample_id" jsonschema:"Sample to annotate"`
	Author         string `json:"author" jsonschema:"Who wrote the annotation"`
	AnnotationType string `json:"annotation_type,omitempty" jsonschema:"Annotation kind, e.g. note, label, correction (default note)"`
	Content        string `json:"content" jsonschema:"Annotation text"`
}

type ListAnnotationsInput struct {
	ProjectPath string `json:"project_path" jsonschema:"Project directory"`
	SampleID    string `json:"sample_id" jsonschema:"Sample whose annotations to list"`
}

// --- Handlers ---

func (t *SampleTools) SearchSamples(ctx context.Context, _ *mcp.CallToolRequest, input SearchSamplesInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" {
		return toolError("project_path is required"), nil, nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return toolError("Search query is required"), nil, nil
	}

	hits, err := t.Workspace.SearchSamples(ctx, input.ProjectPath, input.Query, input.Limit)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	if len(hits) == 0 {
		return toolText(fmt.Sprintf("No samples match %q.", input.Query)), nil, nil
	}
	return toolJSON(hits)
}

func (t *SampleTools) ListRuns(ctx context.Context, _ *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" {
		return toolError("project_path is required"), nil, nil
	}

	runs, err := t.Workspace.ListRuns(ctx, input.ProjectPath, input.EvalID)
	if err != nil {
		return toolError("Failed to list runs: %v", err), nil, nil
	}
	return toolJSON(runs)
}

func (t *SampleTools) AnnotateSample(ctx context.Context, _ *mcp.CallToolRequest, input AnnotateSampleInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" || input.SampleID == "" {
		return toolError("project_path and sample_id are required"), nil, nil
	}

	ann, err := t.Workspace.AnnotateSample(ctx, input.ProjectPath, workspace.AnnotationRequest{
		SampleID: input.SampleID,
		Author:   input.Author,
		Type:     input.AnnotationType,
		Content:  input.Content,
	})
	if err != nil {
		return toolError("Failed to annotate sample: %v", err), nil, nil
	}
	return toolJSON(ann)
}

func (t *SampleTools) ListAnnotations(ctx context.Context, _ *mcp.CallToolRequest, input ListAnnotationsInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" || input.SampleID == "" {
		return toolError("project_path and sample_id are required"), nil, nil
	}

	annotations, err := t.Workspace.ListAnnotations(ctx, input.ProjectPath, input.SampleID)
	if err != nil {
		return toolError("Failed to list annotations: %v", err), nil, nil
	}
	return toolJSON(annotations)
}
