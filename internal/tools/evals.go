package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GhostScientist/assay/internal/workspace"
)

// EvalTools holds references needed by eval definition tool handlers.
type EvalTools struct {
	Workspace *workspace.Service
}

type ListEvalsInput struct {
	ProjectPath string `json:"project_path" jsonschema:"Project directory; definitions are read from its evals/ folder"`
}

type GetEvalInput struct {
	ProjectPath string `json:"project_path" jsonschema:"Project directory"`
	ID          string `json:"id" jsonschema:"Definition id as written in the YAML document"`
}

func (t *EvalTools) ListEvals(ctx context.Context, _ *mcp.CallToolRequest, input ListEvalsInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" {
		return toolError("project_path is required"), nil, nil
	}

	summaries, err := t.Workspace.ListEvals(ctx, input.ProjectPath)
	if err != nil {
		return toolError("Failed to list evals: %v", err), nil, nil
	}
	return toolJSON(summaries)
}

func (t *EvalTools) GetEval(ctx context.Context, _ *mcp.CallToolRequest, input GetEvalInput) (*mcp.CallToolResult, any, error) {
	if input.ProjectPath == "" || input.ID == "" {
		return toolError("project_path and id are required"), nil, nil
	}

	detail, err := t.Workspace.GetEval(ctx, input.ProjectPath, input.ID)
	if err != nil {
		return toolError("Failed to load eval: %v", err), nil, nil
	}
	return toolJSON(detail)
}
