package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GhostScientist/assay/internal/workspace"
)

// ProjectTools holds references needed by project tool handlers.
type ProjectTools struct {
	Workspace *workspace.Service
	// ProjectsRoot is listed when list_projects gets no root_path.
	ProjectsRoot string
}

// --- Input types ---

type CreateProjectInput struct {
	Path string `json:"path" jsonschema:"Directory to initialize as a project; created if missing"`
	Name string `json:"name" jsonschema:"Display name stored in Assay.toml"`
}

type OpenProjectInput struct {
	Path string `json:"path" jsonschema:"Project directory containing Assay.toml"`
}

type ListProjectsInput struct {
	RootPath string `json:"root_path,omitempty" jsonschema:"Directory whose subdirectories are projects; defaults to the configured projects root"`
}

// --- Handlers ---

func (t *ProjectTools) CreateProject(ctx context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Path == "" {
		return toolError("Project path is required"), nil, nil
	}

	info, err := t.Workspace.CreateProject(ctx, input.Path, input.Name)
	if err != nil {
		return toolError("Failed to create project: %v", err), nil, nil
	}
	return toolJSON(info)
}

func (t *ProjectTools) OpenProject(ctx context.Context, _ *mcp.CallToolRequest, input OpenProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Path == "" {
		return toolError("Project path is required"), nil, nil
	}

	info, err := t.Workspace.OpenProject(ctx, input.Path)
	if err != nil {
		return toolError("Failed to open project: %v", err), nil, nil
	}
	return toolJSON(info)
}

func (t *ProjectTools) ListProjects(ctx context.Context, _ *mcp.CallToolRequest, input ListProjectsInput) (*mcp.CallToolResult, any, error) {
	root := input.RootPath
	if root == "" {
		root = t.ProjectsRoot
	}
	if root == "" {
		return toolError("root_path is required"), nil, nil
	}

	projects, err := t.Workspace.ListProjects(ctx, root)
	if err != nil {
		return toolError("Failed to list projects: %v", err), nil, nil
	}
	return toolJSON(projects)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
