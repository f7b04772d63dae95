package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GhostScientist/assay/internal/tools"
	"github.com/GhostScientist/assay/internal/workspace"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered.
// projectsRoot is the default for list_projects.
func New(ws *workspace.Service, projectsRoot string) *mcp.Server {
	pt := &tools.ProjectTools{Workspace: ws, ProjectsRoot: projectsRoot}
	et := &tools.EvalTools{Workspace: ws}
	st := &tools.SampleTools{Workspace: ws}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "assay",
		Version: Version,
	}, nil)

	// Project tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Initialize a project directory: Assay.toml manifest, standard folders and the run store",
	}, pt.CreateProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_project",
		Description: "Open an existing project and bring its store schema up to date",
	}, pt.OpenProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List projects in the immediate subdirectories of a root, oldest first",
	}, pt.ListProjects)

	// Eval definition tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_evals",
		Description: "List eval definitions in a project's evals/ folder, sorted by name (fails if any definition is invalid)",
	}, et.ListEvals)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_eval",
		Description: "Load one eval definition by id",
	}, et.GetEval)

	// Run store tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_samples",
		Description: "Full-text search over sample inputs and outputs using FTS5",
	}, st.SearchSamples)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_runs",
		Description: "List eval runs newest first, optionally for one eval",
	}, st.ListRuns)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "annotate_sample",
		Description: "Attach a human annotation to a sample",
	}, st.AnnotateSample)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_annotations",
		Description: "List a sample's annotations oldest first",
	}, st.ListAnnotations)

	return srv
}
