package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/GhostScientist/assay/internal/models"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create, open and list projects",
	}
	cmd.AddCommand(newProjectCreateCmd(a), newProjectOpenCmd(a), newProjectListCmd(a))
	return cmd
}

func newProjectCreateCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Initialize a new project directory",
		Long: `Create a project at <path>: the Assay.toml manifest, the evals/, datasets/,
results/, models/ and plugins/ folders, and the run store in .assay/assay.db.

Examples:
  assay project create ~/AssayProjects/capitals --name "World Capitals"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.ws.CreateProject(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", a.ui.OK("Created"), a.ui.Bold(info.Name))
			printProject(cmd.OutOrStdout(), a, *info)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "project name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProjectOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a project and bring its store up to date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.ws.OpenProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), info)
			}
			printProject(cmd.OutOrStdout(), a, *info)
			return nil
		},
	}
}

func newProjectListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [root]",
		Short: "List projects under a root directory, oldest first",
		Long: `List the projects found in the immediate subdirectories of [root]
(default: workspace.projects_root from the config). Directories whose
manifest cannot be read are skipped with a warning in the log.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.cfg.Workspace.ProjectsRoot
			if len(args) == 1 {
				root = args[0]
			}
			projects, err := a.ws.ListProjects(cmd.Context(), root)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), projects)
			}
			if len(projects) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", a.ui.Dim("No projects in "+root))
				return nil
			}
			for _, p := range projects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					a.ui.Bold(p.Name),
					a.ui.Dim(p.CreatedAt.Local().Format(time.DateTime)),
					p.Path)
			}
			return nil
		},
	}
}

func printProject(w io.Writer, a *app, p models.ProjectInfo) {
	const width = 9
	fmt.Fprintln(w, a.ui.Field("name", width, p.Name))
	fmt.Fprintln(w, a.ui.Field("id", width, p.ID.String()))
	fmt.Fprintln(w, a.ui.Field("path", width, p.Path))
	fmt.Fprintln(w, a.ui.Field("store", width, p.DBPath))
	fmt.Fprintln(w, a.ui.Field("version", width, p.Version))
	fmt.Fprintln(w, a.ui.Field("created", width, p.CreatedAt.Local().Format(time.RFC3339)))
}
