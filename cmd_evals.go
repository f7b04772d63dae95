package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/GhostScientist/assay/internal/evaldef"
)

func newEvalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evals",
		Short: "Inspect eval definitions in a project",
	}
	cmd.AddCommand(newEvalsListCmd(a), newEvalsShowCmd(a))
	return cmd
}

func newEvalsListCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List eval definitions, sorted by name",
		Long: `List the .yaml and .yml definitions in <project>/evals.

Listing fails if any definition is invalid, naming the offending file.
With --watch the list is printed again whenever a definition changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if watch {
				return a.ws.WatchEvals(cmd.Context(), args[0], func(summaries []evaldef.EvalSummary, err error) {
					if err != nil {
						a.logger.Warn("list evals", zap.Error(err))
						fmt.Fprintf(out, "%s %v\n", a.ui.Error("error:"), err)
						return
					}
					if err := a.printEvals(out, summaries); err != nil {
						a.logger.Warn("print evals", zap.Error(err))
					}
				})
			}

			summaries, err := a.ws.ListEvals(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printEvals(out, summaries)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and re-list on changes")
	return cmd
}

func (a *app) printEvals(w io.Writer, summaries []evaldef.EvalSummary) error {
	if a.jsonOut {
		return printJSON(w, summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, a.ui.Dim("No eval definitions"))
		return nil
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s  %s", a.ui.Bold(s.Name), a.ui.Label(s.ID))
		if s.Description != nil {
			line += "  " + a.ui.Dim(*s.Description)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func newEvalsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project> <id>",
		Short: "Print one eval definition as normalized YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := a.ws.GetEval(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, detail)
			}
			fmt.Fprintf(out, "%s\n", a.ui.Dim("# "+detail.Path))
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(detail.Definition); err != nil {
				return fmt.Errorf("encode definition: %w", err)
			}
			return enc.Close()
		},
	}
}
