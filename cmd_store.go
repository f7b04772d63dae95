package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GhostScientist/assay/internal/models"
	"github.com/GhostScientist/assay/internal/storage"
	"github.com/GhostScientist/assay/internal/workspace"
)

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <project> <query>...",
		Short: "Full-text search over sample inputs and outputs",
		Long: `Search the samples of every run in a project. The query uses SQLite FTS5
syntax: terms, "phrases", AND / OR / NOT and prefix* matches.

Examples:
  assay search ./capitals canberra
  assay search ./capitals 'capital AND NOT paris' --limit 5`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			hits, err := a.ws.SearchSamples(cmd.Context(), args[0], query, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(out, a.ui.Dim(fmt.Sprintf("No samples match %q", query)))
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%s  %s #%d  %s\n",
					a.ui.Label(h.EvalID), a.ui.Dim(h.ModelID), h.Index, a.ui.Bold(h.ID))
				fmt.Fprintf(out, "  in:  %s\n", h.InputJSON)
				if h.OutputJSON != nil {
					fmt.Fprintf(out, "  out: %s\n", *h.OutputJSON)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultSearchLimit, "maximum number of hits")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect eval runs recorded in a project",
	}

	var evalID string
	list := &cobra.Command{
		Use:   "list <project>",
		Short: "List runs newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.ws.ListRuns(cmd.Context(), args[0], evalID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, a.ui.Dim("No runs"))
				return nil
			}
			for _, r := range runs {
				status := a.ui.Warn(r.Status)
				switch r.Status {
				case models.RunStatusCompleted:
					status = a.ui.OK(r.Status)
				case models.RunStatusFailed:
					status = a.ui.Error(r.Status)
				}
				fmt.Fprintf(out, "%s  %s  %s  %s  %s\n",
					a.ui.Bold(r.ID), a.ui.Label(r.EvalID), r.ModelID, status,
					a.ui.Dim(r.StartedAt.Local().Format(time.DateTime)))
			}
			return nil
		},
	}
	list.Flags().StringVar(&evalID, "eval", "", "only runs of this eval id")
	cmd.AddCommand(list)
	return cmd
}

func newAnnotateCmd(a *app) *cobra.Command {
	var req workspace.AnnotationRequest
	cmd := &cobra.Command{
		Use:   "annotate <project> <sample-id>",
		Short: "Attach a human annotation to a sample",
		Long: `Attach an annotation to a sample. The author defaults to $USER.

Examples:
  assay annotate ./capitals 3f2a... --type label --content correct`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SampleID = args[1]
			ann, err := a.ws.AnnotateSample(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), ann)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s\n", a.ui.OK("Annotated"), ann.Type, ann.SampleID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Author, "author", defaultAuthor(), "annotation author")
	cmd.Flags().StringVar(&req.Type, "type", "note", "annotation type")
	cmd.Flags().StringVar(&req.Content, "content", "", "annotation text")
	return cmd
}

func defaultAuthor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Maintain a project's run store",
	}

	version := &cobra.Command{
		Use:   "version <project>",
		Short: "Print the newest schema migration applied to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.ws.StoreVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": v})
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	reindex := &cobra.Command{
		Use:   "reindex <project>",
		Short: "Rebuild the sample search index from the samples table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ws.ReindexSamples(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !a.jsonOut {
				fmt.Fprintln(cmd.OutOrStdout(), a.ui.OK("Reindexed")+" "+args[0])
			}
			return nil
		},
	}

	cmd.AddCommand(version, reindex)
	return cmd
}
