package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowplan/internal/builder"
	"github.com/rendis/flowplan/internal/diagram"
	"github.com/rendis/flowplan/internal/store"
	"github.com/rendis/flowplan/pkg/schema"
)

func (a *app) buildCmd() *cobra.Command {
	var out string
	var save bool

	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Compile a workflow document into an execution plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			var st store.PlanStore
			if save {
				db, err := a.openStore(cmd)
				if err != nil {
					return err
				}
				defer db.Close()
				st = db
			}

			res, err := a.newCompiler(st).Compile(cmd.Context(), def)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), res.String())
			for _, w := range res.Plan.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w.Message)
			}
			return writeJSON(cmd, out, res.Plan)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the plan to this file instead of stdout")
	cmd.Flags().BoolVar(&save, "save", false, "store the plan in the plan database")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Report every problem with a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			result := a.newCompiler(nil).Validate(cmd.Context(), def)
			if asJSON {
				if err := writeJSON(cmd, "", result); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, issue := range result.Errors {
					fmt.Fprintf(w, "error   %-24s %-22s %s\n", issue.Path, issue.Code, issue.Message)
				}
				for _, issue := range result.Warnings {
					fmt.Fprintf(w, "warning %-24s %-22s %s\n", issue.Path, issue.Code, issue.Message)
				}
				if result.Valid() {
					fmt.Fprintf(w, "%s: valid (%d warnings)\n", args[0], len(result.Warnings))
				}
			}
			if err := result.ToError(); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary FILE",
		Short: "Print plan statistics for a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			res, err := a.newCompiler(nil).Compile(cmd.Context(), def)
			if err != nil {
				return err
			}
			return writeJSON(cmd, "", builder.Summarize(res.Plan))
		},
	}
}

type inspection struct {
	Reachability  *schema.ReachabilityResult `json:"reachability,omitempty"`
	Depths        map[string]int             `json:"depths"`
	Cycles        []builder.Cycle            `json:"cycles"`
	DanglingEdges []builder.DanglingEdge     `json:"danglingEdges"`
	Error         string                     `json:"error,omitempty"`
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show raw graph facts: reachability, depths, cycles and dangling edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			report := inspection{
				Depths:        builder.CalculateNodeDepths(def),
				Cycles:        builder.DetectCycles(def),
				DanglingEdges: builder.ValidateEdgeReferences(def),
			}
			if reach, err := builder.ConstructPaths(def); err != nil {
				report.Error = err.Error()
			} else {
				report.Reachability = reach
			}
			if report.Cycles == nil {
				report.Cycles = []builder.Cycle{}
			}
			if report.DanglingEdges == nil {
				report.DanglingEdges = []builder.DanglingEdge{}
			}
			return writeJSON(cmd, "", report)
		},
	}
}

func (a *app) diagramCmd() *cobra.Command {
	var format, out, planID string

	cmd := &cobra.Command{
		Use:   "diagram [FILE]",
		Short: "Render a workflow or stored plan as mermaid, ascii, png, svg or dot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan *schema.ExecutionPlan
			switch {
			case planID != "":
				db, err := a.openStore(cmd)
				if err != nil {
					return err
				}
				defer db.Close()
				rec, err := a.newCompiler(db).Plan(cmd.Context(), planID)
				if err != nil {
					return err
				}
				plan = rec.Plan
			case len(args) == 1:
				def, err := a.loader.LoadFile(args[0])
				if err != nil {
					return err
				}
				res, err := a.newCompiler(nil).Compile(cmd.Context(), def)
				if err != nil {
					return err
				}
				plan = res.Plan
			default:
				return fmt.Errorf("either FILE or --plan is required")
			}

			model, err := diagram.Build(plan)
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "mermaid":
				return writeOutput(cmd, out, []byte(diagram.RenderMermaid(model)))
			case "ascii":
				return writeOutput(cmd, out, []byte(diagram.RenderASCIIAuto(cmd.Context(), model, a.cfg.MermaidBinDir)))
			}
			imgFormat, err := diagram.ParseImageFormat(format)
			if err != nil {
				return err
			}
			data, err := diagram.RenderImage(cmd.Context(), model, imgFormat)
			if err != nil {
				return err
			}
			if imgFormat == diagram.FormatPNG && out == "" {
				return fmt.Errorf("png output needs --out")
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "mermaid, ascii, png, svg or dot")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&planID, "plan", "", "render a stored plan instead of a file")
	return cmd
}

func (a *app) plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and maintain stored plans",
	}

	var filter store.PlanFilter
	var since time.Duration
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored plans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			f := filter
			if since > 0 {
				t := time.Now().UTC().Add(-since)
				f.Since = &t
			}
			recs, err := a.newCompiler(db).Plans(cmd.Context(), f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range recs {
				fmt.Fprintf(w, "%s  %-24s nodes=%-4d levels=%-4d warnings=%-3d %s\n",
					r.ID, r.Workflow, r.NodeCount, r.LevelCount, r.WarningCount, r.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	list.Flags().StringVar(&filter.Workflow, "workflow", "", "only plans of this workflow")
	list.Flags().StringVar(&filter.Hash, "hash", "", "only plans with this definition hash")
	list.Flags().DurationVar(&since, "since", 0, "only plans created within this duration")
	list.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of plans")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "number of plans to skip")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored plan as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			rec, err := a.newCompiler(db).Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, "", rec)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.DeletePlan(cmd.Context(), args[0])
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete plans older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			db, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.PrunePlans(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d plan(s)\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")

	cmd.AddCommand(list, show, del, prune)
	return cmd
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return writeOutput(cmd, path, append(data, '\n'))
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}
