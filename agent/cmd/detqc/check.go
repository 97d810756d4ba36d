package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/detqc/agent/internal/compute"
	"github.com/obsidianstack/detqc/agent/internal/config"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/agent/internal/quality"
	"github.com/obsidianstack/detqc/pkg/types"
)

func newCheckCmd(root *rootOptions, code *int) *cobra.Command {
	var input, hits string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the configured metrics once and print the verdict",
		Long: `Loads the aggregates once, evaluates every configured metric and prints
the per-metric and overall verdicts.

Exit status: 0 good, 3 medium, 1 bad, 2 on a usage or configuration error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if input != "" {
				cfg.Store.Source = config.SourceFile
				cfg.Store.Path = input
			}
			if hits != "" {
				cfg.Occupancy.HitsPath = hits
			}

			e, err := compute.NewEngine(cfg, histstore.New(0))
			if err != nil {
				return err
			}
			out := e.Process(cmd.Context(), time.Now())
			if out.LoadErr != nil {
				return out.LoadErr
			}
			if out.HitsErr != nil {
				return out.HitsErr
			}

			printReport(cmd.OutOrStdout(), out.Report)
			*code = exitCodeFor(out.Report.Overall)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "text exposition file to evaluate (overrides store settings)")
	cmd.Flags().StringVar(&hits, "hits", "", "JSON-lines hit file to group before evaluating")
	return cmd
}

func exitCodeFor(q types.Quality) int {
	switch q {
	case types.Good:
		return ExitGood
	case types.Medium:
		return ExitMedium
	default:
		return ExitBad
	}
}

func printReport(w io.Writer, r *quality.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tKIND\tQUALITY\tDETAIL")
	for _, m := range r.Metrics {
		d := quality.DecorateMetric(m)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Kind, m.Quality, d.Lines[len(d.Lines)-1])
	}
	_ = tw.Flush()

	d := quality.DecorateReport(r)
	fmt.Fprintf(w, "\n[%s] %s\n", d.Color, strings.Join(d.Lines, " | "))
}
