package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/detqc/agent/internal/daq"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/agent/internal/occupancy"
	"github.com/obsidianstack/detqc/pkg/types"
)

func newOccupancyCmd(root *rootOptions) *cobra.Command {
	var outPath, validOut string
	cmd := &cobra.Command{
		Use:   "occupancy <hits.jsonl>",
		Short: "Group a hit file by readout unit and write the occupancy histograms",
		Long: `Reads decoded hits, groups them by electronics unit and writes the
hits-per-unit distribution, the unit map and the amplitude spectrum as
Prometheus text exposition.

With --valid-out the hits that were counted are also written back as JSON
lines, giving a cleaned hit file that can be replayed through serve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			hits, err := daq.LoadHits(args[0])
			if err != nil {
				return err
			}

			layout := occupancy.DefaultLayout()
			opts := occupancy.Options{
				MaxHits:      cfg.Occupancy.MaxHits,
				MinAmplitude: cfg.Occupancy.MinAmplitude,
				AmplitudeMax: cfg.Occupancy.AmplitudeMax,
			}
			res := occupancy.Compute(hits, layout, opts)
			fmt.Fprintf(cmd.ErrOrStderr(), "hits=%d counted=%d invalid=%d below_threshold=%d units=%d\n",
				len(hits), res.Valid, res.Rejected, res.BelowThreshold, res.Distribution.Units())

			if validOut != "" {
				if err := writeValidHits(validOut, hits, layout, opts); err != nil {
					return err
				}
			}

			aggs := map[string]types.Aggregate{
				cfg.Occupancy.DistributionName: res.Distribution,
				cfg.Occupancy.AmplitudeName:    res.Amplitude,
			}
			if res.Map != nil {
				aggs[cfg.Occupancy.MapName] = res.Map
			}

			w := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %q: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}
			return histstore.WriteExposition(w, aggs)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the exposition to this file instead of stdout")
	cmd.Flags().StringVar(&validOut, "valid-out", "", "write the counted hits to this JSON-lines file")
	return cmd
}

func writeValidHits(path string, hits []occupancy.Hit, scheme occupancy.Scheme, opts occupancy.Options) error {
	kept := make([]occupancy.Hit, 0, len(hits))
	for _, h := range hits {
		if _, err := occupancy.Admit(h, scheme, opts); err == nil {
			kept = append(kept, h)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := daq.WriteHits(f, kept); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
