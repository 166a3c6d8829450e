package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/snapshot"
)

func newInspectCmd() *cobra.Command {
	var (
		jsonOutput bool
		listIDs    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Summarize a snapshot file (the bundled snapshot when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				snap snapshot.Snapshot
				err  error
			)
			source := "bundled"
			if len(args) > 0 {
				source = args[0]
				snap, err = snapshot.Load(source)
			} else {
				snap, err = snapshot.Bundled()
			}
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), source, snap, jsonOutput, listIDs)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&listIDs, "ids", false, "List item ids")

	return cmd
}

type summary struct {
	Source      string    `json:"source"`
	Version     int       `json:"version"`
	GeneratedAt string    `json:"generatedAt"`
	Items       int       `json:"items"`
	WithCounts  int       `json:"itemsWithPointCount"`
	PointTotal  int64     `json:"pointTotal"`
	Bounds      []float64 `json:"bounds,omitempty"`
	IDs         []string  `json:"ids,omitempty"`
}

func summarize(source string, snap snapshot.Snapshot, listIDs bool) summary {
	s := summary{
		Source:      source,
		Version:     snap.Version,
		GeneratedAt: snap.GeneratedAt.Format(time.RFC3339),
		Items:       len(snap.Items),
		PointTotal:  snap.PointTotal(),
	}
	for i := range snap.Items {
		if _, ok := snap.Items[i].PointCount(); ok {
			s.WithCounts++
		}
		if listIDs {
			s.IDs = append(s.IDs, snap.Items[i].ID())
		}
	}
	if b, ok := snap.Bounds(); ok {
		v := b.Slice()
		s.Bounds = v[:]
	}
	return s
}

func printSummary(w io.Writer, source string, snap snapshot.Snapshot, jsonOutput, listIDs bool) error {
	s := summarize(source, snap, listIDs)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Source:\t%s\n", s.Source)
	_, _ = fmt.Fprintf(tw, "Format version:\t%d\n", s.Version)
	_, _ = fmt.Fprintf(tw, "Generated:\t%s\n", s.GeneratedAt)
	_, _ = fmt.Fprintf(tw, "Items:\t%d (%d with point counts)\n", s.Items, s.WithCounts)
	_, _ = fmt.Fprintf(tw, "Total points:\t%d\n", s.PointTotal)
	if s.Bounds != nil {
		_, _ = fmt.Fprintf(tw, "Bounds:\t%.4f, %.4f, %.4f, %.4f\n", s.Bounds[0], s.Bounds[1], s.Bounds[2], s.Bounds[3])
	} else {
		_, _ = fmt.Fprintf(tw, "Bounds:\t-\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, id := range s.IDs {
		_, _ = fmt.Fprintln(w, id)
	}
	return nil
}
