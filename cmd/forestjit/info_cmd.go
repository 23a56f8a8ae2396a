package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/forestjit"
	"github.com/YuminosukeSato/forestjit/forest"
)

func infoCmd(root *rootCmdConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "info [model]",
		Short: "Print model metadata",
		Long:  `Parse the model and print its header, objective and tree statistics`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := root.load(args)
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), m)
		},
	}
}

type treeStats struct {
	leaves, maxDepth, numeric, categorical int
}

func collectStats(f *forest.Forest) treeStats {
	var s treeStats
	for _, t := range f.Trees {
		s.leaves += t.NumLeaves()
		if d := t.Depth(); d > s.maxDepth {
			s.maxDepth = d
		}
		t.Walk(func(_ forest.NodeID, n *forest.Node) {
			switch n.Kind {
			case forest.KindNumeric:
				s.numeric++
			case forest.KindCategorical:
				s.categorical++
			}
		})
	}
	return s
}

func writeInfo(w io.Writer, m *forestjit.Model) error {
	f := m.Forest()
	stats := collectStats(f)
	state := m.Info()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"version", f.Version},
		{"fingerprint", f.FingerprintHex()},
		{"objective", f.Objective.Name},
		{"transform", f.Objective.Transform.String()},
		{"state", state.State},
		{"features", fmt.Sprint(state.NFeatures)},
		{"outputs", fmt.Sprint(state.NOutputs)},
		{"trees", fmt.Sprint(m.NumTrees())},
		{"iterations", fmt.Sprint(f.NumIterations())},
		{"average output", fmt.Sprint(f.AverageOutput)},
		{"leaves", fmt.Sprint(stats.leaves)},
		{"max depth", fmt.Sprint(stats.maxDepth)},
		{"numeric splits", fmt.Sprint(stats.numeric)},
		{"categorical splits", fmt.Sprint(stats.categorical)},
	}
	if len(f.FeatureNames) > 0 {
		rows = append(rows, [2]string{"feature names", strings.Join(f.FeatureNames, " ")})
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
