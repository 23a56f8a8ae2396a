package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/codegen"
	"github.com/YuminosukeSato/forestjit/engine"
	"github.com/YuminosukeSato/forestjit/internal/forestgen"
	"github.com/YuminosukeSato/forestjit/metrics"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

type verifyCmdConfig struct {
	input  string
	header bool
	random int
	seed   int64
}

func verifyCmd(root *rootCmdConfig) *cobra.Command {
	config := &verifyCmdConfig{}
	cmd := &cobra.Command{
		Use:   "verify [model]",
		Short: "Check compiled predictions against the interpreter",
		Long:  `Predict the same rows with the interpreter and with kernels compiled at every optimization level, and report any element that is not bit-identical`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := root.load(args)
			if err != nil {
				return err
			}
			var X *mat.Dense
			if config.random > 0 {
				nf := m.NumFeatures()
				X = mat.NewDense(config.random, nf, forestgen.Rows(rand.New(rand.NewSource(config.seed)), config.random, nf))
			} else {
				in, err := openInput(config.input, cmd.InOrStdin())
				if err != nil {
					return err
				}
				defer in.Close()
				if X, err = readRows(in, m.NumFeatures(), config.header, m.Forest().FeatureNames); err != nil {
					return err
				}
			}

			threads := root.cfg.Threads
			want, err := engine.PredictInterpreted(m.Forest(), X, threads)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			mod, err := codegen.Lower(m.Forest(), codegen.WithSmallSetThreshold(root.cfg.SmallSetThreshold))
			if err != nil {
				return err
			}
			for level := backend.O0; level <= backend.MaxOptLevel; level++ {
				ep, err := engine.Compile(mod, engine.Options{Backend: root.cfg.Backend, Level: level})
				if err != nil {
					return err
				}
				got, err := engine.Predict(ep, X, threads)
				if err != nil {
					return err
				}
				report, err := metrics.Compare(want, got)
				if err != nil {
					return err
				}
				status := "ok"
				if !report.Identical() {
					status = "MISMATCH"
					failed++
				}
				fmt.Fprintf(out, "%s rows=%d outputs=%d mismatches=%d max_abs_error=%g %s\n",
					level, report.Rows, report.Outputs, report.Mismatches, report.MaxAbsError, status)
			}
			if failed > 0 {
				return errors.Newf("%d optimization levels disagree with the interpreter", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&config.input, "input", "i", "-", "CSV file with one row of features per line (- for stdin)")
	cmd.Flags().BoolVar(&config.header, "header", false, "the first CSV line names the features")
	cmd.Flags().IntVar(&config.random, "random", 0, "verify on this many random rows instead of reading input")
	cmd.Flags().Int64Var(&config.seed, "seed", 1, "seed for --random")
	return cmd
}
