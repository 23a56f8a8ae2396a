package main

import (
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit"
)

type predictCmdConfig struct {
	input       string
	header      bool
	interpreted bool
	raw         bool
}

func predictCmd(root *rootCmdConfig) *cobra.Command {
	config := &predictCmdConfig{}
	cmd := &cobra.Command{
		Use:   "predict [model]",
		Short: "Predict rows read from a CSV file",
		Long:  `Compile the model and write one CSV line of predictions per input row to standard output`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := root.load(args)
			if err != nil {
				return err
			}
			X, err := config.readInput(cmd, m)
			if err != nil {
				return err
			}
			predictions, err := config.predict(m, X, root.cfg.Threads)
			if err != nil {
				return err
			}
			return writeRows(cmd.OutOrStdout(), predictions)
		},
	}
	cmd.Flags().StringVarP(&config.input, "input", "i", "-", "CSV file with one row of features per line (- for stdin)")
	cmd.Flags().BoolVar(&config.header, "header", false, "the first CSV line names the features")
	cmd.Flags().BoolVar(&config.interpreted, "interpreted", false, "skip compilation and use the interpreter")
	cmd.Flags().BoolVar(&config.raw, "raw", false, "print raw scores before averaging and the objective transform (interpreter)")
	return cmd
}

func (c *predictCmdConfig) readInput(cmd *cobra.Command, m *forestjit.Model) (*mat.Dense, error) {
	in, err := openInput(c.input, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return readRows(in, m.NumFeatures(), c.header, m.Forest().FeatureNames)
}

func (c *predictCmdConfig) predict(m *forestjit.Model, X *mat.Dense, threads int) (*mat.Dense, error) {
	if c.raw {
		rows, _ := X.Dims()
		out := mat.NewDense(rows, m.NumOutputs(), nil)
		for i := 0; i < rows; i++ {
			raw, err := m.PredictRaw(X.RawRowView(i))
			if err != nil {
				return nil, err
			}
			out.SetRow(i, raw)
		}
		return out, nil
	}
	if !c.interpreted {
		if _, err := m.CompileDefault(); err != nil {
			return nil, err
		}
	}
	return m.PredictWithThreads(X, threads)
}
