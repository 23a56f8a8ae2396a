package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/forestjit/backend/closure"
	"github.com/YuminosukeSato/forestjit/codegen"
	"github.com/YuminosukeSato/forestjit/ir"
)

type irCmdConfig struct {
	optimized bool
	stats     bool
}

func irCmd(root *rootCmdConfig) *cobra.Command {
	config := &irCmdConfig{}
	cmd := &cobra.Command{
		Use:   "ir [model]",
		Short: "Print the lowered IR of a model",
		Long:  `Lower every tree of the model to IR and print it, optionally after the closure backend's passes at the configured optimization level`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := root.load(args)
			if err != nil {
				return err
			}
			mod, err := codegen.Lower(m.Forest(), codegen.WithSmallSetThreshold(root.cfg.SmallSetThreshold))
			if err != nil {
				return err
			}
			if config.optimized {
				mod = optimizeModule(mod, root)
			}
			out := cmd.OutOrStdout()
			if config.stats {
				blocks, instrs := mod.Stats()
				_, err = fmt.Fprintf(out, "functions: %d\nblocks: %d\ninstructions: %d\nbitsets: %d\n",
					len(mod.Funcs), blocks, instrs, len(mod.Bitsets))
				return err
			}
			_, err = fmt.Fprint(out, ir.Print(mod))
			return err
		},
	}
	cmd.Flags().BoolVar(&config.optimized, "optimized", false, "apply the closure backend's passes before printing")
	cmd.Flags().BoolVar(&config.stats, "stats", false, "print only block and instruction counts")
	return cmd
}

// optimizeModule returns a copy of mod whose functions went through the
// closure backend's passes. mod itself is left untouched.
func optimizeModule(mod *ir.Module, root *rootCmdConfig) *ir.Module {
	level := root.cfg.Level()
	opt := *mod
	opt.Funcs = make([]*ir.Func, len(mod.Funcs))
	for i, fn := range mod.Funcs {
		opt.Funcs[i] = closure.Optimize(fn, level)
	}
	return &opt
}
