// Command forestjit inspects, compiles and runs LightGBM text models.
//
// Usage:
//
//	forestjit info model.txt                       # print model metadata
//	forestjit ir model.txt --optimized             # print the lowered IR
//	forestjit predict model.txt --input rows.csv   # write predictions as CSV
//	forestjit verify model.txt --input rows.csv    # compiled vs interpreted parity
//
// Every persistent flag can also be set through a FORESTJIT_* environment
// variable or a config file passed with --config.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/forestjit"
	"github.com/YuminosukeSato/forestjit/config"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

var version = "dev"

// rootCmdConfig is filled in by the root command before any subcommand runs.
type rootCmdConfig struct {
	v   *viper.Viper
	cfg config.Config
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	root := &rootCmdConfig{v: config.NewViper()}
	rootCmd := &cobra.Command{
		Use:           "forestjit",
		Short:         "forestjit compiles LightGBM models into fast prediction kernels",
		Long:          `A tool to inspect LightGBM text models, print their lowered IR, and predict rows with compiled or interpreted evaluation`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.v)
			if err != nil {
				return err
			}
			root.cfg = cfg
			return log.SetupLogger(cfg.LogLevel)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyConfig, "", "path to a config file (yaml, json or toml)")
	flags.Int(config.KeyThreads, 0, "prediction workers (defaults to the number of CPUs)")
	flags.String("opt-level", "", "optimization level O0..O3")
	flags.String(config.KeyBackend, "", "code generation backend")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Int("small-set-threshold", 0, "largest categorical set compiled to equality tests")
	mustBindPFlag(root.v, config.KeyConfig, flags.Lookup(config.KeyConfig))
	mustBindPFlag(root.v, config.KeyThreads, flags.Lookup(config.KeyThreads))
	mustBindPFlag(root.v, config.KeyOptLevel, flags.Lookup("opt-level"))
	mustBindPFlag(root.v, config.KeyBackend, flags.Lookup(config.KeyBackend))
	mustBindPFlag(root.v, config.KeyLogLevel, flags.Lookup("log-level"))
	mustBindPFlag(root.v, config.KeySmallSetThreshold, flags.Lookup("small-set-threshold"))

	rootCmd.AddCommand(infoCmd(root), irCmd(root), predictCmd(root), verifyCmd(root))
	return rootCmd
}

// mustBindPFlag binds a flag to a viper key. Unset flags fall through to the
// environment, the config file and the defaults, in that order.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// modelPath prefers the positional argument over the configured path.
func (r *rootCmdConfig) modelPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return r.cfg.ModelPath
}

func (r *rootCmdConfig) load(args []string) (*forestjit.Model, error) {
	path := r.modelPath(args)
	if path == "" {
		return nil, errMissingModel
	}
	return forestjit.Load(path, r.cfg.Options()...)
}
