package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/config"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region main
func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region root

// app carries what every subcommand needs once PersistentPreRunE has run.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	out    io.Writer
	logger *zap.Logger
	cfg    *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "blackbox",
		Short: "Black-box regression harness for barcode decoders",
		Long: `blackbox decodes every fixture image of a suite at each declared rotation,
in plain and try-harder mode, compares the results with the expected text and
metadata, and fails when a rotation misses its pass or misread thresholds.

Suites are declared in a YAML file (see --config).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "suites.yaml", "suite declarations (YAML)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	logger, err := logging.New(a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// #endregion root
