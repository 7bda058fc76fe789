package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/schema"
)

var (
	configFile    string
	dataRoot      string
	network       string
	variablesFile string
	verbose       bool
	concurrency   int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agage",
	Short: "Build the AGAGE public data archive",
	Long: `agage reads the instrument records of a network (GCWerks netCDF files,
ALE/GAGE and GCMS Magnum archives, GCMS-Medusa flask files), standardises
them and writes the public archive: combined and individual instrument
records, baseline flags and monthly baseline means.

All paths are relative to <data>/<network>, as set in the config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "config.yaml", "path to the config file")
	pf.StringVar(&dataRoot, "data", "data", "data directory holding one folder per network")
	pf.StringVar(&network, "network", "agage", "network to process")
	pf.StringVar(&variablesFile, "variables", "", "variable table overriding the built-in one")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	pf.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of sites or files processed at once")
}

// networkPaths loads the config file and resolves the selected network.
func networkPaths() (*config.Paths, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg.Network(dataRoot, network)
}

// variableTable returns the table given with --variables, else the
// network's own variables.json, else the built-in one.
func variableTable(paths *config.Paths) (*schema.Table, error) {
	if variablesFile != "" {
		return schema.LoadFile(variablesFile)
	}
	if p := paths.Abs("variables.json"); fileExists(p) {
		return schema.LoadFile(p)
	}
	return schema.Default(), nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
