package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/csvconv"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/pipeline"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/vm"
)

var runOpts = pipeline.DefaultOptions()

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the whole archive",
	Long: `Rebuilds the archive: combined records first, then the records of every
instrument with a release schedule, then README.md and CHANGELOG.md.
Failures are appended to error_log_combined.txt and error_log_individual.txt
in the network folder.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.RunAll(cmd.Context(), runOpts)
	},
}

var individualCmd = &cobra.Command{
	Use:   "individual [instrument]",
	Short: "Write the records of one instrument",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.RunIndividualInstrument(cmd.Context(), args[0], runOpts)
	},
}

var combinedCmd = &cobra.Command{
	Use:   "combined",
	Short: "Write the combined records of every site with a data combination table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.RunCombinedInstruments(cmd.Context(), runOpts)
	},
}

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Convert the archive to CSV",
	Long:  `Mirrors the output archive into a copy named with a -csv suffix, every netCDF file converted to a commented CSV file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := networkPaths()
		if err != nil {
			return err
		}
		if err := paths.Check(config.IgnoreInputs, ""); err != nil {
			return err
		}
		dst, err := csvconv.New(logger, concurrency).Convert(cmd.Context(), paths.OutputAbs(), paths.Dir)
		if err != nil {
			return err
		}
		logger.Info("CSV archive written", zap.String("path", dst))
		return nil
	},
}

var (
	vmInsertURL   string
	recsPerInsert int
	metricPrefix  string
	scanBatch     int
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Push an archive file into Victoria Metrics",
	Long: `Pushes the variables of a netCDF file into Victoria Metrics, labelled
with the file's site, species, network, instrument, scale and units. The file
is a path on disk or a file of the network's output archive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			paths, perr := networkPaths()
			if perr != nil {
				return errors.Join(err, perr)
			}
			local, cleanup, err := archive.NewSource(paths.OutputAbs()).LocalPath(path)
			if err != nil {
				return err
			}
			defer cleanup()
			path = local
		}
		e := vm.NewExporter(logger, concurrency, recsPerInsert)
		return e.ExportFile(cmd.Context(), path, vmInsertURL, metricPrefix, scanBatch)
	},
}

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "Print the instrument type numbers of the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := networkPaths()
		if err != nil {
			return err
		}
		files, err := selection.ScheduleFiles(paths.Dir)
		if err != nil {
			return err
		}
		defs, err := instrument.Define(files)
		if err != nil {
			return err
		}
		for _, name := range defs.Names() {
			n, _ := defs.Number(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", n, name)
		}
		return nil
	},
}

var (
	setupUser  string
	setupForce bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default config file",
	Long: `Writes a config file with the agage and agage_test layouts, or empty
input paths when a network is given with --network.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFile); err == nil && !setupForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", configFile)
		}
		net := ""
		if cmd.Flags().Changed("network") {
			net = network
		}
		cfg := config.Default(setupUser, net)
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
			return err
		}
		f, err := os.Create(configFile)
		if err != nil {
			return err
		}
		if err := config.Write(f, cfg); err != nil {
			f.Close()
			return err
		}
		logger.Info("config written", zap.String("path", configFile))
		return f.Close()
	},
}

func newPipeline() (*pipeline.Pipeline, error) {
	paths, err := networkPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.Check(config.IgnoreOutputs, ""); err != nil {
		logger.Warn("input path check", zap.Error(err))
	}
	table, err := variableTable(paths)
	if err != nil {
		return nil, err
	}
	runOpts.Concurrency = concurrency
	return pipeline.New(logger, paths, table)
}

func addRunFlags(cmd *cobra.Command, all bool) {
	f := cmd.Flags()
	f.BoolVar(&runOpts.Baseline, "baseline", runOpts.Baseline, "write git baseline flags")
	f.BoolVar(&runOpts.Monthly, "monthly", runOpts.Monthly, "write monthly baseline means")
	f.BoolVar(&runOpts.Resample, "resample", runOpts.Resample, "average high frequency instruments")
	f.StringSliceVar(&runOpts.Species, "species", nil, "species to process, all when empty")
	f.StringSliceVar(&runOpts.Sites, "sites", nil, "sites to process, all when empty")
	if cmd != combinedCmd {
		f.BoolVar(&runOpts.TopLevelOnly, "top-level-only", false, "skip the individual-instruments folders")
	}
	if all {
		f.BoolVar(&runOpts.Delete, "delete", runOpts.Delete, "empty the archive first")
		f.BoolVar(&runOpts.Combined, "combined", runOpts.Combined, "build combined records")
		f.StringSliceVar(&runOpts.Include, "include", nil, "instruments to process, all when empty")
		f.StringSliceVar(&runOpts.Exclude, "exclude", nil, "instruments to skip")
	}
}

func init() {
	addRunFlags(runCmd, true)
	addRunFlags(individualCmd, false)
	addRunFlags(combinedCmd, false)

	ef := exportCmd.Flags()
	ef.StringVar(&vmInsertURL, "vmInsertUrl", "http://localhost:8428/write", "Victoria Metrics insert API URL. Default: InfluxDB line protocol v2")
	ef.IntVar(&recsPerInsert, "recsPerInsert", 500, "number of records sent to VM in one batch")
	ef.StringVar(&metricPrefix, "metricPrefix", "agage", "prefix of the metric names")
	ef.IntVar(&scanBatch, "scanBatch", 0, "number of timestamps read from the file at once")

	setupCmd.Flags().StringVar(&setupUser, "user", "", "name written into the history attribute")
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "overwrite an existing config file")

	rootCmd.AddCommand(runCmd, individualCmd, combinedCmd, csvCmd, exportCmd, instrumentsCmd, setupCmd)
}
