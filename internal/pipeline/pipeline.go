// Package pipeline builds the output archive of a network: combined records
// first, then every released instrument record, with baseline flags and
// monthly baseline means alongside.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/combine"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/output"
	"github.com/rtm0/agage/internal/reader"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/species"
)

// Error log files, written into the network data directory.
const (
	ErrorLogIndividual = "error_log_individual.txt"
	ErrorLogCombined   = "error_log_combined.txt"
)

// Files copied from the network data directory into the archive.
var documents = []string{"README.md", "CHANGELOG.md"}

const (
	individualFolder = "individual-instruments"
	baselineFolder   = "baseline-flags"
	monthlyFolder    = "monthly-baseline"
	baselineExtra    = "git-baseline"
	monthlyExtra     = "monthly-baseline"
)

// Options control a run.
type Options struct {
	// Delete empties the output archive first.
	Delete bool
	// Combined builds the combined records.
	Combined bool
	// Baseline writes the git baseline flags.
	Baseline bool
	// Monthly writes monthly baseline means; needs Baseline.
	Monthly bool
	// Include lists the instruments to process; empty means every
	// instrument with a release schedule.
	Include []string
	// Exclude lists instruments to skip.
	Exclude []string
	// Species and Sites restrict the run; empty means all.
	Species []string
	Sites   []string
	// Resample averages high frequency instruments.
	Resample bool
	// TopLevelOnly skips the individual-instruments folders.
	TopLevelOnly bool
	// Concurrency is the number of sites processed at once.
	Concurrency int
}

// DefaultOptions returns the options of a full archive build.
func DefaultOptions() Options {
	return Options{
		Delete:      true,
		Combined:    true,
		Baseline:    true,
		Monthly:     true,
		Resample:    true,
		Concurrency: 4,
	}
}

func (o Options) validate() error {
	if o.Monthly && !o.Baseline {
		return errors.New("monthly baseline files can only be produced if baseline flags are written")
	}
	return nil
}

// Result is the outcome of processing one species at one site.
type Result struct {
	Site    string
	Species string
	Err     error
}

// Pipeline runs the archive build of one network.
type Pipeline struct {
	logger   *zap.Logger
	paths    *config.Paths
	table    *schema.Table
	reader   *reader.Reader
	combiner *combine.Combiner
	now      func() time.Time
}

// New prepares a pipeline for a network: instrument numbering from the
// release schedules, attribute metadata and readers.
func New(logger *zap.Logger, paths *config.Paths, table *schema.Table) (*Pipeline, error) {
	files, err := selection.ScheduleFiles(paths.Dir)
	if err != nil {
		return nil, err
	}
	defs, err := instrument.Define(files)
	if err != nil {
		return nil, err
	}
	f, err := formatting.NewFormatter(paths.Dir, paths.Network, paths.User)
	if err != nil {
		return nil, err
	}
	r, err := reader.New(logger, paths, table, defs, f)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		logger:   logger,
		paths:    paths,
		table:    table,
		reader:   r,
		combiner: combine.New(logger, r),
		now:      time.Now,
	}, nil
}

// Reader returns the reader used by the pipeline.
func (p *Pipeline) Reader() *reader.Reader {
	return p.reader
}

// RunAll rebuilds the archive. Failures of single records are written to
// the error logs and do not stop the run.
func (p *Pipeline) RunAll(ctx context.Context, opts Options) error {
	if p.paths.Network == "" {
		return errors.New("must specify network")
	}
	if p.paths.Output == "" {
		return fmt.Errorf("%w: %s for network %s", config.ErrPathNotSet, config.OutputPath, p.paths.Network)
	}
	if err := opts.validate(); err != nil {
		return err
	}
	for _, name := range []string{ErrorLogCombined, ErrorLogIndividual} {
		if err := os.Remove(p.paths.Abs(name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	out := p.paths.OutputAbs()
	if opts.Delete {
		p.logger.Info("deleting archive", zap.String("path", out))
		if err := archive.Delete(out, p.paths.Dir); err != nil {
			return err
		}
	}
	if err := archive.CreateEmpty(out); err != nil {
		return err
	}

	w, err := p.openWriter()
	if err != nil {
		return err
	}
	if err := p.runAll(ctx, w, opts); err != nil {
		w.Archive().Close()
		return err
	}
	if err := w.Archive().Close(); err != nil {
		return err
	}

	for _, name := range []string{ErrorLogCombined, ErrorLogIndividual} {
		if _, err := os.Stat(p.paths.Abs(name)); err == nil {
			p.logger.Warn("errors occurred during processing", zap.String("log", p.paths.Abs(name)))
		}
	}
	return nil
}

func (p *Pipeline) runAll(ctx context.Context, w *output.Writer, opts Options) error {
	// combined records go first: individual runs check for them
	if opts.Combined {
		if err := p.runCombined(ctx, w, opts); err != nil {
			return err
		}
	}
	instruments := opts.Include
	if len(instruments) == 0 {
		var err error
		if instruments, err = selection.Instruments(p.paths.Dir); err != nil {
			return err
		}
	}
	for _, instr := range instruments {
		if slices.Contains(opts.Exclude, instr) {
			continue
		}
		if err := p.runIndividual(ctx, w, instr, opts); err != nil {
			return err
		}
	}
	return p.copyDocuments(w)
}

func (p *Pipeline) openWriter() (*output.Writer, error) {
	aw, err := archive.OpenWriter(p.paths.OutputAbs())
	if err != nil {
		return nil, err
	}
	return output.NewWriter(p.logger, aw, p.table, p.paths.Network), nil
}

func (p *Pipeline) copyDocuments(w *output.Writer) error {
	for _, name := range documents {
		src := p.paths.Abs(name)
		if _, err := os.Stat(src); err != nil {
			p.logger.Info("no file to copy into archive", zap.String("file", name))
			continue
		}
		if w.Archive().IsZip() && len(w.Archive().List(name)) > 0 {
			p.logger.Warn("file already in archive", zap.String("file", name))
			continue
		}
		if err := w.Archive().CopyFile(src); err != nil {
			return fmt.Errorf("cannot copy %s into archive: %w", name, err)
		}
	}
	return nil
}

// RunIndividualInstrument writes the records of one instrument into the
// archive.
func (p *Pipeline) RunIndividualInstrument(ctx context.Context, instr string, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	w, err := p.openWriter()
	if err != nil {
		return err
	}
	if err := p.runIndividual(ctx, w, instr, opts); err != nil {
		w.Archive().Close()
		return err
	}
	return w.Archive().Close()
}

func (p *Pipeline) runIndividual(ctx context.Context, w *output.Writer, instr string, opts Options) error {
	sched, err := selection.LoadSchedule(p.paths.Dir, instr)
	if err != nil {
		return err
	}
	spp := filterSpecies(sched.Species(), opts.Species)
	if len(spp) == 0 {
		p.logger.Info("no species to process", zap.String("instrument", instr))
		return nil
	}
	sites := filterSites(sched.Sites(), opts.Sites)

	type job struct{ site, sp string }
	var jobs []job
	for _, sp := range spp {
		for _, site := range sites {
			jobs = append(jobs, job{site, sp})
		}
	}
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency(opts))
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.logger.Info("processing", zap.String("species", j.sp), zap.String("site", j.site), zap.String("instrument", instr))
			results[i] = Result{Site: j.site, Species: j.sp, Err: p.RunIndividualSite(w, sched, j.site, j.sp, opts)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return p.writeErrorLog(ErrorLogIndividual, results)
}

// RunIndividualSite writes the record of one instrument for a species at a
// site. It goes into the individual-instruments folder, and also into the
// species folder when the site has no combined record for the species.
func (p *Pipeline) RunIndividualSite(w *output.Writer, sched *selection.Schedule, site, sp string, opts Options) error {
	instr := sched.Instrument
	end, err := sched.EndDate(sp, site)
	if errors.Is(err, selection.ErrNotReleased) {
		return nil
	}
	if err != nil {
		return err
	}

	ropts := reader.Options{Exclude: true, Resample: opts.Resample, Scale: p.reader.ScaleDefaults(instr), DropNaN: true}
	ds, err := p.reader.Read(sp, site, instr, ropts)
	if err != nil {
		return fmt.Errorf("reading %s: %w", instr, err)
	}
	var flags *dataset.Dataset
	if opts.Baseline && reader.HasBaseline(instr) {
		if flags, err = p.reader.ReadBaseline(sp, site, instr, reader.GitPollutionFlag, opts.Resample, true); err != nil {
			return fmt.Errorf("reading %s baseline: %w", instr, err)
		}
	}
	if err := combine.TimestampChecks(ds, flags, p.reader.Instruments(), sp, site); err != nil {
		return err
	}

	comb, err := selection.LoadCombination(p.paths.Dir, site)
	if err != nil {
		return err
	}
	spf := species.Format(sp)
	var folders []string
	if !opts.TopLevelOnly {
		folders = append(folders, spf+"/"+individualFolder)
	}
	if len(comb.Instruments(sp)) <= 1 {
		folders = append(folders, spf)
	} else if opts.TopLevelOnly {
		return fmt.Errorf("combined instruments exist for %s at %s, but only top-level output was requested", sp, site)
	}

	individualSelection := ds.Attrs.String("instrument_selection")
	if individualSelection == "" {
		individualSelection = reader.IndividualSelection
	}
	var errs []error
	for _, folder := range folders {
		instrOut, sel := reader.OutputName(instr), individualSelection
		if folder == spf {
			// a single instrument in the data combination table is the
			// recommended record
			pattern := fmt.Sprintf("%s/%s_%s_%s*.nc", spf, strings.ToLower(p.paths.Network), strings.ToLower(site), spf)
			if len(w.Archive().List(pattern)) > 0 {
				return errors.Join(errs...)
			}
			instrOut, sel = "", instrument.SelectionText
		}
		ds.Attrs.Set("instrument_selection", sel)
		if _, err := w.Output(ds, output.Options{Instrument: instrOut, EndDate: end, SubPath: folder}); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if flags == nil {
			continue
		}
		flags.Attrs.Set("instrument_selection", sel)
		if err := p.outputBaseline(w, ds, flags, output.Options{Instrument: instrOut, EndDate: end, SubPath: folder}, opts.Monthly); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// outputBaseline writes the baseline flags and, with monthly, the monthly
// baseline means next to a record.
func (p *Pipeline) outputBaseline(w *output.Writer, ds, flags *dataset.Dataset, o output.Options, monthly bool) error {
	folder := o.SubPath
	o.SubPath, o.Extra = folder+"/"+baselineFolder, baselineExtra
	if _, err := w.Output(flags, o); err != nil {
		return fmt.Errorf("baseline output: %w", err)
	}
	if !monthly {
		return nil
	}
	m, err := convert.MonthlyBaseline(ds, flags, p.table)
	if err != nil {
		return fmt.Errorf("monthly baseline: %w", err)
	}
	o.SubPath, o.Extra = folder+"/"+monthlyFolder, monthlyExtra
	if _, err := w.Output(m, o); err != nil {
		return fmt.Errorf("monthly baseline output: %w", err)
	}
	return nil
}

// RunCombinedInstruments writes the combined records of every site with a
// data combination table.
func (p *Pipeline) RunCombinedInstruments(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	w, err := p.openWriter()
	if err != nil {
		return err
	}
	if err := p.runCombined(ctx, w, opts); err != nil {
		w.Archive().Close()
		return err
	}
	return w.Archive().Close()
}

func (p *Pipeline) runCombined(ctx context.Context, w *output.Writer, opts Options) error {
	sites, err := selection.CombinationSites(p.paths.Dir)
	if err != nil {
		return err
	}
	sites = filterSites(sites, opts.Sites)

	results := make([][]Result, len(sites))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency(opts))
	for i, site := range sites {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.logger.Info("processing combined records", zap.String("site", site))
			results[i] = p.RunCombinedSite(w, site, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return p.writeErrorLog(ErrorLogCombined, slices.Concat(results...))
}

// RunCombinedSite writes the combined record of every species in the data
// combination table of a site.
func (p *Pipeline) RunCombinedSite(w *output.Writer, site string, opts Options) []Result {
	comb, err := selection.LoadCombination(p.paths.Dir, site)
	if err != nil {
		return []Result{{Site: site, Species: "None", Err: err}}
	}
	spp := filterSpecies(comb.Species(), opts.Species)
	if len(spp) == 0 {
		p.logger.Info("no species to process", zap.String("site", site))
		return nil
	}
	results := make([]Result, len(spp))
	for i, sp := range spp {
		results[i] = Result{Site: site, Species: sp, Err: p.runCombinedSpecies(w, site, sp, opts)}
	}
	return results
}

func (p *Pipeline) runCombinedSpecies(w *output.Writer, site, sp string, opts Options) error {
	p.logger.Debug("combining datasets", zap.String("species", sp), zap.String("site", site))
	ropts := reader.Options{Exclude: true, Resample: opts.Resample, Scale: selection.DefaultScales, DropNaN: true}
	ds, err := p.combiner.CombineDatasets(sp, site, ropts)
	if err != nil {
		return fmt.Errorf("combining: %w", err)
	}
	var flags *dataset.Dataset
	if opts.Baseline {
		if flags, err = p.combiner.CombineBaseline(sp, site, opts.Resample, true); err != nil {
			return fmt.Errorf("combining baselines: %w", err)
		}
	}
	if err := combine.TimestampChecks(ds, flags, p.reader.Instruments(), sp, site); err != nil {
		return err
	}
	o := output.Options{SubPath: species.Format(sp)}
	if _, err := w.Output(ds, o); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if flags == nil {
		return nil
	}
	return p.outputBaseline(w, ds, flags, o, opts.Monthly)
}

// writeErrorLog appends the failed results to a log in the network data
// directory.
func (p *Pipeline) writeErrorLog(name string, results []Result) error {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			p.logger.Error("processing failed", zap.String("site", r.Site), zap.String("species", r.Species), zap.Error(r.Err))
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	f, err := os.OpenFile(p.paths.Abs(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "Processing attempted on %s\n", p.now().Format(dataset.DateLayout))
	for _, r := range failed {
		fmt.Fprintf(f, "%s %s: %s\n", r.Site, r.Species, strings.ReplaceAll(r.Err.Error(), "\n", " / "))
	}
	return f.Close()
}

func filterSpecies(all, want []string) []string {
	if len(want) == 0 {
		return all
	}
	var out []string
	for _, sp := range all {
		if slices.ContainsFunc(want, func(w string) bool { return species.Format(w) == species.Format(sp) }) {
			out = append(out, sp)
		}
	}
	return out
}

func filterSites(all, want []string) []string {
	if len(want) == 0 {
		return all
	}
	var out []string
	for _, site := range all {
		if slices.ContainsFunc(want, func(w string) bool { return strings.EqualFold(w, site) }) {
			out = append(out, site)
		}
	}
	return out
}

func concurrency(opts Options) int {
	if opts.Concurrency < 1 {
		return 1
	}
	return opts.Concurrency
}
