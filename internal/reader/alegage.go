package reader

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/fortran"
	"github.com/rtm0/agage/internal/schema"
)

// aleGAGEMissing marks missing values in ALE/GAGE files.
const aleGAGEMissing = -99.9

const aleGAGETimeLayout = "02-Jan-06 1504"

const aleComment = "NOTE: Some data points may have been removed from the original dataset " +
	"because they were not felt to be representative of the baseline air masses (Paul Fraser, pers. comm.). "

// aleGAGEFile holds one monthly ALE/GAGE file.
type aleGAGEFile struct {
	times    []time.Time
	values   map[string][]float64
	polluted map[string][]bool
}

// parseALEGAGEFile reads a monthly file: a "SSYYMMM" line, a header naming
// the day, time and a third column followed by one column per species, then
// fixed-width rows (widths 3, 5, 7, then 7+1 per species; the extra
// character is the pollution flag). Local timestamps are converted to UTC
// with loc.
func parseALEGAGEFile(r io.Reader, loc *time.Location, issues formatting.TimestampIssues) (*aleGAGEFile, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("file too short")
	}
	meta := strings.TrimSpace(lines[0])
	if len(meta) < 7 {
		return nil, fmt.Errorf("invalid first line %q", meta)
	}
	year, month := meta[2:4], meta[4:7]

	header := strings.Fields(lines[1])
	if len(header) < 3 {
		return nil, fmt.Errorf("invalid header %q", lines[1])
	}
	widths := []int{3, 5, 7}
	kinds := []fortran.Kind{fortran.Int, fortran.Int, fortran.Int}
	var sps []string
	for _, h := range header[3:] {
		sp := strings.ReplaceAll(h, "'", "")
		sps = append(sps, sp)
		widths = append(widths, 7, 1)
		kinds = append(kinds, fortran.Float, fortran.String)
	}
	cols := fortran.Widths(kinds, widths...)

	f := &aleGAGEFile{values: make(map[string][]float64), polluted: make(map[string][]bool)}
	seen := make(map[time.Time]int)
	for n, line := range lines[2:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := fortran.Split(line, cols)
		stamp := fmt.Sprintf("%s-%s-%s %s", zfill(fields[0], 2), month, year, zfill(fields[1], 4))
		if fix, ok := issues[stamp]; ok {
			stamp = fix
		}
		t, err := time.ParseInLocation(aleGAGETimeLayout, stamp, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp %q, check timestamp issues: %w", n+3, stamp, err)
		}
		t = t.UTC()

		row := len(f.times)
		if i, dup := seen[t]; dup {
			if issues.Keep() != "last" {
				continue
			}
			row = i
		} else {
			seen[t] = row
			f.times = append(f.times, t)
		}
		for k, sp := range sps {
			v := math.NaN()
			if s := fields[3+2*k]; s != "" {
				x, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid value %q for %s", n+3, s, sp)
				}
				if x != aleGAGEMissing {
					v = x
				}
			}
			p := fields[4+2*k] == "P"
			if row == len(f.values[sp]) {
				f.values[sp] = append(f.values[sp], v)
				f.polluted[sp] = append(f.polluted[sp], p)
			} else {
				f.values[sp][row] = v
				f.polluted[sp][row] = p
			}
		}
	}
	return f, nil
}

// ReadALEGAGE reads the ALE or GAGE record of a species at a site.
func (r *Reader) ReadALEGAGE(sp, site, instr string, opts Options) (*dataset.Dataset, error) {
	ds, _, err := r.readALEGAGE(sp, site, instr, opts)
	return ds, err
}

func (r *Reader) readALEGAGE(sp, site, instr string, opts Options) (data, flags *dataset.Dataset, err error) {
	if !strings.Contains(r.paths.Network, "agage") {
		return nil, nil, fmt.Errorf("ALE/GAGE data are only available for AGAGE networks, not %s", r.paths.Network)
	}
	instr = strings.ToUpper(instr)
	if instr != "ALE" && instr != "GAGE" {
		return nil, nil, fmt.Errorf("instrument must be ALE or GAGE, not %s", instr)
	}

	sites, err := formatting.LoadSites(r.paths.Dir)
	if err != nil {
		return nil, nil, err
	}
	info, ok := sites[site]
	if !ok {
		return nil, nil, fmt.Errorf("site %s not found in %s", site, formatting.ALEGAGESitesFile)
	}
	spInfo, err := formatting.LoadSpecies(r.paths.Dir, formatting.ALEGAGESpeciesFile, sp)
	if err != nil {
		return nil, nil, err
	}
	issues, err := formatting.LoadTimestampIssues(r.paths.Dir, instr, site)
	if err != nil {
		return nil, nil, err
	}
	loc, err := info.Location()
	if err != nil {
		return nil, nil, err
	}

	key := config.ALEPath
	if instr == "GAGE" {
		key = config.GAGEPath
	}
	sub, err := r.paths.Input(key, site)
	if err != nil {
		return nil, nil, err
	}
	src := archive.NewSource(r.paths.Abs(sub))
	tarName := info.GCWerksName + "_sio1993.gtar.gz"
	rc, err := src.Open(tarName)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	r.logger.Debug("reading archive", zap.String("file", tarName), zap.String("source", src.Path()))

	var (
		times    []time.Time
		values   []float64
		polluted []bool
	)
	err = archive.WalkTarGz(rc, func(name string, fr io.Reader) error {
		f, err := parseALEGAGEFile(fr, loc, issues)
		if err != nil {
			return err
		}
		v, ok := f.values[spInfo.NameGatech]
		if !ok {
			v = fill(len(f.times), math.NaN())
		}
		p := f.polluted[spInfo.NameGatech]
		if p == nil {
			p = make([]bool, len(f.times))
		}
		times = append(times, f.times...)
		values = append(values, v...)
		polluted = append(polluted, p...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })
	t := make([]time.Time, len(idx))
	mf := make([]float64, len(idx))
	baseline := make([]float64, len(idx))
	for i, j := range idx {
		t[i], mf[i] = times[j], values[j]
		if !polluted[j] {
			baseline[i] = 1
		}
	}

	ds := dataset.New(t)
	if dups := ds.DuplicateTimes(); len(dups) > 0 {
		return nil, nil, fmt.Errorf("duplicate timestamps found, check timestamp issues: %s", formatTimes(dups))
	}
	rep := make([]float64, len(mf))
	for i, v := range mf {
		rep[i] = v * spInfo.Repeatability(instr)
	}
	if err := ds.Set(schema.MoleFraction, mf, nil); err != nil {
		return nil, nil, err
	}
	if err := ds.Set("mf_repeatability", rep, nil); err != nil {
		return nil, nil, err
	}
	ds.Fill("inlet_height", info.InletHeight, nil)
	ds.Fill("sampling_period", 1, nil)

	ds.Attrs = dataset.AttrsOf(
		"comment", fmt.Sprintf("%s %s data from %s. %s", instr, sp, info.StationLongName, gatechCommentPostfix),
	)
	ds.Attrs.Update(info.Attrs())
	ds.Attrs.Update(dataset.AttrsOf(
		"inlet_comment", "",
		"site_code", site,
		"product_type", ProductMoleFraction,
		"instrument_selection", IndividualSelection,
		"frequency", FrequencyHigh,
	))
	ds.TimeAttrs.Set("comment", timeComment)

	entry := formatting.Instrument{Name: instr + "_GCMD"}
	if instr == "ALE" {
		entry.Comment = aleComment
	}
	if err := r.setInstrumentType(ds, instr); err != nil {
		return nil, nil, err
	}
	r.formatter.Format(ds, formatting.Options{
		Instruments:      []formatting.Instrument{entry},
		Species:          sp,
		CalibrationScale: spInfo.Scale,
	})
	ds = r.table.FormatVariables(ds, schema.FormatOptions{Units: spInfo.Units})
	if err := ds.Set(convert.BaselineFlag, baseline, nil); err != nil {
		return nil, nil, err
	}

	if opts.Exclude {
		if ds, err = r.Exclude(ds, sp, site, instr, false); err != nil {
			return nil, nil, err
		}
	}
	if ds, err = r.releaseCut(ds, sp, site, instr); err != nil {
		return nil, nil, err
	}
	if opts.DropNaN {
		ds = ds.DropNaN(schema.MoleFraction)
	}

	if data, flags, err = splitBaseline(ds); err != nil {
		return nil, nil, err
	}
	if data, err = r.scaler.Convert(data, opts.Scale); err != nil {
		return nil, nil, err
	}
	return data, flags, nil
}

func zfill(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

func formatTimes(ts []time.Time) string {
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = t.Format(dataset.DateLayout)
	}
	return strings.Join(s, ", ")
}
