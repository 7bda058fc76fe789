// Package csvconv converts archive netCDF files to commented CSV files.
package csvconv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/ncio"
)

// Suffix is appended to the output archive name to get the CSV archive.
const Suffix = "-csv"

var timeColumns = []string{"time", "year", "month", "day", "hour", "minute", "second"}

var sanitizer = strings.NewReplacer(`"`, `""`, ",", ";", "\n", "/", "\t", "    ")

func attrValue(v any) string {
	switch v := v.(type) {
	case []any:
		s := make([]string, len(v))
		for i, e := range v {
			s[i] = fmt.Sprint(e)
		}
		return strings.Join(s, "; ")
	case []float64:
		s := make([]string, len(v))
		for i, e := range v {
			s[i] = strconv.FormatFloat(e, 'g', -1, 64)
		}
		return strings.Join(s, "; ")
	case []string:
		return strings.Join(v, "; ")
	}
	return sanitizer.Replace(fmt.Sprint(v))
}

// Header returns the comment lines written above the data table.
func Header(ds *dataset.Dataset) []string {
	a := ds.Attrs
	header := []string{
		fmt.Sprintf("# %s %s %s %s converted from netCDF to CSV",
			strings.ToUpper(a.String("network")), strings.ToUpper(a.String("site_code")),
			a.String("instrument"), a.String("species")),
		"# This file has generated automatically. Metadata have been modified for consistency CSV format compromising the readability of some attributes.",
		"#",
		"# GLOBAL ATTRIBUTES:",
		"# ------------------------------",
	}
	keys := a.Keys()
	slices.Sort(keys)
	for _, k := range keys {
		v, _ := a.Get(k)
		header = append(header, fmt.Sprintf("# %s: %s", k, attrValue(v)))
	}
	header = append(header, "#", "# VARIABLE ATTRIBUTES:", "# ------------------------------")
	for _, name := range ds.Names() {
		header = append(header, fmt.Sprintf("# %s:", name))
		attrs := ds.Var(name).Attrs
		for _, k := range attrs.Keys() {
			v, _ := attrs.Get(k)
			header = append(header, fmt.Sprintf("#   %s: %s", k, attrValue(v)))
		}
	}
	return append(header, "#", "# DATA:")
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Write writes the CSV rendition of ds: the header followed by a table
// with the time split into its components ahead of the variables.
func Write(w io.Writer, ds *dataset.Dataset) error {
	for _, line := range Header(ds) {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	names := ds.Names()
	cw := csv.NewWriter(w)
	if err := cw.Write(append(slices.Clone(timeColumns), names...)); err != nil {
		return err
	}
	row := make([]string, len(timeColumns)+len(names))
	for i, t := range ds.Time {
		row[0] = t.Format(dataset.DateLayout)
		for j, c := range []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()} {
			row[j+1] = strconv.Itoa(c)
		}
		for j, name := range names {
			row[len(timeColumns)+j] = formatValue(ds.Var(name).Values[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Converter mirrors an output archive into its CSV counterpart.
type Converter struct {
	logger      *zap.Logger
	concurrency int
}

// New creates a converter running up to concurrency conversions at once.
func New(logger *zap.Logger, concurrency int) *Converter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Converter{logger: logger, concurrency: concurrency}
}

// Convert writes every file of the archive at src into a fresh archive named
// with Suffix. netCDF files are converted; everything else is copied.
// It returns the CSV archive path.
func (c *Converter) Convert(ctx context.Context, src, networkDir string) (string, error) {
	dst := archive.Suffix(src, Suffix)
	if err := archive.Delete(dst, networkDir); err != nil {
		return "", err
	}
	if err := archive.CreateEmpty(dst); err != nil {
		return "", err
	}
	in := archive.NewSource(src)
	files, err := in.List("*", true)
	if err != nil {
		return "", err
	}
	out, err := archive.OpenWriter(dst)
	if err != nil {
		return "", err
	}
	// zip members unpack into a folder named after the archive
	prefix := ""
	if out.IsZip() {
		prefix = strings.TrimSuffix(path.Base(dst), ".zip") + "/"
	}
	c.logger.Info("converting to CSV", zap.Int("files", len(files)), zap.String("archive", dst))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.convertFile(in, out, f, prefix)
		})
	}
	if err := g.Wait(); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

func (c *Converter) convertFile(in *archive.Source, out *archive.Writer, name, prefix string) error {
	if !strings.HasSuffix(name, ".nc") {
		b, err := in.ReadFile(name)
		if err != nil {
			return err
		}
		return out.WriteFile(prefix+name, bytes.NewReader(b))
	}
	local, cleanup, err := in.LocalPath(name)
	if err != nil {
		return err
	}
	defer cleanup()
	ds, err := ncio.ReadFile(local)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, ds); err != nil {
		return err
	}
	c.logger.Debug("converted", zap.String("file", name))
	return out.WriteFile(prefix+strings.TrimSuffix(name, ".nc")+".csv", &buf)
}
