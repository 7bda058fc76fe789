// Package output writes standardised datasets into the output archive.
package output

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/species"
)

// ErrEmpty is returned when nothing is left to write.
var ErrEmpty = errors.New("no data retained")

// FileName builds an archive file name:
// <network>[-<instrument>]_<site>_<species>_[<extra>-]<version>.nc.
func FileName(network, instrument, site, sp, extra, version string) string {
	if extra != "" {
		switch {
		case strings.HasSuffix(extra, "-"):
		case strings.HasSuffix(extra, "_"):
			extra = strings.TrimSuffix(extra, "_") + "-"
		default:
			extra += "-"
		}
	}
	if instrument != "" {
		instrument = "-" + instrument
	}
	return fmt.Sprintf("%s%s_%s_%s_%s%s.nc", strings.ToLower(network), instrument,
		strings.ToLower(site), species.Format(sp), extra, strings.ReplaceAll(version, " ", ""))
}

// Options describe where a dataset goes.
type Options struct {
	// Instrument is the instrument part of the file name; empty for
	// recommended files.
	Instrument string
	// EndDate cuts the record before writing.
	EndDate string
	// SubPath is the folder inside the archive.
	SubPath string
	// Extra is inserted before the version in the file name.
	Extra string
	// NoVersion leaves the version out of the file name.
	NoVersion bool
}

// Writer writes datasets into an archive.
type Writer struct {
	logger  *zap.Logger
	archive *archive.Writer
	table   *schema.Table
	network string
	newID   func() string
}

// NewWriter creates a writer naming files after network.
func NewWriter(logger *zap.Logger, w *archive.Writer, table *schema.Table, network string) *Writer {
	return &Writer{
		logger:  logger,
		archive: w,
		table:   table,
		network: network,
		newID:   uuid.NewString,
	}
}

// Archive returns the archive written to.
func (w *Writer) Archive() *archive.Writer {
	return w.archive
}

// FileName returns the file name a dataset would be written under.
func (w *Writer) FileName(ds *dataset.Dataset, opts Options) string {
	version := ""
	if !opts.NoVersion {
		version = ds.Attrs.String("version")
	}
	return FileName(w.network, opts.Instrument, ds.Attrs.String("site_code"), ds.Attrs.String("species"), opts.Extra, version)
}

// Output writes a dataset and returns its name inside the archive.
func (w *Writer) Output(ds *dataset.Dataset, opts Options) (string, error) {
	filename := w.FileName(ds, opts)
	sp := ds.Attrs.String("species")

	out := ds.Copy()
	if opts.EndDate != "" {
		r, err := dataset.Until(opts.EndDate)
		if err != nil {
			return "", err
		}
		out = out.Sel(r)
		if out.Len() == 0 {
			return "", fmt.Errorf("%w for %s when trying to write %s after applying end date, "+
				"check dates in release schedule or omit this instrument", ErrEmpty, sp, filename)
		}
		out.Attrs.Set("end_date", out.EndDate())
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w for %s when trying to write %s, "+
			"check dates in release schedule or omit this instrument", ErrEmpty, sp, filename)
	}
	out.TimeAttrs.Delete("units")
	out.TimeAttrs.Delete("calendar")
	out.Attrs.Set("tracking_id", w.newID())

	name := path.Join(opts.SubPath, filename)
	w.logger.Debug("writing", zap.String("file", name), zap.String("archive", w.archive.Path()))
	if err := w.write(name, out); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", name, err)
	}
	return name, nil
}

func (w *Writer) write(name string, ds *dataset.Dataset) error {
	tmp, err := os.CreateTemp("", "agage-*.nc")
	if err != nil {
		return err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := ncio.WriteFile(tmp.Name(), ds, w.table); err != nil {
		return err
	}
	f, err := os.Open(tmp.Name())
	if err != nil {
		return err
	}
	defer f.Close()
	return w.archive.WriteFile(name, f)
}
