// Package archive reads input files from directories, zip and tar.gz
// archives, and writes the output archive as a directory or a zip file.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotFound is returned when no file matches.
var ErrNotFound = errors.New("file not found")

// Source is a directory or zip archive of input files. Names are slash
// separated and relative to the source.
type Source struct {
	path string
}

// NewSource returns the source at path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Path returns the location of the source.
func (s *Source) Path() string {
	return s.path
}

// IsZip reports whether the source is a zip archive.
func (s *Source) IsZip() bool {
	return strings.HasSuffix(s.path, ".zip")
}

// Exists reports whether the source exists.
func (s *Source) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// List returns the files matching pattern, sorted. Hidden files are skipped.
// Without subDirs only the files closest to the root are returned. A missing
// source lists nothing.
func (s *Source) List(pattern string, subDirs bool) ([]string, error) {
	if !s.Exists() {
		return nil, nil
	}
	var files []string
	if s.IsZip() {
		z, err := zip.OpenReader(s.path)
		if err != nil {
			return nil, err
		}
		defer z.Close()
		for _, f := range z.File {
			if f.FileInfo().IsDir() || hidden(f.Name) {
				continue
			}
			if Match(pattern, f.Name) {
				files = append(files, f.Name)
			}
		}
	} else {
		err := filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != s.path && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(s.path, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !hidden(rel) && Match(pattern, rel) {
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if !subDirs {
		files = topLevel(files)
	}
	slices.Sort(files)
	return files, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(path.Base(name), ".")
}

func topLevel(files []string) []string {
	if len(files) == 0 {
		return files
	}
	minDepth := -1
	for _, f := range files {
		if d := strings.Count(f, "/"); minDepth < 0 || d < minDepth {
			minDepth = d
		}
	}
	return slices.DeleteFunc(files, func(f string) bool { return strings.Count(f, "/") != minDepth })
}

// Open opens a file. In a zip archive the name may be a pattern, and the
// first matching member is opened.
func (s *Source) Open(name string) (io.ReadCloser, error) {
	if !s.IsZip() {
		f, err := os.Open(filepath.Join(s.path, filepath.FromSlash(name)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.path)
		}
		return f, err
	}
	z, err := zip.OpenReader(s.path)
	if err != nil {
		return nil, err
	}
	for _, f := range z.File {
		if f.Name == name || Match(name, f.Name) {
			rc, err := f.Open()
			if err != nil {
				z.Close()
				return nil, err
			}
			return &zipMember{ReadCloser: rc, z: z}, nil
		}
	}
	z.Close()
	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.path)
}

type zipMember struct {
	io.ReadCloser
	z *zip.ReadCloser
}

func (m *zipMember) Close() error {
	err := m.ReadCloser.Close()
	if zerr := m.z.Close(); err == nil {
		err = zerr
	}
	return err
}

// ReadFile reads a whole file.
func (s *Source) ReadFile(name string) ([]byte, error) {
	rc, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// LocalPath returns a path on disk holding the file. Files inside a zip
// archive are extracted to a temporary file, removed by cleanup.
func (s *Source) LocalPath(name string) (p string, cleanup func(), err error) {
	if !s.IsZip() {
		p = filepath.Join(s.path, filepath.FromSlash(name))
		if _, err := os.Stat(p); err != nil {
			return "", nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.path)
		}
		return p, func() {}, nil
	}
	rc, err := s.Open(name)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	f, err := os.CreateTemp("", "agage-*"+path.Ext(name))
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

// WalkTarGz calls fn for every regular file of a gzipped tar stream, in
// archive order.
func WalkTarGz(r io.Reader, fn func(name string, r io.Reader) error) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		if err := fn(hdr.Name, tr); err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
	}
}
