package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Writer writes files into the output archive. A zip archive is rebuilt in a
// temporary file, carrying over existing members, and replaces the original
// on Close. Writer is safe for concurrent use.
type Writer struct {
	path string

	mu    sync.Mutex
	names []string
	tmp   *os.File
	zw    *zip.Writer
}

// OpenWriter opens the output archive at path, creating it if needed.
func OpenWriter(path string) (*Writer, error) {
	w := &Writer{path: path}
	if !strings.HasSuffix(path, ".zip") {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		existing, err := NewSource(path).List("*", true)
		if err != nil {
			return nil, err
		}
		w.names = existing
		return w, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.zip")
	if err != nil {
		return nil, err
	}
	w.tmp = tmp
	w.zw = zip.NewWriter(tmp)
	if _, err := os.Stat(path); err == nil {
		z, err := zip.OpenReader(path)
		if err != nil {
			w.abort()
			return nil, err
		}
		defer z.Close()
		for _, f := range z.File {
			if err := w.zw.Copy(f); err != nil {
				w.abort()
				return nil, err
			}
			w.names = append(w.names, f.Name)
		}
	}
	return w, nil
}

// Path returns the archive location.
func (w *Writer) Path() string {
	return w.path
}

// IsZip reports whether the archive is a zip file.
func (w *Writer) IsZip() bool {
	return w.zw != nil
}

// WriteFile stores data under name, a slash separated path inside the
// archive.
func (w *Writer) WriteFile(name string, data io.Reader) error {
	name = strings.TrimPrefix(name, "/")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.zw != nil {
		if slices.Contains(w.names, name) {
			return fmt.Errorf("%s already exists in %s", name, w.path)
		}
		f, err := w.zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, data); err != nil {
			return err
		}
		w.names = append(w.names, name)
		return nil
	}
	p := filepath.Join(w.path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !slices.Contains(w.names, name) {
		w.names = append(w.names, name)
	}
	return nil
}

// CopyFile stores a file from disk under its base name.
func (w *Writer) CopyFile(src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return w.WriteFile(filepath.Base(src), f)
}

// List returns the names written so far, or already present, matching
// pattern.
func (w *Writer) List(pattern string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, n := range w.names {
		if Match(pattern, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// Close finishes the archive.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.zw == nil {
		return nil
	}
	if err := w.zw.Close(); err != nil {
		w.abort()
		return err
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	w.zw = nil
	return nil
}

func (w *Writer) abort() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// Delete removes the output archive: a zip file is deleted, a directory is
// emptied. Directories must be inside networkDir.
func Delete(path, networkDir string) error {
	if strings.HasSuffix(path, ".zip") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	rel, err := filepath.Rel(networkDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s must be in the network data directory %s", path, networkDir)
	}
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CreateEmpty creates an empty zip archive or directory if it doesn't exist.
func CreateEmpty(path string) error {
	if !strings.HasSuffix(path, ".zip") {
		return os.MkdirAll(path, 0o755)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := zip.NewWriter(f).Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Suffix inserts a suffix into an archive name: "archive.zip" becomes
// "archive-csv.zip" and "folder/" becomes "folder-csv/".
func Suffix(name, suffix string) string {
	if strings.HasSuffix(name, ".zip") {
		return strings.TrimSuffix(name, ".zip") + suffix + ".zip"
	}
	if strings.HasSuffix(name, "/") {
		return strings.TrimSuffix(name, "/") + suffix + "/"
	}
	return name + suffix
}
