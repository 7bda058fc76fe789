package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Mode says which missing paths Check tolerates.
type Mode int

const (
	// Raise reports any missing input or output path.
	Raise Mode = iota
	// Ignore reports nothing.
	Ignore
	// IgnoreInputs reports only a missing output path.
	IgnoreInputs
	// IgnoreOutputs reports only missing input paths.
	IgnoreOutputs
)

// Paths are the resolved locations of one network.
type Paths struct {
	Network string
	// Dir is the network data directory; every other path is relative to it.
	Dir string
	// Output is the output directory or zip archive.
	Output string
	User   string

	sub map[string]SubPath
}

// Input returns an input sub-path, resolving site maps.
func (p *Paths) Input(key, site string) (string, error) {
	s, ok := p.sub[key]
	if !ok {
		return "", fmt.Errorf("%w: %s for network %s", ErrPathNotSet, key, p.Network)
	}
	path, ok := s.Resolve(site)
	if !ok {
		return "", fmt.Errorf("%w: %s for site %s in network %s", ErrPathNotSet, key, site, p.Network)
	}
	return path, nil
}

// Abs joins a sub-path onto the network data directory.
func (p *Paths) Abs(sub string) string {
	return filepath.Join(p.Dir, sub)
}

// OutputAbs returns the absolute output path.
func (p *Paths) OutputAbs() string {
	return p.Abs(p.Output)
}

// InputKeys returns the configured input keys, sorted.
func (p *Paths) InputKeys() []string {
	var keys []string
	for k := range p.sub {
		if !strings.Contains(k, OutputPath) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Check verifies that the configured paths exist and are directories or
// archives.
func (p *Paths) Check(mode Mode, site string) error {
	if mode == Raise || mode == IgnoreOutputs {
		for _, k := range p.InputKeys() {
			sub, ok := p.sub[k].Resolve(site)
			if !ok || sub == "" {
				continue
			}
			if err := checkPath(p.Abs(sub), true); err != nil {
				return err
			}
		}
	}
	if mode == Raise || mode == IgnoreInputs {
		if p.Output == "" {
			return fmt.Errorf("%w: %s for network %s", ErrPathNotSet, OutputPath, p.Network)
		}
		if err := checkPath(p.OutputAbs(), false); err != nil {
			return err
		}
	}
	return nil
}

func checkPath(path string, allowTar bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("folder or zip archive %s doesn't exist: %w", path, err)
	}
	if fi.IsDir() || strings.HasSuffix(path, ".zip") || (allowTar && strings.HasSuffix(path, ".gz")) {
		return nil
	}
	return fmt.Errorf("%s is not a folder or zip archive", path)
}
