// Package config reads the YAML file telling the archive builder where each
// network's input data and output archive live.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys of the per-network path table.
const (
	MDPath        = "md_path"
	OpticalPath   = "optical_path"
	GCMSPath      = "gcms_path"
	GCMSFlaskPath = "gcms_flask_path"
	ALEPath       = "ale_path"
	GAGEPath      = "gage_path"
	MagnumPath    = "magnum_path"
	OutputPath    = "output_path"
)

var (
	// ErrNetworkNotFound is returned for networks missing from the config.
	ErrNetworkNotFound = errors.New("network not found in config file")
	// ErrPathNotSet is returned for sub-paths missing from a network.
	ErrPathNotSet = errors.New("path not set in config file")
)

// Config is the content of config.yaml.
type Config struct {
	User  User                          `yaml:"user"`
	Paths map[string]map[string]SubPath `yaml:"paths"`
}

// User identifies who produced the files.
type User struct {
	Name string `yaml:"name"`
}

// SubPath is a path relative to the network data directory. Inputs split by
// site are given as a map from lower case site code to path.
type SubPath struct {
	Path  string
	Sites map[string]string
}

// UnmarshalYAML accepts either a string or a site map.
func (s *SubPath) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Path)
	case yaml.MappingNode:
		return value.Decode(&s.Sites)
	}
	return fmt.Errorf("line %d: path must be a string or a map of site paths", value.Line)
}

// MarshalYAML writes the path back in the shape it was read.
func (s SubPath) MarshalYAML() (any, error) {
	if s.Sites != nil {
		return s.Sites, nil
	}
	return s.Path, nil
}

// Resolve returns the path for a site. Plain paths ignore the site.
func (s SubPath) Resolve(site string) (string, bool) {
	if s.Sites == nil {
		return s.Path, true
	}
	p, ok := s.Sites[strings.ToLower(site)]
	return p, ok
}

// Load reads a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found, try running setup first: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a config.
func Read(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	return &cfg, nil
}

const header = `# Use this file to store configuration settings
# All paths are relative to the network subfolder in the data directory
# If you need to put data files elsewhere, you'll need to use symlinks
---
`

// Write encodes a config with the explanatory header.
func Write(w io.Writer, cfg *Config) error {
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// Default returns the config written by setup. Without a network it holds
// the agage and agage_test layouts; with one it holds empty input paths for
// that network.
func Default(user, network string) *Config {
	cfg := &Config{User: User{Name: user}, Paths: map[string]map[string]SubPath{}}
	if network != "" {
		cfg.Paths[network] = map[string]SubPath{
			MDPath:        {Path: ""},
			OpticalPath:   {Path: ""},
			GCMSPath:      {Path: ""},
			GCMSFlaskPath: {Path: ""},
			OutputPath:    {Path: "output"},
		}
		return cfg
	}
	cfg.Paths["agage_test"] = map[string]SubPath{
		MDPath:        {Path: "data-nc"},
		OpticalPath:   {Path: "data-optical-nc"},
		GCMSPath:      {Path: "data-gcms-nc"},
		GCMSFlaskPath: {Path: "data-gcms-flask-nc"},
		ALEPath:       {Path: "ale"},
		GAGEPath:      {Path: "gage"},
		MagnumPath:    {Path: "data-gcms-magnum.tar.gz"},
		OutputPath:    {Path: "output"},
	}
	cfg.Paths["agage"] = map[string]SubPath{
		MDPath:        {Path: "data-nc"},
		OpticalPath:   {Path: "data-optical-nc"},
		GCMSPath:      {Path: "data-gcms-nc"},
		GCMSFlaskPath: {Path: "data-gcms-flask-nc"},
		ALEPath:       {Path: "ale_gage_sio1993/ale"},
		GAGEPath:      {Path: "ale_gage_sio1993/gage"},
		MagnumPath:    {Path: "data-gcms-magnum.tar.gz"},
		OutputPath:    {Path: "agage-public-archive.zip"},
	}
	return cfg
}

// Username returns the configured user, falling back to the environment.
func (c *Config) Username() string {
	if c.User.Name != "" {
		return c.User.Name
	}
	for _, k := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "unknown user"
}

// Network resolves the paths of a network whose data directory is
// dataRoot/network.
func (c *Config) Network(dataRoot, network string) (*Paths, error) {
	np, ok := c.Paths[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, network)
	}
	p := &Paths{
		Network: network,
		Dir:     filepath.Join(dataRoot, network),
		User:    c.Username(),
		sub:     np,
	}
	if out, ok := np[OutputPath]; ok {
		p.Output = out.Path
	}
	return p, nil
}
