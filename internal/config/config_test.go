package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
user:
  name: "Test User"
paths:
  agage_test:
    md_path: data-nc
    gcms_flask_path:
      mhd: data-gcms-flask-nc/mhd
    output_path: output
`

func TestRead(t *testing.T) {
	cfg, err := Read(strings.NewReader(testConfig))
	require.NoError(t, err)

	assert.Equal(t, "Test User", cfg.Username())
	p, err := cfg.Network("/data", "agage_test")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "agage_test"), p.Dir)
	assert.Equal(t, "output", p.Output)

	md, err := p.Input(MDPath, "")
	require.NoError(t, err)
	assert.Equal(t, "data-nc", md)

	flask, err := p.Input(GCMSFlaskPath, "MHD")
	require.NoError(t, err)
	assert.Equal(t, "data-gcms-flask-nc/mhd", flask)

	_, err = p.Input(GCMSFlaskPath, "CGO")
	assert.ErrorIs(t, err, ErrPathNotSet)
	_, err = p.Input(ALEPath, "")
	assert.ErrorIs(t, err, ErrPathNotSet)

	_, err = cfg.Network("/data", "nope")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Default("me", "")))
	assert.True(t, strings.HasPrefix(buf.String(), "# Use this file"))

	cfg, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "me", cfg.User.Name)
	assert.Equal(t, "agage-public-archive.zip", cfg.Paths["agage"][OutputPath].Path)
	assert.Equal(t, "ale", cfg.Paths["agage_test"][ALEPath].Path)
}

func TestUsernameFallback(t *testing.T) {
	t.Setenv("USER", "envuser")
	cfg := &Config{}
	assert.Equal(t, "envuser", cfg.Username())
}

func TestCheck(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agage_test", "data-nc"), 0o755))

	cfg, err := Read(strings.NewReader(testConfig))
	require.NoError(t, err)
	p, err := cfg.Network(root, "agage_test")
	require.NoError(t, err)

	assert.NoError(t, p.Check(IgnoreOutputs, ""))
	assert.Error(t, p.Check(IgnoreInputs, ""))
	assert.Error(t, p.Check(IgnoreOutputs, "mhd"))
	assert.NoError(t, p.Check(Ignore, "mhd"))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "agage_test", "output"), 0o755))
	assert.NoError(t, p.Check(IgnoreInputs, ""))
}
