package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/selection"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetupAndInstruments(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	_, err := execute(t, "setup", "--config", cfgPath, "--user", "tester")
	require.NoError(t, err)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "tester", cfg.User.Name)
	assert.Contains(t, cfg.Paths, "agage")

	_, err = execute(t, "setup", "--config", cfgPath)
	assert.ErrorContains(t, err, "already exists")

	netDir := filepath.Join(dir, "data", "agage")
	for _, instr := range []string{"GCMD", "ALE", "Picarro"} {
		p := selection.SchedulePath(netDir, instr)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("Species,MHD\n"), 0o644))
	}
	out, err := execute(t, "instruments", "--config", cfgPath, "--data", filepath.Join(dir, "data"), "--network", "agage")
	require.NoError(t, err)
	assert.Equal(t, "-1\tUNDEFINED\n0\tALE\n1\tGCMD\n2\tPicarro\n", out)

	_, err = execute(t, "instruments", "--config", cfgPath, "--data", filepath.Join(dir, "data"), "--network", "nowhere")
	assert.ErrorIs(t, err, config.ErrNetworkNotFound)
}
