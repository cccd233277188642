package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 30*time.Second, cfg.SweepInterval.Std())
	require.Regexp(t, cfg.HostPattern(), "devenv.exe")
	require.Regexp(t, cfg.HostPattern(), "devenv")
	require.NotRegexp(t, cfg.HostPattern(), "notepad.exe")
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vsmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"sweepInterval: 5s\nbuildConfigurations: [Debug, Release, Staging]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.SweepInterval.Std())
	require.Equal(t, []string{"Debug", "Release", "Staging"}, cfg.BuildConfigurations)

	// Untouched fields keep their defaults.
	require.Equal(t, Default().CallTimeout, cfg.CallTimeout)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"bad duration", "sweepInterval: soon\n"},
		{"zero timeout", "callTimeout: 0s\n"},
		{"bad pattern", "hostProcessPattern: '['\n"},
		{"empty whitelist", "buildConfigurations: []\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vsmcp.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
