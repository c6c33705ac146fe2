package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/aida/internal/aida"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	def := aida.DefaultOptions()
	require.Equal(t, def.ProtocolVersion, cfg.ORB.ProtocolVersion)
	require.Equal(t, def.AcceptVersions, cfg.ORB.AcceptVersions)
	require.Equal(t, def.DefaultCapacity, cfg.ORB.DefaultCapacity)
	require.Equal(t, def.SweepThreshold, cfg.ORB.SweepThreshold)
	require.False(t, cfg.Log.Debug)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, `
[orb]
protocol_version = "1.2.0"
sweep_threshold = 8

[log]
debug = true
`)
	t.Setenv("AIDA_ORB_ACCEPT_VERSIONS", ">=1.1, <2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1.2.0", cfg.ORB.ProtocolVersion)
	require.Equal(t, ">=1.1, <2", cfg.ORB.AcceptVersions)
	require.Equal(t, 8, cfg.ORB.SweepThreshold)
	require.True(t, cfg.Log.Debug)
}

func TestApply(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, aida.Configure(aida.DefaultOptions())) })

	cfg := Config{ORB: ORBConfig{ProtocolVersion: "1.4.0", SweepThreshold: 3}}
	require.NoError(t, Apply(cfg))
	opts := aida.CurrentOptions()
	require.Equal(t, "1.4.0", opts.ProtocolVersion)
	require.Equal(t, 3, opts.SweepThreshold)
	require.Equal(t, aida.DefaultOptions().DefaultCapacity, opts.DefaultCapacity)

	cfg.ORB.AcceptVersions = "not a constraint"
	require.Error(t, Apply(cfg))
	require.Equal(t, "1.4.0", aida.CurrentOptions().ProtocolVersion)
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "[orb]\nsweep_threshold = 4\n")
	v := New(path)

	var mu sync.Mutex
	var seen []int
	Watch(v, func(cfg Config) {
		mu.Lock()
		seen = append(seen, cfg.ORB.SweepThreshold)
		mu.Unlock()
	})

	writeConfig(t, path, "[orb]\nsweep_threshold = 16\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == 16
	}, 5*time.Second, 20*time.Millisecond)
}
