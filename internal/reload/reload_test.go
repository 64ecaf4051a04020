package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/pool"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/registry"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sqlsec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, description string) {
	t.Helper()
	content := `
sources:
  - name: default
    host: localhost
tools:
  - name: t
    enabled: true
    source: default
    description: "` + description + `"
    statement: "SELECT 1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildFromPath(path string) Builder {
	return func() (*registry.Registry, error) {
		res := config.LoadFromPath(path, config.DefaultMergeOptions())
		if !res.Success {
			return nil, res.Errors[0]
		}
		resolver := func(_ context.Context, sourceName string) (string, config.SourceSpec, error) {
			return sourceName, res.Config.Sources[sourceName], nil
		}
		return registry.Build(res.Config, &pool.Manager{}, sqlsec.NewEngine(), resolver, nil, nil)
	}
}

func TestWatcherInitialBuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	writeConfig(t, path, "A")

	w, err := NewWatcher([]string{path}, buildFromPath(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Current().Len())
}

func TestWatcherSwapsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	writeConfig(t, path, "A")

	w, err := NewWatcher([]string{path}, buildFromPath(path), nil)
	require.NoError(t, err)
	before := w.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.debounce = 10 * time.Millisecond
	w.Start(ctx)

	writeConfig(t, path, "B")

	require.Eventually(t, func() bool {
		return w.Current() != before
	}, time.Second, 10*time.Millisecond, "registry should be swapped after a debounced reload")
}

func TestWatcherOnSwapFiresWithOldAndNewRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	writeConfig(t, path, "A")

	w, err := NewWatcher([]string{path}, buildFromPath(path), nil)
	require.NoError(t, err)
	before := w.Current()

	var gotOld, gotNew *registry.Registry
	w.OnSwap = func(old, newReg *registry.Registry) {
		gotOld, gotNew = old, newReg
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.debounce = 10 * time.Millisecond
	w.Start(ctx)

	writeConfig(t, path, "B")

	require.Eventually(t, func() bool {
		return gotNew != nil
	}, time.Second, 10*time.Millisecond, "OnSwap should fire after a debounced reload")
	assert.Same(t, before, gotOld, "OnSwap's old argument should be the pre-reload registry")
	assert.Same(t, w.Current(), gotNew, "OnSwap's new argument should be the swapped-in registry")
}

func TestWatcherKeepsPreviousRegistryOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	writeConfig(t, path, "A")

	w, err := NewWatcher([]string{path}, buildFromPath(path), nil)
	require.NoError(t, err)
	before := w.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.debounce = 10 * time.Millisecond
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, before, w.Current(), "an invalid reload must keep the previous registry in effect")
}
