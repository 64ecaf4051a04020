package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
sources:
  - name: s1
    host: example.com
    user: u
    password: p
tools:
  - name: t1
    source: s1
    statement: "SELECT 1 AS X FROM SYSIBM.SYSDUMMY1"
    enabled: true
toolsets:
  - name: g1
    tools: [t1]
`

func TestResolveSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	paths, err := resolveSource(ConfigSource{Type: SourceKindFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestResolveSourceFileMissingNotRequired(t *testing.T) {
	paths, err := resolveSource(ConfigSource{Type: SourceKindFile, Path: "/nonexistent/tools.yaml"})
	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestResolveSourceFileMissingRequiredErrors(t *testing.T) {
	_, err := resolveSource(ConfigSource{Type: SourceKindFile, Path: "/nonexistent/tools.yaml", Required: true})
	assert.Error(t, err)
}

func TestResolveSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	paths, err := resolveSource(ConfigSource{Type: SourceKindDirectory, Path: dir})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestResolveSourceGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.yaml"), []byte(sampleYAML), 0o644))

	paths, err := resolveSource(ConfigSource{Type: SourceKindGlob, Path: filepath.Join(dir, "*.yaml")})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestLoadFromPathFileSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	result := LoadFromPath(path, DefaultMergeOptions())
	require.True(t, result.Success, "%+v", result.Errors)
	assert.Equal(t, 1, result.Stats.ToolsTotal)
	assert.Equal(t, 1, result.Stats.SourcesTotal)
	assert.Equal(t, 1, result.Stats.ToolsetsTotal)
}

func TestLoadFromPathDirectoryMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleYAML), 0o644))

	other := `
tools:
  - name: t2
    source: s1
    statement: "SELECT 2 AS Y FROM SYSIBM.SYSDUMMY1"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(other), 0o644))

	result := LoadFromPath(dir, DefaultMergeOptions())
	require.True(t, result.Success, "%+v", result.Errors)
	assert.Equal(t, 2, result.Stats.ToolsTotal)
}

func TestLoadFromPathEmptyPathReturnsEmptyConfig(t *testing.T) {
	result := LoadFromPath("", DefaultMergeOptions())
	assert.False(t, result.Success)
	assert.NotNil(t, result.Config)
}

func TestLoadDetectsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: [this is not: valid: yaml"), 0o644))

	result := Load([]ConfigSource{{Type: SourceKindFile, Path: path, Required: true}}, DefaultMergeOptions())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}
